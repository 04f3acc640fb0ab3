package service

import (
	"context"
	"encoding/json"
	"time"

	"verify-service/internal/client"
	"verify-service/internal/config"
	"verify-service/internal/util"
)

// EventPublisher emits lifecycle events to Kafka. Publishing is best effort
// and asynchronous: a broker outage is logged and never blocks or fails the
// request that produced the event.
type EventPublisher struct {
	producer *client.KafkaProducer
	config   *config.KafkaConfig
	now      func() time.Time
}

func NewEventPublisher(producer *client.KafkaProducer, cfg *config.Config) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		config:   &cfg.Kafka,
		now:      time.Now,
	}
}

type verificationEvent struct {
	EventType   string    `json:"event_type"`
	SessionID   string    `json:"session_id,omitempty"`
	PhoneMasked string    `json:"phone_masked"`
	AccountID   string    `json:"account_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type welcomeNotification struct {
	AccountID   string    `json:"account_id"`
	PhoneMasked string    `json:"phone_masked"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PublishLifecycle emits an issuance or verification event on the event
// topic, keyed by session id.
func (p *EventPublisher) PublishLifecycle(eventType, sessionID, phone, accountID string) {
	p.publish(p.config.EventTopic, sessionID, verificationEvent{
		EventType:   eventType,
		SessionID:   sessionID,
		PhoneMasked: util.MaskPhone(phone),
		AccountID:   accountID,
		OccurredAt:  p.now().UTC(),
	})
}

// PublishWelcome queues a welcome notification for a newly created account.
func (p *EventPublisher) PublishWelcome(accountID, phone, name, email string) {
	p.publish(p.config.NotifyTopic, accountID, welcomeNotification{
		AccountID:   accountID,
		PhoneMasked: util.MaskPhone(phone),
		Name:        name,
		Email:       email,
		CreatedAt:   p.now().UTC(),
	})
}

func (p *EventPublisher) publish(topic, key string, payload interface{}) {
	if p.producer == nil || p.config.DisablePublisher {
		return
	}

	value, err := json.Marshal(payload)
	if err != nil {
		util.Warn("Failed to encode event payload",
			util.String("topic", topic),
			util.ErrorField(err))
		return
	}

	timeout := p.config.PublishTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		headers := map[string]string{"content-type": "application/json"}
		if err := p.producer.ProduceMessage(ctx, topic, []byte(key), value, headers); err != nil {
			util.Warn("Failed to publish event",
				util.String("topic", topic),
				util.String("key", key),
				util.ErrorField(err))
		}
	}()
}
