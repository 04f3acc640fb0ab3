// Package audit records security events for the verification flow. Events
// are shipped to Elasticsearch for operator search and to ClickHouse for
// analytics. Recording is best effort: a sink failure is logged and never
// surfaces to the request path.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"verify-service/internal/client"
	"verify-service/internal/config"
	"verify-service/internal/util"
)

// Event types recorded across the verification lifecycle.
const (
	EventCodeIssued         = "otc_code_issued"
	EventCodeDeliveryFailed = "otc_delivery_failed"
	EventRateLimited        = "otc_rate_limited"
	EventVerifySucceeded    = "otc_verify_succeeded"
	EventVerifyFailed       = "otc_verify_failed"
	EventSessionExpired     = "otc_session_expired"
	EventAttemptsExceeded   = "otc_attempts_exceeded"
)

// SecurityEvent is one audit record. PhoneMasked is the only phone-derived
// field; the plaintext number never reaches a sink.
type SecurityEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	EventTime   time.Time `json:"event_time"`
	SessionID   string    `json:"session_id,omitempty"`
	PhoneMasked string    `json:"phone_masked,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Recorder fans events out to the configured sinks.
type Recorder struct {
	es      *client.ESClient
	ch      *client.ClickHouseClient
	esIndex string
	chTable string
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(es *client.ESClient, ch *client.ClickHouseClient, cfg *config.Config) *Recorder {
	return &Recorder{
		es:      es,
		ch:      ch,
		esIndex: cfg.Elasticsearch.Index,
		chTable: cfg.Clickhouse.Database + ".security_events",
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Record ships the event to every available sink. The caller's context is
// deliberately not used: audit writes outlive the request that triggered
// them.
func (r *Recorder) Record(event SecurityEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.EventTime.IsZero() {
		event.EventTime = r.now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if r.es != nil {
		g.Go(func() error {
			return r.es.IndexDocument(ctx, r.esIndex, event.EventID, event)
		})
	}

	if r.ch != nil {
		g.Go(func() error {
			return r.ch.Exec(ctx, `
                INSERT INTO `+r.chTable+`
                    (event_id, event_type, event_time, session_id, phone_masked, account_id, attempts, detail)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				event.EventID, event.EventType, event.EventTime,
				event.SessionID, event.PhoneMasked, event.AccountID,
				event.Attempts, event.Detail,
			)
		})
	}

	if err := g.Wait(); err != nil {
		util.Warn("Failed to record security event",
			util.String("event_type", event.EventType),
			util.String("event_id", event.EventID),
			util.ErrorField(err))
	}
}
