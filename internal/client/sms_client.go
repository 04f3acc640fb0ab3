package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"verify-service/internal/config"
	"verify-service/internal/util"
)

var ErrDeliveryRejected = errors.New("sms gateway rejected message")

// SMSClient talks to the external message gateway that carries plaintext
// codes to the user. The code appears only in the request body, never in
// logs or errors.
type SMSClient struct {
	httpClient *http.Client
	config     *config.SMSConfig
}

type smsRequest struct {
	To       string `json:"to"`
	From     string `json:"from"`
	Body     string `json:"body"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
}

type smsResponse struct {
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     string `json:"error_code"`
}

func NewSMSClient(cfg *config.Config) *SMSClient {
	return &SMSClient{
		httpClient: &http.Client{Timeout: cfg.SMS.Timeout},
		config:     &cfg.SMS,
	}
}

// Send dispatches one code to one phone and returns the gateway's
// correlation id. A non-success gateway response is an error: the caller
// must not persist a session for an undelivered code.
func (s *SMSClient) Send(ctx context.Context, phone, code string) (string, error) {
	payload, err := json.Marshal(smsRequest{
		To:       phone,
		From:     s.config.SenderID,
		Body:     fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code),
		Channel:  "sms",
		Priority: "high",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	var result smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode sms gateway response: %w", err)
	}

	if resp.StatusCode >= 300 || !result.Success {
		util.Warn("SMS delivery rejected",
			util.String("phone", util.MaskPhone(phone)),
			util.String("error_code", result.ErrorCode),
			util.Int("status", resp.StatusCode),
		)
		return "", fmt.Errorf("%w: %s", ErrDeliveryRejected, result.ErrorCode)
	}

	util.Debug("SMS dispatched",
		util.String("phone", util.MaskPhone(phone)),
		util.String("correlation_id", result.CorrelationID),
	)

	return result.CorrelationID, nil
}
