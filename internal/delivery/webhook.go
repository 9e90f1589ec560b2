package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"remindd/pkg/logx"
)

// WebhookConfig configures the webhook sender.
type WebhookConfig struct {
	Timeout time.Duration // per request; <=0 means 10s
}

type webhookSender struct {
	client *http.Client
	log    logx.Logger
}

// NewWebhook returns a Sender that POSTs the message as JSON to the channel
// address (a URL). Non-2xx responses are failures.
func NewWebhook(cfg WebhookConfig, log logx.Logger) Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookSender{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type webhookPayload struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
	Tone    string `json:"tone,omitempty"`
}

func (s *webhookSender) Send(ctx context.Context, address string, msg Message) error {
	payload, err := json.Marshal(webhookPayload{Subject: msg.Subject, Body: msg.Body, Tone: msg.Tone})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned %s", address, resp.Status)
	}
	return nil
}

// logSender writes messages to the log instead of a transport. It is the
// development fallback when no real channel is configured.
type logSender struct {
	log logx.Logger
}

func NewLog(log logx.Logger) Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &logSender{log: log}
}

func (s *logSender) Send(_ context.Context, address string, msg Message) error {
	s.log.Info("delivery.log_channel",
		logx.String("address", address),
		logx.String("subject", msg.Subject),
		logx.String("body", msg.Body))
	return nil
}
