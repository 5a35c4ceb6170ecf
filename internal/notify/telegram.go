package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crossbot-go/internal/metrics"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	defaultTimeout         = 5 * time.Second
)

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	timeout time.Duration
	client  *http.Client
	log     zerolog.Logger
}

// Option configures Telegram construction parameters.
type Option func(*Telegram)

// WithBaseURL points the sink at a different Bot API host.
func WithBaseURL(baseURL string) Option {
	return func(t *Telegram) {
		if baseURL != "" {
			t.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithTimeout bounds how long a single delivery may block the engine.
func WithTimeout(d time.Duration) Option {
	return func(t *Telegram) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Telegram) {
		if c != nil {
			t.client = c
		}
	}
}

// NewTelegram builds a Telegram sink.
func NewTelegram(token, chatID string, log zerolog.Logger, opts ...Option) *Telegram {
	t := &Telegram{
		baseURL: defaultTelegramBaseURL,
		token:   strings.TrimSpace(token),
		chatID:  strings.TrimSpace(chatID),
		timeout: defaultTimeout,
		client:  &http.Client{},
		log:     log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify delivers text within the configured timeout; failures are logged and swallowed.
func (t *Telegram) Notify(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.Send(ctx, text); err != nil {
		metrics.NotificationFailuresTotal.Inc()
		t.log.Warn().Err(err).Str("stage", "notify").Msg("notification delivery failed")
	}
}

// Send posts one message and reports any failure wrapped in ErrDelivery.
func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrDelivery, err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		// The token is part of the URL; keep it out of logs.
		return fmt.Errorf("%w: http do: %v", ErrDelivery, redact(err, t.token))
	}
	defer resp.Body.Close()

	var payload sendMessageResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
	if resp.StatusCode != http.StatusOK {
		if payload.Description != "" {
			return fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, payload.Description)
		}
		return fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode response: %v", ErrDelivery, decodeErr)
	}
	if !payload.OK {
		return fmt.Errorf("%w: %s", ErrDelivery, payload.Description)
	}
	return nil
}

func redact(err error, secret string) string {
	if secret == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), secret, "***")
}
