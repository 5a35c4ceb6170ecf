// Package notify delivers human-readable decision text to an external chat channel.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ErrDelivery marks a message the channel did not accept.
var ErrDelivery = errors.New("notification delivery failed")

// Sink is best-effort: Notify never reports failure to the caller.
type Sink interface {
	Notify(ctx context.Context, text string)
}

// Nop discards every message. It is selected when no credentials are configured.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(context.Context, string) {}

// Credentials identify the bot and the destination chat.
type Credentials struct {
	Token  string
	ChatID string
}

// Enabled reports whether both halves of the credentials are present.
func (c Credentials) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.ChatID) != ""
}

// New picks the sink once at startup: Telegram when credentials are complete, Nop otherwise.
func New(creds Credentials, log zerolog.Logger, opts ...Option) Sink {
	if !creds.Enabled() {
		log.Info().Msg("notifications disabled")
		return Nop{}
	}
	return NewTelegram(creds.Token, creds.ChatID, log, opts...)
}
