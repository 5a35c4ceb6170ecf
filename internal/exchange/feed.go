// Package exchange hosts the feed drivers that turn remote or recorded prices into engine samples.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crossbot-go/internal/metrics"
	"crossbot-go/internal/signal"
)

const (
	// ProviderCoinGecko polls a CoinGecko-compatible coin endpoint on a fixed interval.
	ProviderCoinGecko = "coingecko"
	// ProviderBinance streams live trades from Binance public websockets.
	ProviderBinance = "binance"
)

var (
	// ErrRecordParse marks a historical record that could not be turned into a sample.
	ErrRecordParse = errors.New("malformed record")
	// ErrTransientFeed marks a network or upstream failure worth retrying.
	ErrTransientFeed = errors.New("transient feed error")
	// ErrFatalFeed ends the live loop: retries exhausted or the upstream schema changed.
	ErrFatalFeed = errors.New("fatal feed error")
)

// Processor consumes one sample at a time; strategy.Engine satisfies it.
type Processor interface {
	Process(ctx context.Context, s signal.Sample) ([]signal.Decision, error)
}

// Feed drives a Processor from a live source.
type Feed struct {
	provider     string
	log          zerolog.Logger
	pollInterval time.Duration
	baseURL      string
	coin         string
	streamURL    string
	symbol       string
	maxRetries   int
	backoff      time.Duration
	client       *http.Client
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultPollInterval     = 60 * time.Second
	defaultCoinGeckoBaseURL = "https://api.coingecko.com"
	defaultCoin             = "bitcoin"
	defaultBinanceStreamURL = "wss://stream.binance.com:9443"
	defaultSymbol           = "BTCUSDT"
	defaultMaxRetries       = 3
	defaultBackoff          = 2 * time.Second
	maxBackoff              = 30 * time.Second
)

// WithPollInterval overrides the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithCoinGecko sets the quote endpoint host and coin id.
func WithCoinGecko(baseURL, coin string) Option {
	return func(f *Feed) {
		if baseURL != "" {
			f.baseURL = strings.TrimSuffix(baseURL, "/")
		}
		if coin != "" {
			f.coin = strings.ToLower(strings.TrimSpace(coin))
		}
	}
}

// WithBinanceStream sets the websocket host and traded symbol.
func WithBinanceStream(streamURL, symbol string) Option {
	return func(f *Feed) {
		if streamURL != "" {
			f.streamURL = strings.TrimSuffix(streamURL, "/")
		}
		if symbol != "" {
			f.symbol = strings.ToUpper(strings.TrimSpace(symbol))
		}
	}
}

// WithRetry sets how many retries follow a failed attempt and the first backoff, which doubles per retry.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(f *Feed) {
		if maxRetries >= 0 {
			f.maxRetries = maxRetries
		}
		if backoff > 0 {
			f.backoff = backoff
		}
	}
}

// WithRequestTimeout bounds each quote request.
func WithRequestTimeout(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithHTTPClient swaps the HTTP client used for polling.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Feed) {
		if c != nil {
			f.client = c
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderCoinGecko
	}
	f := &Feed{
		provider:     strings.ToLower(provider),
		log:          log,
		pollInterval: defaultPollInterval,
		baseURL:      defaultCoinGeckoBaseURL,
		coin:         defaultCoin,
		streamURL:    defaultBinanceStreamURL,
		symbol:       defaultSymbol,
		maxRetries:   defaultMaxRetries,
		backoff:      defaultBackoff,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run feeds p until the context is canceled or the source fails fatally.
// p is called inline, so a sample is fully processed before the next one is fetched.
func (f *Feed) Run(ctx context.Context, p Processor) error {
	switch f.provider {
	case ProviderCoinGecko:
		return f.runCoinGecko(ctx, p)
	case ProviderBinance:
		return f.runBinance(ctx, p)
	default:
		return fmt.Errorf("unknown feed provider %q", f.provider)
	}
}

func (f *Feed) deliver(ctx context.Context, p Processor, source string, s signal.Sample) {
	metrics.SamplesTotal.WithLabelValues(source).Inc()
	if _, err := p.Process(ctx, s); err != nil {
		f.log.Warn().Err(err).Str("stage", "process").Str("source", source).Str("ts", s.Timestamp).Msg("sample not processed")
	}
}

// retryDelay is the wait before retry n (1-based): backoff, 2*backoff, 4*backoff, ... capped.
func (f *Feed) retryDelay(n int) time.Duration {
	d := f.backoff
	for i := 1; i < n && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
