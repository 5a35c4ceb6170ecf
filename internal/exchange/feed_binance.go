package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"crossbot-go/internal/metrics"
	"crossbot-go/internal/signal"
)

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

func (f *Feed) runBinance(ctx context.Context, p Processor) error {
	if f.symbol == "" {
		return fmt.Errorf("binance feed requires a symbol")
	}
	url := fmt.Sprintf("%s/stream?streams=%s@trade", f.streamURL, strings.ToLower(f.symbol))

	failures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connected, err := f.consumeBinanceStream(ctx, url, p)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			failures = 0
		}
		failures++
		metrics.FeedErrorsTotal.WithLabelValues("transient").Inc()
		if failures > f.maxRetries {
			metrics.FeedErrorsTotal.WithLabelValues("fatal").Inc()
			f.log.Error().Err(err).Str("stage", "stream").Int("attempts", failures).Msg("binance feed gave up")
			return fmt.Errorf("%w after %d attempts: %w", ErrFatalFeed, failures, err)
		}
		wait := f.retryDelay(failures)
		f.log.Warn().Err(err).Str("stage", "stream").Dur("backoff", wait).Msg("binance feed disconnected, retrying")
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// consumeBinanceStream reads trades until the connection breaks. connected reports whether
// the dial succeeded, which resets the failure budget.
func (f *Feed) consumeBinanceStream(ctx context.Context, url string, p Processor) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: dial: %v", ErrTransientFeed, err)
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Str("symbol", f.symbol).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				// Unblocks ReadMessage on shutdown.
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("%w: read: %v", ErrTransientFeed, err)
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		sample, symbol, err := parseBinanceTrade(message)
		if err != nil {
			f.log.Warn().Err(err).Str("stage", "decode").Msg("skipping binance message")
			continue
		}
		if symbol != "" && symbol != f.symbol {
			continue
		}
		f.deliver(ctx, p, ProviderBinance, sample)
	}
}

func parseBinanceTrade(message []byte) (signal.Sample, string, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return signal.Sample{}, "", fmt.Errorf("decode envelope: %w", err)
	}
	px, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		return signal.Sample{}, "", fmt.Errorf("invalid price %q: %w", env.Data.Price, err)
	}
	if env.Data.TradeTime <= 0 {
		return signal.Sample{}, "", fmt.Errorf("missing trade time")
	}
	ts := time.UnixMilli(env.Data.TradeTime).UTC().Format(time.RFC3339Nano)
	return signal.Sample{Timestamp: ts, Price: px}, parseBinanceSymbol(env.Stream), nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
