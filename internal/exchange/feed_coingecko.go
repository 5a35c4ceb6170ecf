package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crossbot-go/internal/metrics"
	"crossbot-go/internal/signal"
)

type coinGeckoResponse struct {
	MarketData *coinGeckoMarketData `json:"market_data"`
}

type coinGeckoMarketData struct {
	CurrentPrice map[string]float64 `json:"current_price"`
	LastUpdated  string             `json:"last_updated"`
}

func (f *Feed) runCoinGecko(ctx context.Context, p Processor) error {
	f.log.Info().Str("provider", ProviderCoinGecko).Str("coin", f.coin).Dur("interval", f.pollInterval).Msg("starting live polling")
	if err := f.pollCoinGecko(ctx, p); err != nil {
		return err
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.pollCoinGecko(ctx, p); err != nil {
				return err
			}
		}
	}
}

func (f *Feed) pollCoinGecko(ctx context.Context, p Processor) error {
	sample, err := f.fetchCoinGeckoWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.FeedErrorsTotal.WithLabelValues("fatal").Inc()
		f.log.Error().Err(err).Str("stage", "poll").Str("coin", f.coin).Msg("price poll failed")
		return err
	}
	f.deliver(ctx, p, ProviderCoinGecko, sample)
	return nil
}

func (f *Feed) fetchCoinGeckoWithRetry(ctx context.Context) (signal.Sample, error) {
	for attempt := 0; ; attempt++ {
		sample, err := f.fetchCoinGecko(ctx)
		if err == nil {
			return sample, nil
		}
		if ctx.Err() != nil {
			return signal.Sample{}, ctx.Err()
		}
		if !errors.Is(err, ErrTransientFeed) {
			return signal.Sample{}, err
		}
		metrics.FeedErrorsTotal.WithLabelValues("transient").Inc()
		if attempt >= f.maxRetries {
			return signal.Sample{}, fmt.Errorf("%w after %d attempts: %w", ErrFatalFeed, attempt+1, err)
		}
		wait := f.retryDelay(attempt + 1)
		f.log.Warn().Err(err).Str("stage", "poll").Int("retry", attempt+1).Dur("backoff", wait).Msg("price request failed, retrying")
		if err := sleepCtx(ctx, wait); err != nil {
			return signal.Sample{}, err
		}
	}
}

func (f *Feed) fetchCoinGecko(ctx context.Context) (signal.Sample, error) {
	url := fmt.Sprintf("%s/api/v3/coins/%s", f.baseURL, f.coin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return signal.Sample{}, fmt.Errorf("%w: create request: %v", ErrFatalFeed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "crossbot-go/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return signal.Sample{}, fmt.Errorf("%w: http do: %v", ErrTransientFeed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return signal.Sample{}, fmt.Errorf("%w: unexpected status %d", ErrTransientFeed, resp.StatusCode)
	default:
		return signal.Sample{}, fmt.Errorf("%w: unexpected status %d", ErrFatalFeed, resp.StatusCode)
	}

	var payload coinGeckoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return signal.Sample{}, fmt.Errorf("%w: decode response: %v", ErrFatalFeed, err)
	}
	return parseCoinGecko(payload)
}

func parseCoinGecko(payload coinGeckoResponse) (signal.Sample, error) {
	if payload.MarketData == nil {
		return signal.Sample{}, fmt.Errorf("%w: response missing market_data", ErrFatalFeed)
	}
	price, ok := payload.MarketData.CurrentPrice["usd"]
	if !ok {
		return signal.Sample{}, fmt.Errorf("%w: response missing current_price.usd", ErrFatalFeed)
	}
	ts := strings.TrimSpace(payload.MarketData.LastUpdated)
	if ts == "" {
		return signal.Sample{}, fmt.Errorf("%w: response missing last_updated", ErrFatalFeed)
	}
	return signal.Sample{Timestamp: ts, Price: price}, nil
}
