package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"crossbot-go/internal/signal"
)

type recordingProcessor struct {
	mu       sync.Mutex
	samples  []signal.Sample
	onSample func(signal.Sample)
}

func (r *recordingProcessor) Process(_ context.Context, s signal.Sample) ([]signal.Decision, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
	if r.onSample != nil {
		r.onSample(s)
	}
	return nil, nil
}

func (r *recordingProcessor) snapshot() []signal.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal.Sample(nil), r.samples...)
}

const coinGeckoBody = `{"id":"bitcoin","market_data":{"current_price":{"usd":64250.5,"eur":59000},"last_updated":"2024-05-01T12:00:00.000Z"}}`

func TestRetryDelayDoubles(t *testing.T) {
	feed := NewFeed(ProviderCoinGecko, zerolog.Nop(), WithRetry(3, 2*time.Second))
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := feed.retryDelay(i + 1); got != w {
			t.Fatalf("retry %d: expected %s got %s", i+1, w, got)
		}
	}
	if got := feed.retryDelay(20); got != maxBackoff {
		t.Fatalf("expected backoff capped at %s, got %s", maxBackoff, got)
	}
}

func TestCoinGeckoPollDeliversSample(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/coins/bitcoin" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(coinGeckoBody))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &recordingProcessor{onSample: func(signal.Sample) { cancel() }}

	feed := NewFeed(ProviderCoinGecko, zerolog.Nop(), WithCoinGecko(server.URL, "Bitcoin"), WithPollInterval(time.Hour))
	err := feed.Run(ctx, proc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	samples := proc.snapshot()
	if len(samples) != 1 {
		t.Fatalf("expected one sample from the immediate poll, got %d", len(samples))
	}
	if samples[0].Price != 64250.5 || samples[0].Timestamp != "2024-05-01T12:00:00.000Z" {
		t.Fatalf("unexpected sample %+v", samples[0])
	}
}

func TestCoinGeckoPollsOnInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(coinGeckoBody))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var seen int32
	proc := &recordingProcessor{onSample: func(signal.Sample) {
		if atomic.AddInt32(&seen, 1) == 3 {
			cancel()
		}
	}}

	feed := NewFeed(ProviderCoinGecko, zerolog.Nop(), WithCoinGecko(server.URL, ""), WithPollInterval(20*time.Millisecond))
	if err := feed.Run(ctx, proc); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation after three polls, got %v", err)
	}
	if n := len(proc.snapshot()); n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
}

func TestCoinGeckoRetriesTransientFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(coinGeckoBody))
	}))
	defer server.Close()

	feed := NewFeed(ProviderCoinGecko, zerolog.Nop(), WithCoinGecko(server.URL, ""), WithRetry(3, time.Millisecond))
	sample, err := feed.fetchCoinGeckoWithRetry(context.Background())
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if sample.Price != 64250.5 {
		t.Fatalf("unexpected price %.2f", sample.Price)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestCoinGeckoExhaustedRetriesAreFatal(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	proc := &recordingProcessor{}
	feed := NewFeed(ProviderCoinGecko, zerolog.Nop(), WithCoinGecko(server.URL, ""), WithRetry(2, time.Millisecond))
	err := feed.Run(context.Background(), proc)
	if !errors.Is(err, ErrFatalFeed) || !errors.Is(err, ErrTransientFeed) {
		t.Fatalf("expected fatal error wrapping the transient cause, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", got)
	}
	if len(proc.snapshot()) != 0 {
		t.Fatalf("no sample should be delivered")
	}
}

func TestCoinGeckoSchemaMismatchIsFatal(t *testing.T) {
	bodies := []string{
		`{"id":"bitcoin"}`,
		`{"market_data":{"current_price":{"eur":1},"last_updated":"x"}}`,
		`{"market_data":{"current_price":{"usd":1}}}`,
		`not json`,
	}
	for _, body := range bodies {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			_, _ = w.Write([]byte(body))
		}))
		feed := NewFeed(ProviderCoinGecko, zerolog.Nop(), WithCoinGecko(server.URL, ""), WithRetry(3, time.Millisecond))
		err := feed.Run(context.Background(), &recordingProcessor{})
		server.Close()
		if !errors.Is(err, ErrFatalFeed) {
			t.Fatalf("body %q: expected ErrFatalFeed, got %v", body, err)
		}
		if hits != 1 {
			t.Fatalf("body %q: schema errors must not be retried, got %d requests", body, hits)
		}
	}
}

func TestCoinGeckoInvalidPriceDoesNotStopLoop(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			_, _ = w.Write([]byte(`{"market_data":{"current_price":{"usd":-1},"last_updated":"t1"}}`))
			return
		}
		_, _ = w.Write([]byte(coinGeckoBody))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	proc := &recordingProcessor{onSample: func(signal.Sample) { cancel() }}
	feed := NewFeed(ProviderCoinGecko, zerolog.Nop(), WithCoinGecko(server.URL, ""), WithPollInterval(10*time.Millisecond))
	if err := feed.Run(ctx, proc); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected loop to continue past rejected sample, got %v", err)
	}
	if n := len(proc.snapshot()); n != 1 {
		t.Fatalf("expected exactly the valid sample to be accepted, got %d", n)
	}
}

func TestUnknownProvider(t *testing.T) {
	feed := NewFeed("kraken", zerolog.Nop())
	if err := feed.Run(context.Background(), &recordingProcessor{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestParseBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"btcusdt@trade":    "BTCUSDT",
		"ethusdt@aggTrade": "ETHUSDT",
		"dogeusdt":         "DOGEUSDT",
		"":                 "",
	}
	for stream, expected := range cases {
		if got := parseBinanceSymbol(stream); got != expected {
			t.Fatalf("expected %s got %s", expected, got)
		}
	}
}

func TestParseBinanceTrade(t *testing.T) {
	sample, symbol, err := parseBinanceTrade([]byte(`{"stream":"btcusdt@trade","data":{"p":"64000.10","q":"0.5","T":1714564800000}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if symbol != "BTCUSDT" || sample.Price != 64000.10 || sample.Timestamp != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected trade %+v %s", sample, symbol)
	}
	if _, _, err := parseBinanceTrade([]byte(`{"data":{"p":"abc","T":1}}`)); err == nil {
		t.Fatalf("expected error for bad price")
	}
	if _, _, err := parseBinanceTrade([]byte(`{"data":{"p":"1"}}`)); err == nil {
		t.Fatalf("expected error for missing trade time")
	}
}

func TestRunBinanceEmitsSamples(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream" || r.URL.Query().Get("streams") != "btcusdt@trade" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		msgs := []string{
			`{"stream":"ethusdt@trade","data":{"p":"3000","q":"1","T":1714564800000}}`,
			`garbage`,
			`{"stream":"btcusdt@trade","data":{"p":"64000.5","q":"1","T":1714564800000}}`,
			`{"stream":"btcusdt@trade","data":{"p":"64001","q":"1","T":1714564801000}}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var seen int32
	proc := &recordingProcessor{onSample: func(signal.Sample) {
		if atomic.AddInt32(&seen, 1) == 2 {
			cancel()
		}
	}}

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewFeed(ProviderBinance, zerolog.Nop(), WithBinanceStream(wsURL, "btcusdt"))
	if err := feed.Run(ctx, proc); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	samples := proc.snapshot()
	if len(samples) != 2 {
		t.Fatalf("expected 2 btc samples, got %+v", samples)
	}
	if samples[0].Price != 64000.5 || samples[1].Price != 64001 {
		t.Fatalf("unexpected samples %+v", samples)
	}
}

func TestRunBinanceGivesUpAfterRetries(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewFeed(ProviderBinance, zerolog.Nop(), WithBinanceStream(wsURL, "BTCUSDT"), WithRetry(2, time.Millisecond))
	err := feed.Run(context.Background(), &recordingProcessor{})
	if !errors.Is(err, ErrFatalFeed) {
		t.Fatalf("expected ErrFatalFeed, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", got)
	}
}
