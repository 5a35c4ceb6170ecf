// Package metrics registers the bot's prometheus collectors and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "samples_total", Help: "Price samples delivered by feed drivers"},
		[]string{"source"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Decisions emitted by the engine"},
		[]string{"kind"},
	)
	FeedErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_errors_total", Help: "Feed failures by kind"},
		[]string{"kind"},
	)
	NotificationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notification_failures_total", Help: "Notifications that could not be delivered"},
	)
	RealizedProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "realized_profit", Help: "Cumulative realized profit in quote currency"},
	)
	Position = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "position", Help: "Current position: 0 flat, 1 long"},
	)
)

func init() {
	prometheus.MustRegister(SamplesTotal, DecisionsTotal, FeedErrorsTotal, NotificationFailuresTotal, RealizedProfit, Position)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
