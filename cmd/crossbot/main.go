// Binary crossbot runs the moving-average crossover engine against a live feed or a historical replay.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"crossbot-go/internal/config"
	"crossbot-go/internal/exchange"
	"crossbot-go/internal/execution"
	"crossbot-go/internal/metrics"
	"crossbot-go/internal/notify"
	"crossbot-go/internal/paper"
	"crossbot-go/internal/signal"
	"crossbot-go/internal/strategy"
	"crossbot-go/internal/util"
)

var version = "1.0.0"

type flags struct {
	configPath     string
	backtest       bool
	historicalData string
	smaShort       int
	smaLong        int
	stopLoss       float64
	telegramToken  string
	telegramChatID string
	feed           string
	logLevel       string
	pretty         bool
	metricsAddr    string
	decisions      string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "crossbot",
		Short:         "SMA crossover trading signals with stop-loss and spike alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := root.Flags()
	fs.StringVar(&f.configPath, "config", "", "optional YAML config file")
	fs.BoolVar(&f.backtest, "backtest", false, "replay historical data instead of polling live prices")
	fs.StringVar(&f.historicalData, "historical-data", "historical_prices.csv", "CSV file with timestamp,price records")
	fs.IntVar(&f.smaShort, "sma-short", 5, "short SMA window")
	fs.IntVar(&f.smaLong, "sma-long", 20, "long SMA window")
	fs.Float64Var(&f.stopLoss, "stop-loss", 5.0, "stop-loss threshold in percent")
	fs.StringVar(&f.telegramToken, "telegram-token", "", "Telegram bot token (env "+config.EnvTelegramToken+")")
	fs.StringVar(&f.telegramChatID, "telegram-chat-id", "", "Telegram chat id (env "+config.EnvTelegramChatID+")")
	fs.StringVar(&f.feed, "feed", config.ProviderCoinGecko, "live feed provider: coingecko or binance")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level")
	fs.BoolVar(&f.pretty, "pretty", false, "human-readable console logs")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fs.StringVar(&f.decisions, "decisions", "", "append decisions to this JSONL file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "crossbot version %s\n", version)
		},
	})
	return root
}

// resolveConfig layers defaults, the optional YAML file, the environment and explicitly set flags.
func resolveConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("backtest") {
		cfg.Backtest.Enabled = f.backtest
	}
	if changed("historical-data") {
		cfg.Backtest.HistoricalData = f.historicalData
	}
	if changed("sma-short") {
		cfg.Strategy.SMAShort = f.smaShort
	}
	if changed("sma-long") {
		cfg.Strategy.SMALong = f.smaLong
	}
	if changed("stop-loss") {
		cfg.Strategy.StopLoss = f.stopLoss
	}
	if changed("telegram-token") {
		cfg.Notify.TelegramToken = f.telegramToken
	}
	if changed("telegram-chat-id") {
		cfg.Notify.TelegramChatID = f.telegramChatID
	}
	if changed("feed") {
		cfg.Feed.Provider = strings.ToLower(f.feed)
	}
	if changed("log-level") {
		cfg.App.LogLevel = f.logLevel
	}
	if changed("pretty") {
		cfg.App.PrettyLogs = f.pretty
	}
	if changed("metrics-addr") {
		cfg.App.MetricsAddr = f.metricsAddr
	}
	if changed("decisions") {
		cfg.App.DecisionsPath = f.decisions
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config) error {
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.PrettyLogs)
	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()

	if cfg.WindowsInverted() {
		log.Warn().Int("sma_short", cfg.Strategy.SMAShort).Int("sma_long", cfg.Strategy.SMALong).Msg("sma_long should exceed sma_short for a meaningful crossover")
	}

	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	journal := paper.NewJournal(64)
	recorders := paper.Tee{journal}
	if cfg.App.DecisionsPath != "" {
		rec, err := paper.NewJSONLRecorder(cfg.App.DecisionsPath, runID)
		if err != nil {
			return err
		}
		defer rec.Close()
		recorders = append(recorders, rec)
	}

	sink := notify.New(
		notify.Credentials{Token: cfg.Notify.TelegramToken, ChatID: cfg.Notify.TelegramChatID},
		log,
		notify.WithBaseURL(cfg.Notify.BaseURL),
		notify.WithTimeout(time.Duration(cfg.Notify.TimeoutMs)*time.Millisecond),
	)
	if cfg.Notify.StartupMessage {
		sink.Notify(ctx, "Trading bot started!")
	}

	engine := strategy.NewEngine(strategy.Params{
		ShortWindow:       cfg.Strategy.SMAShort,
		LongWindow:        cfg.Strategy.SMALong,
		StopLossPct:       cfg.Strategy.StopLoss,
		SpikeThresholdPct: cfg.Strategy.SpikeThresholdPct,
		SpikeMinSamples:   cfg.Strategy.SpikeMinSamples,
	}, execution.NewExecutor(log, sink, recorders), log)

	if cfg.Backtest.Enabled {
		return runBacktest(ctx, cfg, engine, journal, log)
	}
	return runLive(ctx, cfg, engine, log)
}

func runBacktest(ctx context.Context, cfg *config.Config, engine *strategy.Engine, journal *paper.Journal, log zerolog.Logger) error {
	log.Info().Str("file", cfg.Backtest.HistoricalData).Msg("starting BACKTEST mode")
	stats, err := exchange.ReplayFile(ctx, cfg.Backtest.HistoricalData, engine, log)
	if err != nil {
		return err
	}
	counts := journal.Counts()
	log.Info().
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("rejected", stats.Rejected).
		Int("buys", counts[signal.Buy]).
		Int("sells", counts[signal.Sell]).
		Int("stop_losses", counts[signal.StopLoss]).
		Int("alerts", counts[signal.SpikeAlert]).
		Float64("final_profit", engine.RealizedProfit()).
		Msgf("Backtest complete. Final profit: $%.2f", engine.RealizedProfit())
	return nil
}

func runLive(ctx context.Context, cfg *config.Config, engine *strategy.Engine, log zerolog.Logger) error {
	log.Info().Str("provider", cfg.Feed.Provider).Msg("starting LIVE trading mode")
	feed := exchange.NewFeed(cfg.Feed.Provider, log,
		exchange.WithPollInterval(time.Duration(cfg.Feed.PollInterval)*time.Millisecond),
		exchange.WithCoinGecko(cfg.Feed.BaseURL, cfg.Feed.Coin),
		exchange.WithBinanceStream(cfg.Feed.StreamURL, cfg.Feed.Symbol),
		exchange.WithRetry(cfg.Feed.MaxRetries, time.Duration(cfg.Feed.RetryBackoff)*time.Millisecond),
		exchange.WithRequestTimeout(time.Duration(cfg.Feed.RequestTimeout)*time.Millisecond),
	)
	err := feed.Run(ctx, engine)
	if errors.Is(err, context.Canceled) {
		log.Info().Float64("realized_profit", engine.RealizedProfit()).Msg("shutting down")
		return nil
	}
	return err
}
