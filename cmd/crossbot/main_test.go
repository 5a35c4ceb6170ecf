package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"crossbot-go/internal/config"
)

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	t.Setenv(config.EnvTelegramToken, "env-token")
	t.Setenv(config.EnvTelegramChatID, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "crossbot.yaml")
	file := config.Default()
	file.Strategy.SMAShort = 7
	file.Strategy.SMALong = 30
	file.Strategy.StopLoss = 3
	if err := config.Save(path, file); err != nil {
		t.Fatalf("save: %v", err)
	}

	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--sma-short", "4", "--backtest", "--telegram-chat-id", "42"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	f := flags{
		configPath:     path,
		smaShort:       4,
		backtest:       true,
		historicalData: "historical_prices.csv",
		telegramChatID: "42",
	}
	got, err := resolveConfig(cmd, f)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Strategy.SMAShort != 4 {
		t.Fatalf("expected flag to win for sma_short, got %d", got.Strategy.SMAShort)
	}
	if got.Strategy.SMALong != 30 || got.Strategy.StopLoss != 3 {
		t.Fatalf("expected file values to survive, got %+v", got.Strategy)
	}
	if !got.Backtest.Enabled {
		t.Fatalf("expected backtest enabled")
	}
	if got.Notify.TelegramToken != "env-token" || got.Notify.TelegramChatID != "42" {
		t.Fatalf("unexpected credentials %+v", got.Notify)
	}
}

func TestResolveConfigRejectsBadWindow(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--sma-short", "0"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := resolveConfig(cmd, flags{smaShort: 0}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "crossbot version") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
