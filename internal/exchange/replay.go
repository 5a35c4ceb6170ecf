package exchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"crossbot-go/internal/metrics"
	"crossbot-go/internal/signal"
)

const sourceReplay = "replay"

// ReplayStats summarizes a backtest pass.
type ReplayStats struct {
	Processed int
	Skipped   int // malformed records
	Rejected  int // well-formed records the engine refused
}

// ReplayFile opens path and replays it through p.
func ReplayFile(ctx context.Context, path string, p Processor, log zerolog.Logger) (ReplayStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("open historical data: %w", err)
	}
	defer file.Close()
	return Replay(ctx, file, p, log.With().Str("file", path).Logger())
}

// Replay reads CSV records with a header naming "timestamp" and "price" columns and calls p once per
// record, in file order. Malformed records are logged and skipped; only a missing header or a read
// failure of the underlying stream aborts the run.
func Replay(ctx context.Context, r io.Reader, p Processor, log zerolog.Logger) (ReplayStats, error) {
	var stats ReplayStats
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return stats, fmt.Errorf("%w: missing header row", ErrRecordParse)
		}
		return stats, fmt.Errorf("read header: %w", err)
	}
	tsIdx, pxIdx, err := locateColumns(header)
	if err != nil {
		return stats, err
	}

	log.Info().Msg("starting backtest replay")
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			stats.Skipped++
			log.Error().Err(err).Str("stage", "replay").Int("line", parseErr.Line).Msg("skipping malformed record")
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("read record: %w", err)
		}

		line, _ := reader.FieldPos(0)
		sample, err := parseRecord(record, tsIdx, pxIdx)
		if err != nil {
			stats.Skipped++
			log.Error().Err(err).Str("stage", "replay").Int("line", line).Msg("skipping malformed record")
			continue
		}

		metrics.SamplesTotal.WithLabelValues(sourceReplay).Inc()
		if _, err := p.Process(ctx, sample); err != nil {
			stats.Rejected++
			log.Warn().Err(err).Str("stage", "replay").Int("line", line).Str("ts", sample.Timestamp).Msg("sample rejected")
			continue
		}
		stats.Processed++
	}
	return stats, nil
}

func locateColumns(header []string) (int, int, error) {
	tsIdx, pxIdx := -1, -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch name {
		case "timestamp":
			tsIdx = i
		case "price":
			pxIdx = i
		}
	}
	if tsIdx < 0 || pxIdx < 0 {
		return 0, 0, fmt.Errorf("%w: header %v needs timestamp and price columns", ErrRecordParse, header)
	}
	return tsIdx, pxIdx, nil
}

func parseRecord(record []string, tsIdx, pxIdx int) (signal.Sample, error) {
	if tsIdx >= len(record) || pxIdx >= len(record) {
		return signal.Sample{}, fmt.Errorf("%w: expected at least %d fields, got %d", ErrRecordParse, max(tsIdx, pxIdx)+1, len(record))
	}
	ts := strings.TrimSpace(record[tsIdx])
	if ts == "" {
		return signal.Sample{}, fmt.Errorf("%w: empty timestamp", ErrRecordParse)
	}
	raw := strings.TrimSpace(record[pxIdx])
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return signal.Sample{}, fmt.Errorf("%w: price %q: %v", ErrRecordParse, raw, err)
	}
	return signal.Sample{Timestamp: ts, Price: price}, nil
}
