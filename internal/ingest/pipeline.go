// Package ingest implements the periodic price-history ingestion pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rfellner/marketdash/internal/marketdata"
)

// perTickerTimeout bounds one ticker's fetch-and-store cycle so a wedged
// provider call cannot stall the whole run.
const perTickerTimeout = 5 * time.Minute

// TickerSource supplies the set of tracked tickers.
type TickerSource interface {
	ActiveTickers(ctx context.Context) ([]string, error)
}

// HistoryFetcher retrieves daily bars for one ticker and date range.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, ticker string, start, end time.Time) ([]marketdata.DailyBar, error)
}

// PriceStore persists price history, replacing stale rows atomically per
// ticker.
type PriceStore interface {
	ReplaceHistory(ctx context.Context, ticker string, cutoff time.Time, bars []marketdata.DailyBar) error
}

// Summary reports the outcome of one ingestion run. Per-ticker failures are
// soft: they are counted and listed here, never escalated.
type Summary struct {
	UpdatedCount   int      `json:"updated_count"`
	ErrorCount     int      `json:"error_count"`
	TotalProcessed int      `json:"total_processed"`
	Errors         []string `json:"errors,omitempty"`
}

// Pipeline fetches multi-year price history for every tracked ticker and
// upserts it into storage.
type Pipeline struct {
	tickers        TickerSource
	fetcher        HistoryFetcher
	store          PriceStore
	retentionYears int
	log            *slog.Logger

	now func() time.Time // injectable for tests
}

// NewPipeline creates a pipeline retaining retentionYears of history.
func NewPipeline(tickers TickerSource, fetcher HistoryFetcher, store PriceStore, retentionYears int, log *slog.Logger) *Pipeline {
	return &Pipeline{
		tickers:        tickers,
		fetcher:        fetcher,
		store:          store,
		retentionYears: retentionYears,
		log:            log,
		now:            time.Now,
	}
}

// Run ingests history for every tracked ticker sequentially. Failing to load
// the ticker set is a hard error that aborts the run; per-ticker fetch or
// storage failures are recorded in the summary and the run continues.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	tickers, err := p.tickers.ActiveTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ticker set: %w", err)
	}

	end := p.now()
	start := end.AddDate(-p.retentionYears, 0, 0)

	summary := &Summary{TotalProcessed: len(tickers)}
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := p.ingestOne(ctx, ticker, start, end); err != nil {
			summary.ErrorCount++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%v for %s", reason(err), ticker))
			p.log.Warn("skipping ticker", "ticker", ticker, "error", err)
			continue
		}
		summary.UpdatedCount++
	}

	p.log.Info("ingestion run complete",
		"updated", summary.UpdatedCount,
		"errors", summary.ErrorCount,
		"total", summary.TotalProcessed)
	return summary, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, ticker string, start, end time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, perTickerTimeout)
	defer cancel()

	bars, err := p.fetcher.FetchHistory(ctx, ticker, start, end)
	if err != nil {
		return err
	}
	if err := p.store.ReplaceHistory(ctx, ticker, start, bars); err != nil {
		return fmt.Errorf("storing history: %w", err)
	}
	p.log.Debug("ingested history", "ticker", ticker, "bars", len(bars))
	return nil
}

func reason(err error) error {
	if errors.Is(err, marketdata.ErrNotFound) {
		return marketdata.ErrNotFound
	}
	return err
}
