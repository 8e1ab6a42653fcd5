package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfellner/marketdash/internal/marketdata"
)

type fakeTickerSource struct {
	tickers []string
	err     error
}

func (f *fakeTickerSource) ActiveTickers(ctx context.Context) ([]string, error) {
	return f.tickers, f.err
}

type fakeFetcher struct {
	bars map[string][]marketdata.DailyBar
	errs map[string]error
	seen []string
}

func (f *fakeFetcher) FetchHistory(ctx context.Context, ticker string, start, end time.Time) ([]marketdata.DailyBar, error) {
	f.seen = append(f.seen, ticker)
	if err, ok := f.errs[ticker]; ok {
		return nil, err
	}
	return f.bars[ticker], nil
}

type fakeStore struct {
	replaced map[string][]marketdata.DailyBar
	cutoffs  map[string]time.Time
	errs     map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		replaced: make(map[string][]marketdata.DailyBar),
		cutoffs:  make(map[string]time.Time),
		errs:     make(map[string]error),
	}
}

func (f *fakeStore) ReplaceHistory(ctx context.Context, ticker string, cutoff time.Time, bars []marketdata.DailyBar) error {
	if err, ok := f.errs[ticker]; ok {
		return err
	}
	f.replaced[ticker] = bars
	f.cutoffs[ticker] = cutoff
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bar(date time.Time, price float64) marketdata.DailyBar {
	d := decimal.NewFromFloat(price)
	v := int64(1000)
	return marketdata.DailyBar{Date: date, Close: &d, AdjustedClose: &d, Volume: &v}
}

func TestRunIngestsEveryTicker(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{bars: map[string][]marketdata.DailyBar{
		"AAPL": {bar(now.AddDate(0, 0, -1), 185)},
		"MSFT": {bar(now.AddDate(0, 0, -1), 410)},
	}}
	store := newFakeStore()

	p := NewPipeline(&fakeTickerSource{tickers: []string{"AAPL", "MSFT"}}, fetcher, store, 5, discardLogger())
	p.now = func() time.Time { return now }

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.UpdatedCount)
	assert.Equal(t, 0, summary.ErrorCount)
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Empty(t, summary.Errors)

	// Retention cutoff is today minus the configured years.
	assert.Equal(t, now.AddDate(-5, 0, 0), store.cutoffs["AAPL"])
	assert.Len(t, store.replaced["MSFT"], 1)
}

func TestRunSkipsFailingTickers(t *testing.T) {
	fetcher := &fakeFetcher{
		bars: map[string][]marketdata.DailyBar{
			"MSFT": {bar(time.Now(), 410)},
		},
		errs: map[string]error{
			"GONE": marketdata.ErrNotFound,
			"FLKY": fmt.Errorf("all retries failed"),
		},
	}
	store := newFakeStore()

	p := NewPipeline(&fakeTickerSource{tickers: []string{"GONE", "FLKY", "MSFT"}}, fetcher, store, 5, discardLogger())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UpdatedCount)
	assert.Equal(t, 2, summary.ErrorCount)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Contains(t, summary.Errors, "ticker not found for GONE")
	assert.Contains(t, summary.Errors, "all retries failed for FLKY")

	// A failed fetch must not touch storage for that ticker.
	assert.NotContains(t, store.replaced, "GONE")
	assert.NotContains(t, store.replaced, "FLKY")
	assert.Contains(t, store.replaced, "MSFT")

	// Every ticker is still attempted, in source order.
	assert.Equal(t, []string{"GONE", "FLKY", "MSFT"}, fetcher.seen)
}

func TestRunCountsStoreFailuresAsSoft(t *testing.T) {
	fetcher := &fakeFetcher{bars: map[string][]marketdata.DailyBar{
		"AAPL": {bar(time.Now(), 185)},
		"MSFT": {bar(time.Now(), 410)},
	}}
	store := newFakeStore()
	store.errs["AAPL"] = fmt.Errorf("upserting bar: connection reset")

	p := NewPipeline(&fakeTickerSource{tickers: []string{"AAPL", "MSFT"}}, fetcher, store, 5, discardLogger())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UpdatedCount)
	assert.Equal(t, 1, summary.ErrorCount)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "for AAPL")
}

func TestRunAbortsWhenTickerSourceFails(t *testing.T) {
	p := NewPipeline(
		&fakeTickerSource{err: fmt.Errorf("connection refused")},
		&fakeFetcher{}, newFakeStore(), 5, discardLogger())

	summary, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "loading ticker set")
}

func TestRunEmptyBarsStillCountsAsUpdated(t *testing.T) {
	fetcher := &fakeFetcher{bars: map[string][]marketdata.DailyBar{"AAPL": {}}}
	store := newFakeStore()

	p := NewPipeline(&fakeTickerSource{tickers: []string{"AAPL"}}, fetcher, store, 3, discardLogger())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UpdatedCount)
	assert.Contains(t, store.replaced, "AAPL")
}
