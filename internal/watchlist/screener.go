// Package watchlist implements candidate screening and maintenance of the
// watchlist table.
package watchlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rfellner/marketdash/internal/models"
)

// Store is the slice of the repository the watchlist components need.
type Store interface {
	ScreenAggregates(ctx context.Context) ([]models.CandidateStock, error)
	WatchlistAddedSince(ctx context.Context, ticker string, since time.Time) (bool, error)
	InsertWatchlistEntry(ctx context.Context, e *models.WatchlistEntry) error
	DeleteWatchlistOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	RefreshWatchlistPrices(ctx context.Context) (int, error)
	RecomputeWatchlistChange(ctx context.Context) (int, error)
}

// Thresholds parameterises the screen. All four conditions must hold for a
// ticker to qualify.
type Thresholds struct {
	MaxBelowHighRatio decimal.Decimal // current price at most this fraction of the 52-week high
	MinBelowHighRatio decimal.Decimal // current price at least this fraction of the 52-week high
	VolumeRatio       decimal.Decimal // current volume at least this multiple of average volume
	PriceFloor        decimal.Decimal // absolute minimum current price
}

// DefaultThresholds returns the standard screen: 25-30% below the 52-week
// high, 50%+ above average volume, and a price above 85.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxBelowHighRatio: decimal.NewFromFloat(0.75),
		MinBelowHighRatio: decimal.NewFromFloat(0.70),
		VolumeRatio:       decimal.NewFromFloat(1.5),
		PriceFloor:        decimal.NewFromInt(85),
	}
}

var hundred = decimal.NewFromInt(100)

// Screener finds tickers passing the screen and admits them to the
// watchlist.
type Screener struct {
	store         Store
	thresholds    Thresholds
	daysThreshold int
	userID        int
	log           *slog.Logger

	now func() time.Time // injectable for tests
}

// NewScreener creates a screener admitting at most one entry per ticker per
// daysThreshold days.
func NewScreener(store Store, thresholds Thresholds, daysThreshold int, log *slog.Logger) *Screener {
	return &Screener{
		store:         store,
		thresholds:    thresholds,
		daysThreshold: daysThreshold,
		userID:        1,
		log:           log,
		now:           time.Now,
	}
}

// FindCandidates returns the tickers currently passing every screen
// condition, ranked by drawdown from the 52-week high. The aggregates come
// from storage already ordered, so filtering preserves the ranking.
func (s *Screener) FindCandidates(ctx context.Context) ([]models.CandidateStock, error) {
	aggregates, err := s.store.ScreenAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading screen aggregates: %w", err)
	}

	var candidates []models.CandidateStock
	for _, a := range aggregates {
		if s.thresholds.Passes(a) {
			candidates = append(candidates, a)
		}
	}
	return candidates, nil
}

// Passes reports whether the aggregates satisfy all four screen conditions.
// Both 52-week-high bounds are inclusive. Zero denominators fail the screen
// rather than dividing.
func (t Thresholds) Passes(c models.CandidateStock) bool {
	if c.WeekHigh52.IsZero() || c.AvgVolume.IsZero() {
		return false
	}
	if c.CurrentPrice.GreaterThan(t.MaxBelowHighRatio.Mul(c.WeekHigh52)) {
		return false
	}
	if c.CurrentPrice.LessThan(t.MinBelowHighRatio.Mul(c.WeekHigh52)) {
		return false
	}
	if c.CurrentVolume.LessThan(t.VolumeRatio.Mul(c.AvgVolume)) {
		return false
	}
	return c.CurrentPrice.GreaterThan(t.PriceFloor)
}

// Refresh purges stale entries, screens for candidates and admits those with
// no entry inside the admission window. Returns the number added.
func (s *Screener) Refresh(ctx context.Context) (int, error) {
	cutoff := s.now().AddDate(0, 0, -s.daysThreshold)

	removed, err := s.store.DeleteWatchlistOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging stale entries: %w", err)
	}
	if removed > 0 {
		s.log.Info("purged stale watchlist entries", "removed", removed)
	}

	candidates, err := s.FindCandidates(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, c := range candidates {
		recent, err := s.store.WatchlistAddedSince(ctx, c.Ticker, cutoff)
		if err != nil {
			return added, fmt.Errorf("checking admission window for %s: %w", c.Ticker, err)
		}
		if recent {
			continue
		}

		entry := buildEntry(c, s.userID)
		if err := s.store.InsertWatchlistEntry(ctx, entry); err != nil {
			return added, fmt.Errorf("adding %s: %w", c.Ticker, err)
		}
		added++
		s.log.Info("added watchlist entry", "ticker", c.Ticker, "reason", entry.Reason)
	}

	return added, nil
}

// buildEntry derives the stored entry fields from screen aggregates. The
// caller has already rejected zero denominators via Passes.
func buildEntry(c models.CandidateStock, userID int) *models.WatchlistEntry {
	percentBelow := c.WeekHigh52.Sub(c.CurrentPrice).Div(c.WeekHigh52).Mul(hundred)
	volumeIncrease := c.CurrentVolume.Sub(c.AvgVolume).Div(c.AvgVolume).Mul(hundred)

	metrics := map[string]string{
		"volumeIncrease": volumeIncrease.StringFixed(2),
	}
	if !c.AvgClose.IsZero() {
		metrics["priceToAvg"] = c.CurrentPrice.Div(c.AvgClose).StringFixed(2)
	}

	return &models.WatchlistEntry{
		Ticker:           c.Ticker,
		UserID:           userID,
		Reason:           fmt.Sprintf("Trading %s%% below 52-week high with %s%% volume increase", percentBelow.StringFixed(2), volumeIncrease.StringFixed(2)),
		Sector:           c.Sector,
		Industry:         c.Industry,
		PriceWhenAdded:   c.CurrentPrice,
		CurrentPrice:     c.CurrentPrice,
		WeekHigh52:       c.WeekHigh52,
		PercentBelowHigh: percentBelow.Round(2),
		AvgClose:         c.AvgClose,
		Metrics:          metrics,
	}
}
