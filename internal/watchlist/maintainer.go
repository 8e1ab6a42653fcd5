package watchlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Maintainer keeps existing watchlist entries current and evicts old ones.
type Maintainer struct {
	store         Store
	daysThreshold int
	log           *slog.Logger

	now func() time.Time
}

// NewMaintainer creates a maintainer evicting entries older than
// daysThreshold days.
func NewMaintainer(store Store, daysThreshold int, log *slog.Logger) *Maintainer {
	return &Maintainer{
		store:         store,
		daysThreshold: daysThreshold,
		log:           log,
		now:           time.Now,
	}
}

// RefreshPrices overwrites every entry's current price with the latest close
// for its ticker. Tickers without price data are left as they were.
func (m *Maintainer) RefreshPrices(ctx context.Context) (int, error) {
	updated, err := m.store.RefreshWatchlistPrices(ctx)
	if err != nil {
		return 0, fmt.Errorf("refreshing prices: %w", err)
	}
	m.log.Info("refreshed watchlist prices", "updated", updated)
	return updated, nil
}

// RecomputeChange recalculates each entry's percent change from the price
// when it was added.
func (m *Maintainer) RecomputeChange(ctx context.Context) (int, error) {
	updated, err := m.store.RecomputeWatchlistChange(ctx)
	if err != nil {
		return 0, fmt.Errorf("recomputing change: %w", err)
	}
	m.log.Info("recomputed watchlist change", "updated", updated)
	return updated, nil
}

// Cleanup deletes entries added strictly more than the threshold ago and
// returns the count removed. An entry exactly at the boundary survives.
func (m *Maintainer) Cleanup(ctx context.Context) (int, error) {
	cutoff := m.now().AddDate(0, 0, -m.daysThreshold)
	removed, err := m.store.DeleteWatchlistOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up watchlist: %w", err)
	}
	m.log.Info("cleaned up watchlist", "removed", removed)
	return removed, nil
}
