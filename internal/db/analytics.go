package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rfellner/marketdash/internal/models"
)

// The queries in this file lean on the database's analytic SQL (DISTINCT ON,
// window functions, CORR) instead of computing indicators in Go.

// LatestPrices returns the most recent close and volume for the first limit
// tickers.
func (r *Repository) LatestPrices(ctx context.Context, limit int) ([]models.LatestPrice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (p.ticker) p.ticker, c.name, p.date, p.close, p.volume
		FROM price_bars p
		JOIN companies c ON c.ticker = p.ticker
		WHERE p.close IS NOT NULL AND p.volume IS NOT NULL
		ORDER BY p.ticker, p.date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []models.LatestPrice
	for rows.Next() {
		var p models.LatestPrice
		if err := rows.Scan(&p.Ticker, &p.Name, &p.Date, &p.Close, &p.Volume); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}

	return prices, rows.Err()
}

// VolumeAnalysis computes the latest volume, trailing-20-day average volume
// and VWAP for one ticker. Returns nil when the ticker has no usable rows.
func (r *Repository) VolumeAnalysis(ctx context.Context, ticker string) (*models.VolumeAnalysis, error) {
	var v models.VolumeAnalysis
	err := r.pool.QueryRow(ctx, `
		WITH recent AS (
			SELECT ticker, date, volume, adjusted_close
			FROM price_bars
			WHERE ticker = $1 AND adjusted_close IS NOT NULL AND volume IS NOT NULL
			ORDER BY date DESC
			LIMIT 20
		)
		SELECT ticker,
			(ARRAY_AGG(volume ORDER BY date DESC))[1] AS volume,
			AVG(volume)::float8 AS avg_volume,
			(SUM(volume * adjusted_close) / NULLIF(SUM(volume), 0))::float8 AS vwap
		FROM recent
		GROUP BY ticker
	`, ticker).Scan(&v.Ticker, &v.Volume, &v.AvgVolume, &v.VWAP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying volume analysis: %w", err)
	}
	return &v, nil
}

// TechnicalAnalysis computes the current price, 20-day price change, SMA20
// and 20-day average volume for one ticker. Returns nil when the ticker has
// no usable rows; the 20-day change is nil until 21 rows exist.
func (r *Repository) TechnicalAnalysis(ctx context.Context, ticker string) (*models.TechnicalAnalysis, error) {
	var t models.TechnicalAnalysis
	err := r.pool.QueryRow(ctx, `
		WITH recent AS (
			SELECT ticker, adjusted_close, volume,
				ROW_NUMBER() OVER (ORDER BY date DESC) AS rn
			FROM price_bars
			WHERE ticker = $1 AND adjusted_close IS NOT NULL
			ORDER BY date DESC
			LIMIT 21
		)
		SELECT ticker,
			(MAX(adjusted_close) FILTER (WHERE rn = 1))::float8 AS current_price,
			ROUND(
				(MAX(adjusted_close) FILTER (WHERE rn = 1) - MAX(adjusted_close) FILTER (WHERE rn = 21))
				/ NULLIF(MAX(adjusted_close) FILTER (WHERE rn = 21), 0) * 100,
			2)::float8 AS price_change_20d,
			(AVG(adjusted_close) FILTER (WHERE rn <= 20))::float8 AS sma20,
			(AVG(volume) FILTER (WHERE rn <= 20))::float8 AS avg_volume
		FROM recent
		GROUP BY ticker
	`, ticker).Scan(&t.Ticker, &t.CurrentPrice, &t.PriceChange20d, &t.SMA20, &t.AvgVolume)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying technical analysis: %w", err)
	}
	return &t, nil
}

// Correlations computes pairwise Pearson correlation of daily returns over
// the trailing 30 days for the given tickers. Pairs with fewer than 24
// overlapping observations are omitted.
func (r *Repository) Correlations(ctx context.Context, tickers []string) ([]models.CorrelationPair, error) {
	rows, err := r.pool.Query(ctx, `
		WITH daily_returns AS (
			SELECT ticker, date,
				(adjusted_close - LAG(adjusted_close) OVER (PARTITION BY ticker ORDER BY date))
				/ NULLIF(LAG(adjusted_close) OVER (PARTITION BY ticker ORDER BY date), 0) AS daily_return
			FROM price_bars
			WHERE ticker = ANY($1)
				AND adjusted_close IS NOT NULL
				AND date >= CURRENT_DATE - INTERVAL '30 days'
		)
		SELECT a.ticker AS ticker1, b.ticker AS ticker2,
			CORR(a.daily_return, b.daily_return)::float8 AS correlation
		FROM daily_returns a
		JOIN daily_returns b ON a.date = b.date AND a.ticker < b.ticker
		GROUP BY a.ticker, b.ticker
		HAVING COUNT(*) >= 24
	`, tickers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []models.CorrelationPair
	for rows.Next() {
		var p models.CorrelationPair
		if err := rows.Scan(&p.Ticker1, &p.Ticker2, &p.Correlation); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}

// ScreenAggregates computes the per-ticker aggregates the watchlist screen
// is evaluated against: trailing one-year 52-week high, average close and
// average volume, plus the latest close and volume. Tickers with null or
// zero aggregates are filtered here so the screener never divides by zero.
// Results are ordered by absolute drawdown from the 52-week high, largest
// first.
func (r *Repository) ScreenAggregates(ctx context.Context) ([]models.CandidateStock, error) {
	rows, err := r.pool.Query(ctx, `
		WITH windowed AS (
			SELECT ticker,
				MAX(high) AS week_high_52,
				AVG(close) AS avg_close,
				AVG(volume) AS avg_volume
			FROM price_bars
			WHERE date >= CURRENT_DATE - INTERVAL '1 year'
				AND adjusted_close IS NOT NULL
			GROUP BY ticker
		), latest AS (
			SELECT DISTINCT ON (ticker) ticker, close AS current_price, volume AS current_volume
			FROM price_bars
			WHERE adjusted_close IS NOT NULL
			ORDER BY ticker, date DESC
		)
		SELECT w.ticker, c.name, c.sector, c.industry,
			w.week_high_52, w.avg_close, w.avg_volume,
			l.current_price, l.current_volume
		FROM windowed w
		JOIN latest l ON l.ticker = w.ticker
		JOIN companies c ON c.ticker = w.ticker
		WHERE COALESCE(w.week_high_52, 0) > 0
			AND COALESCE(w.avg_close, 0) > 0
			AND COALESCE(w.avg_volume, 0) > 0
			AND l.current_price IS NOT NULL
			AND l.current_volume IS NOT NULL
		ORDER BY w.week_high_52 - l.current_price DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []models.CandidateStock
	for rows.Next() {
		var c models.CandidateStock
		if err := rows.Scan(&c.Ticker, &c.Name, &c.Sector, &c.Industry,
			&c.WeekHigh52, &c.AvgClose, &c.AvgVolume, &c.CurrentPrice, &c.CurrentVolume); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// ListWatchlist returns all watchlist entries, newest first.
func (r *Repository) ListWatchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ticker, user_id, date_added, reason, sector, industry,
			price_when_added, current_price, week_high_52, percent_below_high,
			avg_close, price_change_percent, metrics, updated_at
		FROM watchlist_entries
		ORDER BY date_added DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var e models.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.Ticker, &e.UserID, &e.DateAdded, &e.Reason,
			&e.Sector, &e.Industry, &e.PriceWhenAdded, &e.CurrentPrice, &e.WeekHigh52,
			&e.PercentBelowHigh, &e.AvgClose, &e.PriceChangePercent, &e.Metrics, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// InsertWatchlistEntry records one new watchlist entry.
func (r *Repository) InsertWatchlistEntry(ctx context.Context, e *models.WatchlistEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO watchlist_entries (
			ticker, user_id, reason, sector, industry,
			price_when_added, current_price, week_high_52, percent_below_high,
			avg_close, metrics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.Ticker, e.UserID, e.Reason, e.Sector, e.Industry,
		e.PriceWhenAdded, e.CurrentPrice, e.WeekHigh52, e.PercentBelowHigh,
		e.AvgClose, e.Metrics)
	if err != nil {
		return fmt.Errorf("inserting watchlist entry: %w", err)
	}
	return nil
}

// WatchlistAddedSince reports whether ticker has an entry added at or after
// since. This is the exact complement of DeleteWatchlistOlderThan's strict
// cutoff, so a ticker kept by cleanup still blocks re-admission.
func (r *Repository) WatchlistAddedSince(ctx context.Context, ticker string, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM watchlist_entries WHERE ticker = $1 AND date_added >= $2)",
		ticker, since).Scan(&exists)
	return exists, err
}

// DeleteWatchlistOlderThan removes entries with date_added strictly before
// cutoff and returns the count removed.
func (r *Repository) DeleteWatchlistOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM watchlist_entries WHERE date_added < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting watchlist entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RefreshWatchlistPrices overwrites current_price on every entry with the
// latest close for its ticker. Entries whose ticker has no price data are
// left untouched.
func (r *Repository) RefreshWatchlistPrices(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE watchlist_entries w
		SET current_price = lp.close, updated_at = NOW()
		FROM (
			SELECT DISTINCT ON (ticker) ticker, close
			FROM price_bars
			WHERE close IS NOT NULL
			ORDER BY ticker, date DESC
		) lp
		WHERE lp.ticker = w.ticker
	`)
	if err != nil {
		return 0, fmt.Errorf("refreshing watchlist prices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecomputeWatchlistChange recalculates price_change_percent for every entry
// from current_price and price_when_added, rounded to two decimals. Entries
// with a zero price_when_added are skipped.
func (r *Repository) RecomputeWatchlistChange(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE watchlist_entries
		SET price_change_percent = ROUND((current_price - price_when_added) / price_when_added * 100, 2),
			updated_at = NOW()
		WHERE price_when_added <> 0
	`)
	if err != nil {
		return 0, fmt.Errorf("recomputing watchlist change: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// WatchlistCount returns the number of watchlist entries.
func (r *Repository) WatchlistCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM watchlist_entries").Scan(&count)
	return count, err
}
