package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rfellner/marketdash/internal/marketdata"
	"github.com/rfellner/marketdash/internal/models"
)

// Repository handles database operations for the dashboard.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertCompanies inserts or updates the company registry.
// Returns the number of rows affected.
func (r *Repository) UpsertCompanies(ctx context.Context, companies []models.Company) (int, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range companies {
		batch.Queue(`
			INSERT INTO companies (ticker, name, sector, industry, founding_year, active, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (ticker) DO UPDATE SET
				name = EXCLUDED.name,
				sector = EXCLUDED.sector,
				industry = EXCLUDED.industry,
				founding_year = EXCLUDED.founding_year,
				active = EXCLUDED.active,
				updated_at = NOW()
		`, c.Ticker, c.Name, c.Sector, c.Industry, c.FoundingYear, c.Active)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	count := 0
	for range companies {
		_, err := br.Exec()
		if err != nil {
			return count, fmt.Errorf("upserting company: %w", err)
		}
		count++
	}

	return count, nil
}

// ActiveTickers returns all active tickers from the companies table.
func (r *Repository) ActiveTickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT ticker FROM companies WHERE active = true ORDER BY ticker")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, err
		}
		tickers = append(tickers, ticker)
	}

	return tickers, rows.Err()
}

// CompanyCount returns the number of companies in the database.
func (r *Repository) CompanyCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM companies").Scan(&count)
	return count, err
}

// ReplaceHistory purges price rows for ticker older than cutoff and upserts
// the given bars, all in one transaction. A failure rolls back the whole
// ticker so prior data stays intact.
func (r *Repository) ReplaceHistory(ctx context.Context, ticker string, cutoff time.Time, bars []marketdata.DailyBar) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM price_bars WHERE ticker = $1 AND date < $2",
		ticker, cutoff,
	); err != nil {
		return fmt.Errorf("purging stale bars: %w", err)
	}

	batch := &pgx.Batch{}
	for _, bar := range bars {
		batch.Queue(`
			INSERT INTO price_bars (ticker, date, open, high, low, close, adjusted_close, volume, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (ticker, date) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				adjusted_close = EXCLUDED.adjusted_close,
				volume = EXCLUDED.volume,
				updated_at = NOW()
		`,
			ticker, bar.Date,
			decimalPtr(bar.Open), decimalPtr(bar.High), decimalPtr(bar.Low), decimalPtr(bar.Close),
			decimalPtr(bar.AdjustedClose), bar.Volume,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range bars {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upserting bar: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	return tx.Commit(ctx)
}

// PriceBarCount returns the number of price bars in the database.
func (r *Repository) PriceBarCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM price_bars").Scan(&count)
	return count, err
}

// LatestClose returns the most recent non-null close for ticker, or nil
// when the ticker has no usable rows.
func (r *Repository) LatestClose(ctx context.Context, ticker string) (*decimal.Decimal, error) {
	var latest decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT close FROM price_bars
		WHERE ticker = $1 AND close IS NOT NULL
		ORDER BY date DESC
		LIMIT 1
	`, ticker).Scan(&latest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest close: %w", err)
	}
	return &latest, nil
}

// InsertTransaction records a single transaction.
func (r *Repository) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (id, ticker, type, quantity, purchase_price, purchase_date, portfolio_id, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Ticker, t.Type, t.Quantity, t.PurchasePrice, t.PurchaseDate, t.PortfolioID, t.Comment)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// InsertTransactions records a batch of transactions.
func (r *Repository) InsertTransactions(ctx context.Context, ts []models.Transaction) (int, error) {
	if len(ts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range ts {
		batch.Queue(`
			INSERT INTO transactions (id, ticker, type, quantity, purchase_price, purchase_date, portfolio_id, comment)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, t.ID, t.Ticker, t.Type, t.Quantity, t.PurchasePrice, t.PurchaseDate, t.PortfolioID, t.Comment)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	count := 0
	for range ts {
		if _, err := br.Exec(); err != nil {
			return count, fmt.Errorf("inserting transaction: %w", err)
		}
		count++
	}

	return count, nil
}

// ListTransactions returns all transactions for a portfolio, newest first.
func (r *Repository) ListTransactions(ctx context.Context, portfolioID int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ticker, type, quantity, purchase_price, purchase_date, portfolio_id, comment, created_at
		FROM transactions
		WHERE portfolio_id = $1
		ORDER BY purchase_date DESC, created_at DESC
	`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ts []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Ticker, &t.Type, &t.Quantity, &t.PurchasePrice,
			&t.PurchaseDate, &t.PortfolioID, &t.Comment, &t.CreatedAt); err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}

	return ts, rows.Err()
}

// PortfolioSummary derives per-ticker position aggregates from the
// transactions table joined against the latest close per ticker.
func (r *Repository) PortfolioSummary(ctx context.Context, portfolioID int) ([]models.PortfolioPosition, error) {
	rows, err := r.pool.Query(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (ticker) ticker, close
			FROM price_bars
			WHERE close IS NOT NULL
			ORDER BY ticker, date DESC
		), positions AS (
			SELECT t.ticker,
				SUM(CASE WHEN t.type = 'BUY' THEN t.quantity ELSE -t.quantity END) AS current_quantity,
				SUM(CASE WHEN t.type = 'BUY' THEN t.quantity * t.purchase_price ELSE -t.quantity * t.purchase_price END) AS total_invested
			FROM transactions t
			WHERE t.portfolio_id = $1
			GROUP BY t.ticker
		)
		SELECT p.ticker,
			p.current_quantity,
			p.total_invested,
			COALESCE(p.current_quantity * l.close, 0) AS market_value,
			COALESCE(p.current_quantity * l.close, 0) - p.total_invested AS total_profit_loss,
			CASE WHEN p.total_invested <> 0
				THEN ROUND((COALESCE(p.current_quantity * l.close, 0) - p.total_invested) / p.total_invested * 100, 2)
				ELSE 0
			END AS roi_percentage
		FROM positions p
		LEFT JOIN latest l ON l.ticker = p.ticker
		ORDER BY p.ticker
	`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.PortfolioPosition
	for rows.Next() {
		var p models.PortfolioPosition
		if err := rows.Scan(&p.Ticker, &p.CurrentQuantity, &p.TotalInvested,
			&p.MarketValue, &p.TotalProfitLoss, &p.ROIPercentage); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// decimalPtr converts a *decimal.Decimal to interface{} for database insertion.
func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}
