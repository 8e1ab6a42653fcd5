package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Company struct {
	Ticker       string    `json:"ticker"`
	Name         string    `json:"name"`
	Sector       string    `json:"sector"`
	Industry     string    `json:"industry"`
	FoundingYear *int      `json:"founding_year,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriceBar is one daily OHLCV row, unique on (ticker, date). Individual
// fields can be null; rows with a null adjusted close are excluded from
// analytics queries.
type PriceBar struct {
	Ticker        string           `json:"ticker"`
	Date          time.Time        `json:"date"`
	Open          *decimal.Decimal `json:"open"`
	High          *decimal.Decimal `json:"high"`
	Low           *decimal.Decimal `json:"low"`
	Close         *decimal.Decimal `json:"close"`
	AdjustedClose *decimal.Decimal `json:"adjusted_close"`
	Volume        *int64           `json:"volume"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type WatchlistEntry struct {
	ID                 int               `json:"id"`
	Ticker             string            `json:"ticker"`
	UserID             int               `json:"user_id"`
	DateAdded          time.Time         `json:"date_added"`
	Reason             string            `json:"reason"`
	Sector             string            `json:"sector"`
	Industry           string            `json:"industry"`
	PriceWhenAdded     decimal.Decimal   `json:"price_when_added"`
	CurrentPrice       decimal.Decimal   `json:"current_price"`
	WeekHigh52         decimal.Decimal   `json:"week_high_52"`
	PercentBelowHigh   decimal.Decimal   `json:"percent_below_high"`
	AvgClose           decimal.Decimal   `json:"avg_close"`
	PriceChangePercent *decimal.Decimal  `json:"price_change_percent"`
	Metrics            map[string]string `json:"metrics"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	Ticker        string          `json:"ticker"`
	Type          TransactionType `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	PortfolioID   int             `json:"portfolio_id"`
	Comment       string          `json:"comment,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// LatestPrice is one row of the latest-close-per-ticker view.
type LatestPrice struct {
	Ticker string          `json:"ticker"`
	Name   string          `json:"name"`
	Date   time.Time       `json:"date"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// VolumeAnalysis holds the trailing-20-day volume statistics for one ticker.
type VolumeAnalysis struct {
	Ticker    string  `json:"ticker"`
	Volume    int64   `json:"volume"`
	AvgVolume float64 `json:"avg_volume"`
	VWAP      float64 `json:"vwap"`
}

// TechnicalAnalysis holds the 20-day indicator set for one ticker.
type TechnicalAnalysis struct {
	Ticker         string   `json:"ticker"`
	CurrentPrice   float64  `json:"current_price"`
	PriceChange20d *float64 `json:"price_change_20d"`
	SMA20          float64  `json:"sma20"`
	AvgVolume      float64  `json:"avg_volume"`
}

// CorrelationPair is the Pearson correlation of daily returns for one
// ticker pair over the trailing 30 days.
type CorrelationPair struct {
	Ticker1     string  `json:"ticker1"`
	Ticker2     string  `json:"ticker2"`
	Correlation float64 `json:"correlation"`
}

// CandidateStock carries the per-ticker aggregates the watchlist screen is
// evaluated against.
type CandidateStock struct {
	Ticker        string
	Name          string
	Sector        string
	Industry      string
	WeekHigh52    decimal.Decimal
	AvgClose      decimal.Decimal
	AvgVolume     decimal.Decimal
	CurrentPrice  decimal.Decimal
	CurrentVolume decimal.Decimal
}

// PortfolioPosition is the derived per-ticker aggregate over the
// transactions table; nothing here is stored.
type PortfolioPosition struct {
	Ticker          string          `json:"ticker"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	MarketValue     decimal.Decimal `json:"market_value"`
	TotalProfitLoss decimal.Decimal `json:"total_profit_loss"`
	ROIPercentage   decimal.Decimal `json:"roi_percentage"`
}
