// Package handlers wires the HTTP surface: analytics reads, job triggers,
// and transaction entry.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rfellner/marketdash/internal/db"
	"github.com/rfellner/marketdash/internal/ingest"
)

// PipelineRunner triggers one price-ingestion run.
type PipelineRunner interface {
	Run(ctx context.Context) (*ingest.Summary, error)
}

// WatchlistScreener refreshes the watchlist from the screen.
type WatchlistScreener interface {
	Refresh(ctx context.Context) (int, error)
}

// WatchlistMaintainer keeps existing entries current.
type WatchlistMaintainer interface {
	RefreshPrices(ctx context.Context) (int, error)
	RecomputeChange(ctx context.Context) (int, error)
	Cleanup(ctx context.Context) (int, error)
}

// Handler carries the dependencies for all routes.
type Handler struct {
	repo       *db.Repository
	pipeline   PipelineRunner
	screener   WatchlistScreener
	maintainer WatchlistMaintainer
	log        *slog.Logger
}

// New creates a handler set.
func New(repo *db.Repository, pipeline PipelineRunner, screener WatchlistScreener, maintainer WatchlistMaintainer, log *slog.Logger) *Handler {
	return &Handler{
		repo:       repo,
		pipeline:   pipeline,
		screener:   screener,
		maintainer: maintainer,
		log:        log,
	}
}

// JobResponse is the JSON envelope for triggered jobs. Partial failures are
// reported inside it with a 200 status; only structural failures surface as
// a 500.
type JobResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Count   int      `json:"count,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Elapsed string   `json:"elapsed,omitempty"`
}

// IngestResponse is the envelope for the price-ingestion trigger: the same
// success/message/elapsed framing as JobResponse with the full run summary
// embedded.
type IngestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ingest.Summary
	Elapsed string `json:"elapsed,omitempty"`
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
