package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// UpdatePrices handles POST /api/stock-prices/update
// Runs the ingestion pipeline synchronously and returns its summary.
// Per-ticker failures are reported in the body; only a run-level failure
// (e.g. unreachable ticker source) produces a 500.
func (h *Handler) UpdatePrices(c echo.Context) error {
	start := time.Now()
	h.log.Info("price ingestion triggered via API")

	summary, err := h.pipeline.Run(c.Request().Context())
	if err != nil {
		h.log.Error("ingestion run failed", "error", err)
		return c.JSON(http.StatusInternalServerError, JobResponse{
			Success: false,
			Message: fmt.Sprintf("Ingestion run failed: %v", err),
		})
	}

	return c.JSON(http.StatusOK, IngestResponse{
		Success: true,
		Message: fmt.Sprintf("Processed %d tickers: %d updated, %d errors", summary.TotalProcessed, summary.UpdatedCount, summary.ErrorCount),
		Summary: *summary,
		Elapsed: time.Since(start).String(),
	})
}

// Watchlist handles GET /api/watchlist
func (h *Handler) Watchlist(c echo.Context) error {
	entries, err := h.repo.ListWatchlist(c.Request().Context())
	if err != nil {
		h.log.Error("listing watchlist", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to fetch watchlist"})
	}
	return c.JSON(http.StatusOK, entries)
}

// RefreshWatchlist handles POST /api/watchlist/refresh
// Screens for candidates and admits new entries.
func (h *Handler) RefreshWatchlist(c echo.Context) error {
	start := time.Now()

	added, err := h.screener.Refresh(c.Request().Context())
	if err != nil {
		h.log.Error("watchlist refresh failed", "error", err)
		return c.JSON(http.StatusInternalServerError, JobResponse{
			Success: false,
			Message: fmt.Sprintf("Watchlist refresh failed: %v", err),
		})
	}

	return c.JSON(http.StatusOK, JobResponse{
		Success: true,
		Message: fmt.Sprintf("Added %d watchlist entries", added),
		Count:   added,
		Elapsed: time.Since(start).String(),
	})
}

// UpdateWatchlistPrices handles POST /api/watchlist/update-prices
func (h *Handler) UpdateWatchlistPrices(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()

	updated, err := h.maintainer.RefreshPrices(ctx)
	if err != nil {
		h.log.Error("watchlist price refresh failed", "error", err)
		return c.JSON(http.StatusInternalServerError, JobResponse{
			Success: false,
			Message: fmt.Sprintf("Price refresh failed: %v", err),
		})
	}
	if _, err := h.maintainer.RecomputeChange(ctx); err != nil {
		h.log.Error("watchlist change recompute failed", "error", err)
		return c.JSON(http.StatusInternalServerError, JobResponse{
			Success: false,
			Message: fmt.Sprintf("Change recompute failed: %v", err),
		})
	}

	return c.JSON(http.StatusOK, JobResponse{
		Success: true,
		Message: fmt.Sprintf("Refreshed %d watchlist entries", updated),
		Count:   updated,
		Elapsed: time.Since(start).String(),
	})
}

// CleanupWatchlist handles POST /api/watchlist/cleanup
func (h *Handler) CleanupWatchlist(c echo.Context) error {
	start := time.Now()

	removed, err := h.maintainer.Cleanup(c.Request().Context())
	if err != nil {
		h.log.Error("watchlist cleanup failed", "error", err)
		return c.JSON(http.StatusInternalServerError, JobResponse{
			Success: false,
			Message: fmt.Sprintf("Cleanup failed: %v", err),
		})
	}

	return c.JSON(http.StatusOK, JobResponse{
		Success: true,
		Message: fmt.Sprintf("Removed %d watchlist entries", removed),
		Count:   removed,
		Elapsed: time.Since(start).String(),
	})
}
