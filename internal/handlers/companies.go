package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rfellner/marketdash/internal/models"
)

type companyRequest struct {
	Ticker       string `json:"ticker"`
	Name         string `json:"name"`
	Sector       string `json:"sector"`
	Industry     string `json:"industry"`
	FoundingYear *int   `json:"founding_year"`
	Active       *bool  `json:"active"`
}

// SyncCompanies handles POST /api/companies/sync
// Upserts the tracked-company registry from a JSON array. Tickers absent
// from the payload are left untouched; deactivation is explicit via
// "active": false.
func (h *Handler) SyncCompanies(c echo.Context) error {
	start := time.Now()

	var reqs []companyRequest
	if err := c.Bind(&reqs); err != nil {
		return c.JSON(http.StatusBadRequest, JobResponse{
			Success: false,
			Message: "request body must be a JSON array of companies",
		})
	}

	companies := make([]models.Company, 0, len(reqs))
	for i, req := range reqs {
		ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
		if ticker == "" {
			return c.JSON(http.StatusBadRequest, JobResponse{
				Success: false,
				Message: fmt.Sprintf("entry %d: ticker is required", i),
			})
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		companies = append(companies, models.Company{
			Ticker:       ticker,
			Name:         req.Name,
			Sector:       req.Sector,
			Industry:     req.Industry,
			FoundingYear: req.FoundingYear,
			Active:       active,
		})
	}

	count, err := h.repo.UpsertCompanies(c.Request().Context(), companies)
	if err != nil {
		h.log.Error("syncing companies", "error", err)
		return c.JSON(http.StatusInternalServerError, JobResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to sync companies: %v", err),
		})
	}

	return c.JSON(http.StatusOK, JobResponse{
		Success: true,
		Message: fmt.Sprintf("Synced %d companies", count),
		Count:   count,
		Elapsed: time.Since(start).String(),
	})
}
