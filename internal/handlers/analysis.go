package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// LatestPrices handles GET /api/prices/latest
// Query params:
// - limit: number of tickers (default 5)
func (h *Handler) LatestPrices(c echo.Context) error {
	limit := 5
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	prices, err := h.repo.LatestPrices(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("querying latest prices", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to fetch latest prices"})
	}
	return c.JSON(http.StatusOK, prices)
}

// VolumeAnalysis handles GET /api/analysis/volume/:ticker
func (h *Handler) VolumeAnalysis(c echo.Context) error {
	ticker := strings.ToUpper(c.Param("ticker"))

	v, err := h.repo.VolumeAnalysis(c.Request().Context(), ticker)
	if err != nil {
		h.log.Error("querying volume analysis", "ticker", ticker, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to fetch volume analysis"})
	}
	if v == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no price data for " + ticker})
	}
	return c.JSON(http.StatusOK, v)
}

// TechnicalAnalysis handles GET /api/analysis/technical/:ticker
func (h *Handler) TechnicalAnalysis(c echo.Context) error {
	ticker := strings.ToUpper(c.Param("ticker"))

	t, err := h.repo.TechnicalAnalysis(c.Request().Context(), ticker)
	if err != nil {
		h.log.Error("querying technical analysis", "ticker", ticker, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to fetch technical analysis"})
	}
	if t == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no price data for " + ticker})
	}
	return c.JSON(http.StatusOK, t)
}

// Correlations handles GET /api/analysis/correlations?tickers=A,B,C
func (h *Handler) Correlations(c echo.Context) error {
	tickerParam := c.QueryParam("tickers")
	if tickerParam == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tickers parameter is required"})
	}

	tickers := strings.Split(tickerParam, ",")
	for i := range tickers {
		tickers[i] = strings.ToUpper(strings.TrimSpace(tickers[i]))
	}

	pairs, err := h.repo.Correlations(c.Request().Context(), tickers)
	if err != nil {
		h.log.Error("querying correlations", "tickers", tickers, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to fetch correlations"})
	}
	return c.JSON(http.StatusOK, pairs)
}
