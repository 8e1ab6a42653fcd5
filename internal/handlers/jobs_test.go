package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfellner/marketdash/internal/ingest"
)

type fakePipeline struct {
	summary *ingest.Summary
	err     error
}

func (f *fakePipeline) Run(ctx context.Context) (*ingest.Summary, error) {
	return f.summary, f.err
}

type fakeScreener struct {
	added int
	err   error
}

func (f *fakeScreener) Refresh(ctx context.Context) (int, error) {
	return f.added, f.err
}

type fakeMaintainer struct {
	refreshed, recomputed, removed int
	err                            error
}

func (f *fakeMaintainer) RefreshPrices(ctx context.Context) (int, error) {
	return f.refreshed, f.err
}

func (f *fakeMaintainer) RecomputeChange(ctx context.Context) (int, error) {
	return f.recomputed, f.err
}

func (f *fakeMaintainer) Cleanup(ctx context.Context) (int, error) {
	return f.removed, f.err
}

func testHandler(pipeline PipelineRunner, screener WatchlistScreener, maintainer WatchlistMaintainer) *Handler {
	return New(nil, pipeline, screener, maintainer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func invoke(t *testing.T, method, path string, fn echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, fn(c))
	return rec
}

func TestUpdatePricesReturnsSummary(t *testing.T) {
	h := testHandler(&fakePipeline{summary: &ingest.Summary{
		UpdatedCount:   8,
		ErrorCount:     2,
		TotalProcessed: 10,
		Errors:         []string{"ticker not found for GONE"},
	}}, nil, nil)

	rec := invoke(t, http.MethodPost, "/api/stock-prices/update", h.UpdatePrices)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 8, body.UpdatedCount)
	assert.Equal(t, 2, body.ErrorCount)
	assert.Equal(t, 10, body.TotalProcessed)
	assert.Contains(t, body.Errors, "ticker not found for GONE")

	// The summary fields stay flat on the wire, not nested under a key.
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, float64(8), raw["updated_count"])
	assert.Equal(t, float64(10), raw["total_processed"])
}

func TestUpdatePricesStructuralFailureIs500(t *testing.T) {
	h := testHandler(&fakePipeline{err: fmt.Errorf("loading ticker set: connection refused")}, nil, nil)

	rec := invoke(t, http.MethodPost, "/api/stock-prices/update", h.UpdatePrices)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "connection refused")
}

func TestRefreshWatchlistReturnsAddedCount(t *testing.T) {
	h := testHandler(nil, &fakeScreener{added: 3}, nil)

	rec := invoke(t, http.MethodPost, "/api/watchlist/refresh", h.RefreshWatchlist)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.Count)
}

func TestCleanupWatchlist(t *testing.T) {
	h := testHandler(nil, nil, &fakeMaintainer{removed: 4})

	rec := invoke(t, http.MethodPost, "/api/watchlist/cleanup", h.CleanupWatchlist)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 4, body.Count)
}

func TestUpdateWatchlistPricesFailureIs500(t *testing.T) {
	h := testHandler(nil, nil, &fakeMaintainer{err: fmt.Errorf("refreshing prices: timeout")})

	rec := invoke(t, http.MethodPost, "/api/watchlist/update-prices", h.UpdateWatchlistPrices)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
