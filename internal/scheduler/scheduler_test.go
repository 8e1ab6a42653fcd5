package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rfellner/marketdash/internal/ingest"
)

type recordingJobs struct {
	calls   []string
	failing map[string]bool
}

func (r *recordingJobs) call(name string) error {
	r.calls = append(r.calls, name)
	if r.failing[name] {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (r *recordingJobs) Run(ctx context.Context) (*ingest.Summary, error) {
	if err := r.call("ingest"); err != nil {
		return nil, err
	}
	return &ingest.Summary{}, nil
}

func (r *recordingJobs) Refresh(ctx context.Context) (int, error) {
	return 0, r.call("screen")
}

func (r *recordingJobs) RefreshPrices(ctx context.Context) (int, error) {
	return 0, r.call("refresh-prices")
}

func (r *recordingJobs) RecomputeChange(ctx context.Context) (int, error) {
	return 0, r.call("recompute-change")
}

func (r *recordingJobs) Cleanup(ctx context.Context) (int, error) {
	return 0, r.call("cleanup")
}

func testScheduler(jobs *recordingJobs, now time.Time) *Scheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(context.Background(), jobs, jobs, jobs, time.UTC, log)
	s.now = func() time.Time { return now }
	return s
}

func TestWithinBusinessHours(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"weekday mid-morning", time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC), true}, // Monday
		{"weekday at open", time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), true},
		{"weekday before open", time.Date(2026, 8, 31, 8, 59, 0, 0, time.UTC), false},
		{"weekday at close hour", time.Date(2026, 8, 31, 17, 0, 0, 0, time.UTC), true},
		{"weekday evening", time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 9, 6, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withinBusinessHours(tt.t))
		})
	}
}

func TestIngestJobGatedToBusinessHours(t *testing.T) {
	jobs := &recordingJobs{}
	s := testScheduler(jobs, time.Date(2026, 8, 31, 22, 0, 0, 0, time.UTC))
	s.ingestJob()
	assert.Empty(t, jobs.calls)

	s = testScheduler(jobs, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	s.ingestJob()
	assert.Equal(t, []string{"ingest"}, jobs.calls)
}

func TestWatchlistJobOrdering(t *testing.T) {
	jobs := &recordingJobs{}
	s := testScheduler(jobs, time.Date(2026, 8, 31, 16, 30, 0, 0, time.UTC))

	s.watchlistJob()

	// Refresh before screen before cleanup so admission sees fresh data and
	// cleanup never removes what screening just added.
	assert.Equal(t, []string{"refresh-prices", "recompute-change", "screen", "cleanup"}, jobs.calls)
}

func TestWatchlistJobStopsChainOnFailure(t *testing.T) {
	jobs := &recordingJobs{failing: map[string]bool{"screen": true}}
	s := testScheduler(jobs, time.Date(2026, 8, 31, 16, 30, 0, 0, time.UTC))

	s.watchlistJob()

	assert.Equal(t, []string{"refresh-prices", "recompute-change", "screen"}, jobs.calls)
}

func TestRegisterRejectsBadCronSpec(t *testing.T) {
	s := testScheduler(&recordingJobs{}, time.Now())
	assert.Error(t, s.Register("not a cron spec", "30 16 * * 1-5"))
	assert.NoError(t, s.Register("0 * * * 1-5", "30 16 * * 1-5"))
}
