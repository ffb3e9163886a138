package metrics

import (
	"context"
)

// Tracker is the per-feed ingest statistics surface consumed by the
// operator API's stats endpoints.
type Tracker interface {
	// IncrementWritten adds to the written-observation counter for a feed
	IncrementWritten(ctx context.Context, feedID string, n int64) error
	// IncrementQuarantined adds to the quarantined counter for a feed
	IncrementQuarantined(ctx context.Context, feedID string, n int64) error
	// IncrementErrors increments the run-error counter for a feed
	IncrementErrors(ctx context.Context, feedID string) error
	// AddRecentRun pushes a completed run onto the recent activity list
	AddRecentRun(ctx context.Context, run RecentRun) error
	// GetStats returns aggregated statistics for the given feeds
	GetStats(ctx context.Context, feedIDs []string) (*Stats, error)
	// GetRecentRuns returns recently completed runs, newest first
	GetRecentRuns(ctx context.Context, limit int) ([]RecentRun, error)
	// UpdateLastIngest updates the last ingest timestamp
	UpdateLastIngest(ctx context.Context) error
}
