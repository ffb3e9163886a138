package metrics

import "time"

// RecentRun is one completed feed run in the operator dashboard's recent
// activity list.
type RecentRun struct {
	RunID       string    `json:"run_id"`
	FeedID      string    `json:"feed_id"`
	FeedName    string    `json:"feed_name"`
	Status      string    `json:"status"`
	RowsWritten int       `json:"rows_written"`
	Quarantined int       `json:"quarantined"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Stats represents aggregated ingest statistics
type Stats struct {
	TotalWritten     int64       `json:"total_written"`
	TotalQuarantined int64       `json:"total_quarantined"`
	TotalErrors      int64       `json:"total_errors"`
	Feeds            []FeedStats `json:"feeds"`
	LastIngest       time.Time   `json:"last_ingest"`
}

// FeedStats represents statistics for a single feed
type FeedStats struct {
	FeedID      string `json:"feed_id"`
	Written     int64  `json:"written"`
	Quarantined int64  `json:"quarantined"`
	Errors      int64  `json:"errors"`
}
