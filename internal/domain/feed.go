package domain

import (
	"fmt"
	"time"
)

// FeedStatus represents the lifecycle state of a configured feed.
type FeedStatus string

const (
	FeedStatusEnabled  FeedStatus = "enabled"
	FeedStatusPaused   FeedStatus = "paused"
	FeedStatusDisabled FeedStatus = "disabled"
	FeedStatusFailed   FeedStatus = "failed"
)

// FeedFormat is a hint for the parser. FormatAuto lets the fetcher's
// content sniffing decide.
type FeedFormat string

const (
	FormatAuto      FeedFormat = "auto"
	FormatDelimited FeedFormat = "delimited"
	FormatJSON      FeedFormat = "json"
	FormatXML       FeedFormat = "xml"
)

// TransportMethod selects how feed content is retrieved.
type TransportMethod string

const (
	TransportHTTP      TransportMethod = "http"
	TransportHTTPBasic TransportMethod = "http_basic"
	TransportFTP       TransportMethod = "ftp"
	TransportSFTP      TransportMethod = "sftp"
	TransportUpload    TransportMethod = "upload"
)

// TransportConfig holds everything the fetcher needs to retrieve a feed.
// Credentials are only used by the authenticated methods.
type TransportConfig struct {
	Method   TransportMethod `json:"method"`
	URL      string          `json:"url"`
	Username string          `json:"username,omitempty"`
	Password string          `json:"password,omitempty"`
	// RemotePath is the file path for FTP/SFTP pulls.
	RemotePath string `json:"remote_path,omitempty"`
}

// consecutiveFailureThreshold is how many transport failures in a row
// move a feed into FeedStatusFailed and trigger a failure notification.
const consecutiveFailureThreshold = 3

// Feed is a configured ingestion source tied to one retailer.
type Feed struct {
	ID                  string          `db:"id"                    json:"id"`
	RetailerID          string          `db:"retailer_id"           json:"retailer_id"`
	MerchantID          *string         `db:"merchant_id"           json:"merchant_id,omitempty"`
	Name                string          `db:"name"                  json:"name"`
	Transport           TransportConfig `db:"-"                     json:"transport"`
	Format              FeedFormat      `db:"format"                json:"format"`
	ScheduleFrequency   time.Duration   `db:"-"                     json:"schedule_frequency"`
	NextRunAt           time.Time       `db:"next_run_at"           json:"next_run_at"`
	ManualRunPending    bool            `db:"manual_run_pending"    json:"manual_run_pending"`
	Status              FeedStatus      `db:"status"                json:"status"`
	ConsecutiveFailures int             `db:"consecutive_failures"  json:"consecutive_failures"`
	LastContentHash     *string         `db:"last_content_hash"     json:"last_content_hash,omitempty"`
	CreatedAt           time.Time       `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"            json:"updated_at"`
}

// NewFeed creates a feed with validation. Frequency must be positive.
func NewFeed(retailerID, name string, transport TransportConfig, frequency time.Duration) (*Feed, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailer_id is required", ErrInvalidFeed)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidFeed)
	}
	if transport.Method == "" {
		return nil, fmt.Errorf("%w: transport method is required", ErrInvalidFeed)
	}
	if frequency <= 0 {
		return nil, fmt.Errorf("%w: schedule frequency must be positive, got %v", ErrInvalidFeed, frequency)
	}

	now := time.Now().UTC()
	return &Feed{
		RetailerID:        retailerID,
		Name:              name,
		Transport:         transport,
		Format:            FormatAuto,
		ScheduleFrequency: frequency,
		NextRunAt:         now,
		Status:            FeedStatusEnabled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// RecordFailure increments the consecutive failure counter and returns
// true when the feed crossed the threshold into FeedStatusFailed.
func (f *Feed) RecordFailure() bool {
	f.ConsecutiveFailures++
	if f.ConsecutiveFailures >= consecutiveFailureThreshold && f.Status != FeedStatusFailed {
		f.Status = FeedStatusFailed
		return true
	}
	return false
}

// RecordSuccess resets the failure counter and returns true when the feed
// recovered from FeedStatusFailed.
func (f *Feed) RecordSuccess() bool {
	f.ConsecutiveFailures = 0
	if f.Status == FeedStatusFailed {
		f.Status = FeedStatusEnabled
		return true
	}
	return false
}

// TriggerKind distinguishes scheduled runs from operator-triggered ones.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// RunStatus represents the state of one feed execution attempt.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// Terminal reports whether the run can no longer change state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusSkipped
}

// FeedRun is one execution attempt of a feed.
type FeedRun struct {
	ID          string      `db:"id"            json:"id"`
	FeedID      string      `db:"feed_id"       json:"feed_id"`
	Trigger     TriggerKind `db:"trigger_kind"  json:"trigger_kind"`
	Status      RunStatus   `db:"status"        json:"status"`
	StartedAt   time.Time   `db:"started_at"    json:"started_at"`
	FinishedAt  *time.Time  `db:"finished_at"   json:"finished_at,omitempty"`
	RowsRead    int         `db:"rows_read"     json:"rows_read"`
	RowsParsed  int         `db:"rows_parsed"   json:"rows_parsed"`
	RowsWritten int         `db:"rows_written"  json:"rows_written"`
	Quarantined int         `db:"quarantined"   json:"quarantined"`
	ErrorCount  int         `db:"error_count"   json:"error_count"`
	ErrorCode   *string     `db:"error_code"    json:"error_code,omitempty"`
	ErrorDetail *string     `db:"error_detail"  json:"error_detail,omitempty"`
}
