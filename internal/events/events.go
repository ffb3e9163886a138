// Package events defines feed lifecycle notifications and their Redis
// Streams publisher. This core only emits; rendering and delivery belong
// to the notification service consuming the stream.
package events

import (
	"time"

	"github.com/google/uuid"
)

// StreamName is the Redis stream feed lifecycle events are published to.
const StreamName = "pricefeed:events:feeds"

// EventType identifies what happened to a feed.
type EventType string

const (
	// FeedFailed fires when a feed crosses the consecutive-failure
	// threshold into failed status.
	FeedFailed EventType = "FEED_FAILED"
	// FeedRecovered fires on the first successful run after FeedFailed.
	FeedRecovered EventType = "FEED_RECOVERED"
	// FeedWarning fires when a run succeeds but quarantined records.
	FeedWarning EventType = "FEED_WARNING"
	// FeedSkippedSubscription fires when a run is skipped because the
	// owning merchant's subscription lapsed past grace.
	FeedSkippedSubscription EventType = "FEED_SKIPPED_SUBSCRIPTION"
)

// Event is one feed lifecycle notification.
type Event struct {
	EventID    uuid.UUID `json:"event_id"`
	EventType  EventType `json:"event_type"`
	FeedID     string    `json:"feed_id"`
	RetailerID string    `json:"retailer_id"`
	MerchantID string    `json:"merchant_id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
