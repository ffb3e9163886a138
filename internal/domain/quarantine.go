package domain

import "time"

// QuarantineStatus represents the holding state of a record that failed
// validation.
type QuarantineStatus string

const (
	QuarantineStatusQuarantined QuarantineStatus = "quarantined"
	QuarantineStatusResolved    QuarantineStatus = "resolved"
	QuarantineStatusDismissed   QuarantineStatus = "dismissed"
)

// Terminal reports whether the quarantined record can no longer change state.
func (s QuarantineStatus) Terminal() bool {
	return s == QuarantineStatusResolved || s == QuarantineStatusDismissed
}

// QuarantinedRecord holds a source record that failed validation, pending
// correction or dismissal.
type QuarantinedRecord struct {
	ID          string            `db:"id"           json:"id"`
	FeedID      string            `db:"feed_id"      json:"feed_id"`
	RunID       string            `db:"run_id"       json:"run_id"`
	RowNumber   int               `db:"row_number"   json:"row_number"`
	Fields      map[string]string `db:"-"            json:"fields"`
	Errors      []BlockingError   `db:"-"            json:"errors"`
	Status      QuarantineStatus  `db:"status"       json:"status"`
	DismissNote *string           `db:"dismiss_note" json:"dismiss_note,omitempty"`
	CreatedAt   time.Time         `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"   json:"updated_at"`
}

// FeedCorrection is a single field-level fix applied to a quarantined
// record. Corrections are append-only; the latest value per field wins
// when reprocessing.
type FeedCorrection struct {
	ID            string    `db:"id"             json:"id"`
	QuarantineID  string    `db:"quarantine_id"  json:"quarantine_id"`
	Field         string    `db:"field"          json:"field"`
	OldValue      string    `db:"old_value"      json:"old_value"`
	NewValue      string    `db:"new_value"      json:"new_value"`
	Author        string    `db:"author"         json:"author"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
}

// EffectiveFields overlays the latest correction per field onto the
// quarantined record's parsed fields. Corrections must be ordered oldest
// first; later entries overwrite earlier ones.
func (q *QuarantinedRecord) EffectiveFields(corrections []FeedCorrection) map[string]string {
	merged := make(map[string]string, len(q.Fields)+len(corrections))
	for k, v := range q.Fields {
		merged[k] = v
	}
	for i := range corrections {
		merged[corrections[i].Field] = corrections[i].NewValue
	}
	return merged
}
