package resilience

import (
	"time"
)

// DLQEntry is a tract whose collection failed for one stage.
type DLQEntry struct {
	ID           string    `json:"id"`
	Stage        string    `json:"stage"`
	TractID      string    `json:"tract_id"`
	City         string    `json:"city,omitempty"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter selects dead letter entries.
type DLQFilter struct {
	Stage     string `json:"stage,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// NewDLQEntry builds an entry for a failed tract. The next retry is scheduled
// using the retry backoff for the first attempt.
func NewDLQEntry(stage, tractID, city string, err error, maxRetries int, now time.Time) DLQEntry {
	return DLQEntry{
		Stage:        stage,
		TractID:      tractID,
		City:         city,
		Error:        err.Error(),
		ErrorType:    ClassifyError(err),
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(Backoff(0, DefaultRetryConfig())),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// CanRetry reports whether the entry has retries left. Permanent failures
// are never retried automatically.
func (e *DLQEntry) CanRetry() bool {
	return e.ErrorType != "permanent" && e.RetryCount < e.MaxRetries
}

// ClassifyError returns "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
