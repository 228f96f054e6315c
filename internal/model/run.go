package model

import "time"

// RunStatus represents the state of a command run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one invocation of a pipeline stage.
type Run struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Input     string    `json:"input"`
	Status    RunStatus `json:"status"`
	Stats     RunStats  `json:"stats"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStats counts what a stage did.
type RunStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Progress is a per-tract checkpoint for a collect stage. Values holds the
// stage's collected columns so a rerun can restore them without calling
// the API again.
type Progress struct {
	Stage       string             `json:"stage"`
	TractID     string             `json:"tract_id"`
	Values      map[string]float64 `json:"values"`
	CollectedAt time.Time          `json:"collected_at"`
}
