package models

import "time"

// GenerationState tracks the lifecycle of one ingestion generation.
type GenerationState string

const (
	GenerationPending   GenerationState = "pending"
	GenerationCommitted GenerationState = "committed"
	GenerationAborted   GenerationState = "aborted"
)

// Run is a named, versioned collection of reports. CurrentGeneration is the
// number of the last committed generation; readers only ever see reports of
// that generation.
type Run struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	CurrentGeneration int64     `json:"current_generation"`
	VersionTag        string    `json:"version_tag,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GenerationInfo describes one generation of a run.
type GenerationInfo struct {
	ID          int64           `json:"id"`
	RunID       int64           `json:"run_id"`
	Number      int64           `json:"number"`
	State       GenerationState `json:"state"`
	VersionTag  string          `json:"version_tag,omitempty"`
	CommittedAt *time.Time      `json:"committed_at,omitempty"`
}

// CommitSummary is returned by a successful commit and counts the status
// transitions that were applied.
type CommitSummary struct {
	RunName    string `json:"run_name"`
	Generation int64  `json:"generation"`
	New        int    `json:"new"`
	Unresolved int    `json:"unresolved"`
	Resolved   int    `json:"resolved"`
	Reopened   int    `json:"reopened"`
	Total      int    `json:"total"`
}
