package models

import (
	"errors"
	"time"
)

// ErrRecordNotFound is returned when a record is not found in a store.
var ErrRecordNotFound = errors.New("record not found")

// DetectionStatus is the lifecycle state of a fingerprint within a run.
type DetectionStatus string

const (
	// DetectionNew marks a fingerprint seen for the first time in a run
	DetectionNew DetectionStatus = "new"
	// DetectionUnresolved marks a fingerprint present in both the previous and current generation
	DetectionUnresolved DetectionStatus = "unresolved"
	// DetectionResolved marks a fingerprint that disappeared from the current generation
	DetectionResolved DetectionStatus = "resolved"
	// DetectionReopened marks a previously resolved fingerprint that reappeared
	DetectionReopened DetectionStatus = "reopened"
	// DetectionOff marks a fingerprint whose checker was disabled
	DetectionOff DetectionStatus = "off"
	// DetectionUnavailable marks a fingerprint whose checker no longer exists
	DetectionUnavailable DetectionStatus = "unavailable"
)

// IsActive reports whether a detection status counts as an open, live
// finding. Resolved, off and unavailable reports do not participate in
// diffs or status transitions.
func (ds DetectionStatus) IsActive() bool {
	switch ds {
	case DetectionNew, DetectionUnresolved, DetectionReopened:
		return true
	default:
		return false
	}
}

// NextDetectionStatus computes the status transition for a fingerprint when
// a new generation is committed. previous is the status in the prior
// generation (empty string when the fingerprint was never seen) and
// presentInNew tells whether the new generation contains the fingerprint.
func NextDetectionStatus(previous DetectionStatus, presentInNew bool) DetectionStatus {
	if presentInNew {
		switch previous {
		case "":
			return DetectionNew
		case DetectionResolved:
			return DetectionReopened
		default:
			return DetectionUnresolved
		}
	}
	return DetectionResolved
}

// ReviewStatus is the human or suppression-derived judgment attached to a
// fingerprint. It is sticky: once set it survives re-ingestion.
type ReviewStatus string

const (
	ReviewUnreviewed    ReviewStatus = "unreviewed"
	ReviewConfirmed     ReviewStatus = "confirmed"
	ReviewFalsePositive ReviewStatus = "false_positive"
	ReviewIntentional   ReviewStatus = "intentional"
)

// IsSuppressed reports whether the review status excludes the fingerprint
// from active-report queries and diffs.
func (rs ReviewStatus) IsSuppressed() bool {
	return rs == ReviewFalsePositive || rs == ReviewIntentional
}

// ParseReviewStatus converts a string into a ReviewStatus, defaulting to
// unreviewed for unknown input.
func ParseReviewStatus(s string) (ReviewStatus, bool) {
	switch ReviewStatus(s) {
	case ReviewUnreviewed, ReviewConfirmed, ReviewFalsePositive, ReviewIntentional:
		return ReviewStatus(s), true
	default:
		return ReviewUnreviewed, false
	}
}

// Report is one persisted finding occurrence inside a run generation.
type Report struct {
	ID              int64           `json:"id,omitempty"`
	Fingerprint     string          `json:"fingerprint"`
	CheckerID       string          `json:"checker_id"`
	Severity        Severity        `json:"severity,omitempty"`
	Message         string          `json:"message"`
	FilePath        string          `json:"file_path"`
	Line            int             `json:"line"`
	Column          int             `json:"column,omitempty"`
	BlobID          string          `json:"blob_id,omitempty"`
	AnalyzerAction  string          `json:"analyzer_action,omitempty"`
	BugPath         []BugPathStep   `json:"bug_path,omitempty"`
	DetectionStatus DetectionStatus `json:"detection_status"`
	ReviewStatus    ReviewStatus    `json:"review_status"`
	ReviewMessage   string          `json:"review_message,omitempty"`
}

// IsActive reports whether the report participates in diffs: its detection
// status must be active and its review status must not suppress it.
func (r *Report) IsActive() bool {
	return r.DetectionStatus.IsActive() && !r.ReviewStatus.IsSuppressed()
}

// ReviewStatusRecord is the persistent, fingerprint-scoped review judgment.
type ReviewStatusRecord struct {
	Fingerprint string       `json:"fingerprint"`
	Status      ReviewStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
