package models

// DiffMode selects which category of a run diff the caller wants.
type DiffMode string

const (
	DiffModeNew        DiffMode = "new"
	DiffModeResolved   DiffMode = "resolved"
	DiffModeUnresolved DiffMode = "unresolved"
)

// ParseDiffMode converts a string into a DiffMode.
func ParseDiffMode(s string) (DiffMode, bool) {
	switch DiffMode(s) {
	case DiffModeNew, DiffModeResolved, DiffModeUnresolved:
		return DiffMode(s), true
	default:
		return "", false
	}
}

// RunDiffResult holds the outcome of comparing two report collections.
// Each slice contains the representative reports of the category, one per
// fingerprint, taken from the side that defines the category (new and
// unresolved from the new side, resolved from the baseline side).
type RunDiffResult struct {
	BaselineName string   `json:"baseline_name,omitempty"`
	NewName      string   `json:"new_name,omitempty"`
	New          []Report `json:"new"`
	Resolved     []Report `json:"resolved"`
	Unresolved   []Report `json:"unresolved"`
}

// Reports returns the category selected by mode.
func (r *RunDiffResult) Reports(mode DiffMode) []Report {
	switch mode {
	case DiffModeNew:
		return r.New
	case DiffModeResolved:
		return r.Resolved
	case DiffModeUnresolved:
		return r.Unresolved
	default:
		return nil
	}
}
