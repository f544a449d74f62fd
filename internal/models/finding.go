package models

// BugPathStep is one step of the execution path a checker followed to
// reach the reported defect.
type BugPathStep struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Finding is one raw analyzer result as received from the analysis
// invocation layer, before identity assignment and persistence.
type Finding struct {
	CheckerID      string        `json:"checker_id"`
	FilePath       string        `json:"file_path"`
	Line           int           `json:"line"`
	Column         int           `json:"column,omitempty"`
	Severity       Severity      `json:"severity,omitempty"`
	Message        string        `json:"message"`
	BugPath        []BugPathStep `json:"bug_path,omitempty"`
	AnalyzerAction string        `json:"analyzer_action,omitempty"`
}

// Severity is the checker-assigned severity of a finding
type Severity string

// Severity levels, ordered from most to least severe
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityStyle    Severity = "STYLE"
	SeverityUnknown  Severity = "UNSPECIFIED"
)

// severityRank orders severities so deduplication can surface the worst
// report of a group when the same fingerprint carries mixed severities.
var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityStyle:    1,
	SeverityUnknown:  0,
}

// CompareSeverity returns >0 if a is more severe than b, <0 if less, 0 if equal.
func CompareSeverity(a, b Severity) int {
	return severityRank[a] - severityRank[b]
}
