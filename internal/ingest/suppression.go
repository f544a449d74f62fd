package ingest

import (
	"regexp"
	"strings"

	"github.com/aleister1102/codetriage/internal/fingerprint"
	"github.com/aleister1102/codetriage/internal/models"
)

// Suppression marker keywords recognized in source comments. The marker
// sits in a comment on the line immediately preceding the flagged line:
//
//	// codetriage_suppress [checker-a, checker-b] reason text
//	// codetriage_false_positive [all] noise from generated code
//	// codetriage_intentional [checker-a] we rely on this behavior
//
// codetriage_suppress is the legacy spelling of codetriage_false_positive.
const (
	markerSuppress      = "codetriage_suppress"
	markerFalsePositive = "codetriage_false_positive"
	markerIntentional   = "codetriage_intentional"
	markerConfirmed     = "codetriage_confirmed"
)

// checkerListWildcard matches every checker.
const checkerListWildcard = "all"

var suppressionPattern = regexp.MustCompile(
	`(codetriage_suppress|codetriage_false_positive|codetriage_intentional|codetriage_confirmed)\s*(\[([^\]]*)\])?\s*(.*)`)

// SuppressionMarker is one parsed in-source suppression.
type SuppressionMarker struct {
	Line     int // line of the finding the marker applies to
	Status   models.ReviewStatus
	Checkers []string // empty means all checkers
	Message  string
}

// AppliesTo reports whether the marker covers the given checker.
func (m *SuppressionMarker) AppliesTo(checkerID string) bool {
	if len(m.Checkers) == 0 {
		return true
	}
	for _, c := range m.Checkers {
		if c == checkerListWildcard || strings.EqualFold(c, checkerID) {
			return true
		}
	}
	return false
}

// SuppressionScanner extracts suppression markers from source text.
type SuppressionScanner struct{}

// NewSuppressionScanner creates a new suppression scanner
func NewSuppressionScanner() *SuppressionScanner {
	return &SuppressionScanner{}
}

// Scan returns the suppression markers found in the source, keyed by the
// line they apply to (the line following the comment).
func (ss *SuppressionScanner) Scan(source []byte) map[int][]SuppressionMarker {
	markers := make(map[int][]SuppressionMarker)
	lines := strings.Split(strings.ReplaceAll(string(source), "\r\n", "\n"), "\n")

	for i, line := range lines {
		if !isCommentLine(line) {
			continue
		}
		match := suppressionPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		marker := SuppressionMarker{
			Line:    i + 2, // marker precedes the flagged line
			Status:  markerStatus(match[1]),
			Message: strings.TrimSpace(match[4]),
		}
		if match[3] != "" {
			for _, c := range strings.Split(match[3], ",") {
				c = strings.TrimSpace(c)
				if c != "" && c != checkerListWildcard {
					marker.Checkers = append(marker.Checkers, c)
				}
			}
		}
		markers[marker.Line] = append(markers[marker.Line], marker)
	}
	return markers
}

// Lookup finds the marker covering a finding at the given line and checker.
func (ss *SuppressionScanner) Lookup(markers map[int][]SuppressionMarker, line int, checkerID string) (SuppressionMarker, bool) {
	for _, marker := range markers[line] {
		if marker.AppliesTo(checkerID) {
			return marker, true
		}
	}
	return SuppressionMarker{}, false
}

// markerStatus maps a marker keyword to its review status.
func markerStatus(keyword string) models.ReviewStatus {
	switch keyword {
	case markerIntentional:
		return models.ReviewIntentional
	case markerConfirmed:
		return models.ReviewConfirmed
	default:
		// suppress and false_positive both mean false positive
		return models.ReviewFalsePositive
	}
}

// isCommentLine does a light lexical check that the line is a comment, so
// markers inside string literals or code are ignored.
func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "#")
}

// suppressionForFinding resolves the marker (if any) for one finding given
// the scan of its file.
func suppressionForFinding(scanner *SuppressionScanner, markers map[int][]SuppressionMarker, finding models.Finding, fp fingerprint.Fingerprint) (models.ReviewStatusRecord, bool) {
	marker, found := scanner.Lookup(markers, finding.Line, finding.CheckerID)
	if !found {
		return models.ReviewStatusRecord{}, false
	}
	return models.ReviewStatusRecord{
		Fingerprint: fp.Value,
		Status:      marker.Status,
		Message:     marker.Message,
	}, true
}
