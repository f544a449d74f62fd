// Package dedup collapses repeated findings for presentation. Both passes
// are pure functions over report slices: they never mutate the report
// store and always produce the same grouping for the same input.
package dedup

import (
	"sort"

	"github.com/aleister1102/codetriage/internal/models"
)

// Options selects which collapsing passes to apply when listing reports.
type Options struct {
	// Unique additionally collapses by fingerprint alone across
	// translation units (and across runs when the input spans runs).
	Unique bool
}

// Deduplicate collapses reports whose fingerprint and originating
// compilation unit are both identical, e.g. the same compile command
// logged twice. The same header finding included from N distinct
// translation units stays as N entries, one per include context; use
// Unique to collapse those too.
func Deduplicate(reports []models.Report) []models.Report {
	return collapse(reports, func(r models.Report) dedupKey {
		return dedupKey{fingerprint: r.Fingerprint, analyzerAction: r.AnalyzerAction}
	})
}

// Unique collapses reports by fingerprint alone: at most one displayed
// entry per distinct fingerprint.
func Unique(reports []models.Report) []models.Report {
	return collapse(reports, func(r models.Report) dedupKey {
		return dedupKey{fingerprint: r.Fingerprint}
	})
}

// Apply runs deduplication and, when requested, uniqueing.
func Apply(reports []models.Report, opts Options) []models.Report {
	result := Deduplicate(reports)
	if opts.Unique {
		result = Unique(result)
	}
	return result
}

type dedupKey struct {
	fingerprint    string
	analyzerAction string
}

// collapse groups reports by key and keeps one representative per group.
// The representative is the group's most severe report, ties broken by
// (file path, line, analyzer action) order, so the result is deterministic
// regardless of input ordering. Output ordering is fingerprint, then
// first-seen file path.
func collapse(reports []models.Report, keyOf func(models.Report) dedupKey) []models.Report {
	groups := make(map[dedupKey]models.Report, len(reports))

	for _, report := range reports {
		key := keyOf(report)
		existing, seen := groups[key]
		if !seen || lessRepresentative(report, existing) {
			groups[key] = report
		}
	}

	result := make([]models.Report, 0, len(groups))
	for _, report := range groups {
		result = append(result, report)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Fingerprint != result[j].Fingerprint {
			return result[i].Fingerprint < result[j].Fingerprint
		}
		return result[i].FilePath < result[j].FilePath
	})
	return result
}

// lessRepresentative orders candidates for group representative. A group
// can carry mixed severities (e.g. a checker reclassified between the
// translation units of one ingestion); the displayed entry is the worst one.
func lessRepresentative(a, b models.Report) bool {
	if cmp := models.CompareSeverity(a.Severity, b.Severity); cmp != 0 {
		return cmp > 0
	}
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.AnalyzerAction < b.AnalyzerAction
}
