package differ

import (
	"context"
	"sort"

	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/models"
	"github.com/aleister1102/codetriage/internal/reportstore"

	"github.com/rs/zerolog"
)

// Collection is one side of a diff: either a stored run's committed
// generation or a transient, unstored report set (e.g. a local analysis
// directory). Stored collections contain only active reports; transient
// collections are never filtered by review status themselves, but stored
// suppression information still applies to them (suppression is a
// persistent property, not a one-off).
type Collection struct {
	Name    string
	Reports []models.Report
	Stored  bool
}

// NewLocalCollection wraps a transient report set for diffing.
func NewLocalCollection(name string, reports []models.Report) Collection {
	return Collection{Name: name, Reports: reports}
}

// CompareOptions controls diff output shape.
type CompareOptions struct {
	// StableOrder sorts each category by file path, then line. Without it
	// the per-category order is unspecified.
	StableOrder bool
}

// Differ computes new/resolved/unresolved sets between two report
// collections by fingerprint set algebra.
type Differ struct {
	store  *reportstore.Store
	logger zerolog.Logger
}

// DifferBuilder provides a fluent interface for creating a Differ
type DifferBuilder struct {
	store  *reportstore.Store
	logger zerolog.Logger
}

// NewDifferBuilder creates a new builder
func NewDifferBuilder(logger zerolog.Logger) *DifferBuilder {
	return &DifferBuilder{
		logger: logger.With().Str("component", "Differ").Logger(),
	}
}

// WithReportStore sets the report store used to load stored runs and
// suppression information
func (b *DifferBuilder) WithReportStore(store *reportstore.Store) *DifferBuilder {
	b.store = store
	return b
}

// Build creates a new Differ instance
func (b *DifferBuilder) Build() (*Differ, error) {
	if b.store == nil {
		return nil, common.NewValidationError("report_store", b.store, "report store cannot be nil")
	}
	return &Differ{store: b.store, logger: b.logger}, nil
}

// NewDiffer creates a new Differ using builder pattern
func NewDiffer(store *reportstore.Store, logger zerolog.Logger) (*Differ, error) {
	return NewDifferBuilder(logger).WithReportStore(store).Build()
}

// LoadStoredRun loads a run's committed generation as a diff collection.
// Only active reports participate: detection status Resolved/Off/
// Unavailable and review status FalsePositive/Intentional are excluded.
func (d *Differ) LoadStoredRun(ctx context.Context, runName string) (Collection, error) {
	reports, err := d.store.GetActiveReports(ctx, runName)
	if err != nil {
		return Collection{}, common.WrapError(err, "failed to load stored run "+runName)
	}
	return Collection{Name: runName, Reports: reports, Stored: true}, nil
}

// Compare computes the three diff categories between baseline and newSet:
//
//	new        = F(newSet)   - F(baseline)
//	resolved   = F(baseline) - F(newSet)
//	unresolved = F(baseline) ∩ F(newSet)
//
// When either side is stored, fingerprints suppressed by stored review
// status are excluded from every category even if structurally present in
// a transient collection.
func (d *Differ) Compare(ctx context.Context, baseline, newSet Collection, opts CompareOptions) (*models.RunDiffResult, error) {
	suppressed := map[string]models.ReviewStatus{}
	if baseline.Stored || newSet.Stored {
		var err error
		suppressed, err = d.store.ListSuppressedFingerprints(ctx)
		if err != nil {
			return nil, common.WrapError(err, "failed to load suppression information")
		}
	}

	baselineMap := representativeByFingerprint(baseline.Reports)
	newMap := representativeByFingerprint(newSet.Reports)

	result := &models.RunDiffResult{
		BaselineName: baseline.Name,
		NewName:      newSet.Name,
		New:          []models.Report{},
		Resolved:     []models.Report{},
		Unresolved:   []models.Report{},
	}

	for fp, report := range newMap {
		if _, isSuppressed := suppressed[fp]; isSuppressed {
			continue
		}
		if _, inBaseline := baselineMap[fp]; inBaseline {
			result.Unresolved = append(result.Unresolved, report)
		} else {
			result.New = append(result.New, report)
		}
	}

	for fp, report := range baselineMap {
		if _, isSuppressed := suppressed[fp]; isSuppressed {
			continue
		}
		if _, inNew := newMap[fp]; !inNew {
			result.Resolved = append(result.Resolved, report)
		}
	}

	if opts.StableOrder {
		sortByLocation(result.New)
		sortByLocation(result.Resolved)
		sortByLocation(result.Unresolved)
	}

	d.logger.Debug().
		Str("baseline", baseline.Name).
		Str("new_set", newSet.Name).
		Int("new", len(result.New)).
		Int("resolved", len(result.Resolved)).
		Int("unresolved", len(result.Unresolved)).
		Msg("Diff computed")
	return result, nil
}

// representativeByFingerprint picks one deterministic representative
// report per fingerprint: the smallest by (file path, line).
func representativeByFingerprint(reports []models.Report) map[string]models.Report {
	m := make(map[string]models.Report, len(reports))
	for _, report := range reports {
		existing, seen := m[report.Fingerprint]
		if !seen || lessByLocation(report, existing) {
			m[report.Fingerprint] = report
		}
	}
	return m
}

// sortByLocation orders reports by file path, then line, then fingerprint.
func sortByLocation(reports []models.Report) {
	sort.Slice(reports, func(i, j int) bool {
		return lessByLocation(reports[i], reports[j])
	})
}

func lessByLocation(a, b models.Report) bool {
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Fingerprint < b.Fingerprint
}
