// Package query exposes the read-side API of the result store: listing
// runs and reports, computing run diffs, and adjusting review statuses.
// It is the boundary a server or CLI front-end talks to.
package query

import (
	"context"

	"github.com/aleister1102/codetriage/internal/blobstore"
	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/dedup"
	"github.com/aleister1102/codetriage/internal/differ"
	"github.com/aleister1102/codetriage/internal/models"
	"github.com/aleister1102/codetriage/internal/reportstore"

	"github.com/rs/zerolog"
)

// ListOptions controls report listing behavior.
type ListOptions struct {
	// Unique collapses reports to one representative per fingerprint.
	// When false, reports are still deduplicated by (fingerprint, analyzer
	// action) so repeated ingestions of the same finding do not show twice.
	Unique bool

	// ActiveOnly restricts the listing to reports whose detection status is
	// active and whose review status is not a suppressing one.
	ActiveOnly bool
}

// DiffOptions controls run comparison behavior.
type DiffOptions struct {
	Unique      bool
	StableOrder bool
}

// Service is the query facade over the report store and differ.
type Service struct {
	store    *reportstore.Store
	differ   *differ.Differ
	comparer *blobstore.Comparer
	logger   zerolog.Logger
}

// ServiceBuilder provides a fluent interface for creating a query Service
type ServiceBuilder struct {
	store  *reportstore.Store
	blobs  *blobstore.Store
	logger zerolog.Logger
}

// NewServiceBuilder creates a new builder
func NewServiceBuilder(logger zerolog.Logger) *ServiceBuilder {
	return &ServiceBuilder{
		logger: logger.With().Str("component", "QueryService").Logger(),
	}
}

// WithReportStore sets the backing report store
func (b *ServiceBuilder) WithReportStore(store *reportstore.Store) *ServiceBuilder {
	b.store = store
	return b
}

// WithBlobStore sets the source blob store, enabling line drift queries
func (b *ServiceBuilder) WithBlobStore(blobs *blobstore.Store) *ServiceBuilder {
	b.blobs = blobs
	return b
}

// Build creates a new Service instance
func (b *ServiceBuilder) Build() (*Service, error) {
	if b.store == nil {
		return nil, common.NewValidationError("store", b.store, "report store cannot be nil")
	}

	d, err := differ.NewDiffer(b.store, b.logger)
	if err != nil {
		return nil, common.WrapError(err, "failed to create differ")
	}

	service := &Service{
		store:  b.store,
		differ: d,
		logger: b.logger,
	}
	if b.blobs != nil {
		service.comparer = blobstore.NewComparer(b.blobs)
	}
	return service, nil
}

// NewService creates a new query Service using builder pattern
func NewService(store *reportstore.Store, logger zerolog.Logger) (*Service, error) {
	return NewServiceBuilder(logger).WithReportStore(store).Build()
}

// GetRun returns run metadata by name.
func (s *Service) GetRun(ctx context.Context, name string) (*models.Run, error) {
	return s.store.GetRun(ctx, name)
}

// ListRuns returns all stored runs.
func (s *Service) ListRuns(ctx context.Context) ([]models.Run, error) {
	return s.store.ListRuns(ctx)
}

// GetGenerations returns the generation history of a run.
func (s *Service) GetGenerations(ctx context.Context, runName string) ([]models.GenerationInfo, error) {
	return s.store.GetGenerations(ctx, runName)
}

// ListReports returns the reports of a run's current generation.
func (s *Service) ListReports(ctx context.Context, runName string, opts ListOptions) ([]models.Report, error) {
	var reports []models.Report
	var err error
	if opts.ActiveOnly {
		reports, err = s.store.GetActiveReports(ctx, runName)
	} else {
		reports, err = s.store.GetReports(ctx, runName)
	}
	if err != nil {
		return nil, err
	}

	reports = dedup.Apply(reports, dedup.Options{Unique: opts.Unique})

	s.logger.Debug().
		Str("run", runName).
		Bool("unique", opts.Unique).
		Int("reports", len(reports)).
		Msg("Reports listed")
	return reports, nil
}

// DiffStoredRuns compares two stored runs and returns the reports in the
// requested diff mode.
func (s *Service) DiffStoredRuns(ctx context.Context, baselineName, newName string, mode models.DiffMode, opts DiffOptions) ([]models.Report, error) {
	baseline, err := s.differ.LoadStoredRun(ctx, baselineName)
	if err != nil {
		return nil, err
	}
	newSet, err := s.differ.LoadStoredRun(ctx, newName)
	if err != nil {
		return nil, err
	}
	return s.diff(ctx, baseline, newSet, mode, opts)
}

// DiffAgainstStored compares a local report set against a stored run.
func (s *Service) DiffAgainstStored(ctx context.Context, baselineName string, local []models.Report, localName string, mode models.DiffMode, opts DiffOptions) ([]models.Report, error) {
	baseline, err := s.differ.LoadStoredRun(ctx, baselineName)
	if err != nil {
		return nil, err
	}
	newSet := differ.NewLocalCollection(localName, local)
	return s.diff(ctx, baseline, newSet, mode, opts)
}

func (s *Service) diff(ctx context.Context, baseline, newSet differ.Collection, mode models.DiffMode, opts DiffOptions) ([]models.Report, error) {
	result, err := s.differ.Compare(ctx, baseline, newSet, differ.CompareOptions{StableOrder: opts.StableOrder})
	if err != nil {
		return nil, err
	}

	reports := result.Reports(mode)
	if opts.Unique {
		reports = dedup.Unique(reports)
	}
	return reports, nil
}

// SourceDrift explains how a report's source context moved between two
// generations of a run: the flagged line on each side plus the text diff
// of the captured source blobs.
type SourceDrift struct {
	Fingerprint  string                    `json:"fingerprint"`
	FilePath     string                    `json:"file_path"`
	BaselineLine int                       `json:"baseline_line"`
	NewLine      int                       `json:"new_line"`
	BlobDiff     *blobstore.BlobDiffResult `json:"blob_diff"`
}

// ExplainLineDrift compares the source captured for a fingerprint in two
// generations of a run. The identity hash ignores line numbers, so this
// is how a reader sees why a stable finding reports a different line.
func (s *Service) ExplainLineDrift(ctx context.Context, runName, fingerprint string, baselineGeneration, newGeneration int64) (*SourceDrift, error) {
	if s.comparer == nil {
		return nil, common.NewValidationError("blobs", nil, "service was built without a blob store")
	}

	run, err := s.store.GetRun(ctx, runName)
	if err != nil {
		return nil, err
	}

	baseReport, err := s.reportInGeneration(ctx, run.ID, baselineGeneration, fingerprint)
	if err != nil {
		return nil, err
	}
	newReport, err := s.reportInGeneration(ctx, run.ID, newGeneration, fingerprint)
	if err != nil {
		return nil, err
	}
	if baseReport.BlobID == "" || newReport.BlobID == "" {
		return nil, common.WrapError(blobstore.ErrBlobNotFound,
			"no source captured for fingerprint "+fingerprint)
	}

	diff, err := s.comparer.CompareBlobs(blobstore.BlobID(baseReport.BlobID), blobstore.BlobID(newReport.BlobID))
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("run", runName).
		Str("fingerprint", fingerprint).
		Bool("identical", diff.IsIdentical).
		Msg("Line drift explained")
	return &SourceDrift{
		Fingerprint:  fingerprint,
		FilePath:     newReport.FilePath,
		BaselineLine: baseReport.Line,
		NewLine:      newReport.Line,
		BlobDiff:     diff,
	}, nil
}

func (s *Service) reportInGeneration(ctx context.Context, runID, number int64, fingerprint string) (*models.Report, error) {
	reports, err := s.store.GetReportsForGeneration(ctx, runID, number)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].Fingerprint == fingerprint {
			return &reports[i], nil
		}
	}
	return nil, common.WrapError(models.ErrRecordNotFound,
		common.NewError("fingerprint %s not present in generation %d", fingerprint, number).Error())
}

// SetReviewStatus records a human review decision for a fingerprint.
func (s *Service) SetReviewStatus(ctx context.Context, fingerprint string, status models.ReviewStatus, message string) error {
	if fingerprint == "" {
		return common.NewValidationError("fingerprint", fingerprint, "fingerprint cannot be empty")
	}
	if err := s.store.SetReviewStatus(ctx, fingerprint, status, message); err != nil {
		return err
	}

	s.logger.Info().
		Str("fingerprint", fingerprint).
		Str("status", string(status)).
		Msg("Review status updated")
	return nil
}

// GetReviewStatus returns the review record for a fingerprint.
func (s *Service) GetReviewStatus(ctx context.Context, fingerprint string) (models.ReviewStatusRecord, error) {
	return s.store.GetReviewStatus(ctx, fingerprint)
}
