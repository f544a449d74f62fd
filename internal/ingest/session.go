package ingest

import (
	"context"
	"sync"

	"github.com/aleister1102/codetriage/internal/blobstore"
	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/models"
	"github.com/aleister1102/codetriage/internal/reportstore"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Submission is one analyzer client's results for a subset of compilation
// units: the findings plus the source text of the analyzed files.
type Submission struct {
	// AnalyzerAction identifies the compilation unit / compile command
	// the findings came from. Used by deduplication.
	AnalyzerAction string
	Findings       []models.Finding
	// Sources maps file path to file content at analysis time.
	Sources map[string][]byte
}

// Session is one open ingestion of a run generation. Submit may be called
// concurrently by multiple producers; Finalize commits the generation once
// all expected submissions arrived and Abort discards it.
type Session struct {
	ID      string
	RunName string

	coordinator *Coordinator
	generation  *reportstore.Generation
	runMutex    *sync.Mutex
	logger      zerolog.Logger

	mu       sync.Mutex
	expected int
	received int
	closed   bool
}

func newSession(c *Coordinator, runName string, gen *reportstore.Generation, runMutex *sync.Mutex, opts SessionOptions) *Session {
	id := uuid.New().String()
	return &Session{
		ID:          id,
		RunName:     runName,
		coordinator: c,
		generation:  gen,
		runMutex:    runMutex,
		expected:    opts.ExpectedSubmissions,
		logger: c.logger.With().
			Str("session_id", id).
			Str("run", runName).
			Logger(),
	}
}

// Submit buffers one client submission into the open generation. Source
// files are captured into the blob store, findings are fingerprinted and
// upserted, and suppression comments are collected for commit time.
func (s *Session) Submit(ctx context.Context, sub Submission) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return reportstore.ErrGenerationClosed
	}
	s.mu.Unlock()

	if s.coordinator.limiter != nil {
		if err := s.coordinator.limiter.WaitForCapacity(ctx); err != nil {
			return common.WrapError(err, "cancelled while waiting for ingestion capacity")
		}
	}

	blobIDs, markers, err := s.captureSources(sub)
	if err != nil {
		return err
	}

	for _, finding := range sub.Findings {
		if finding.AnalyzerAction == "" {
			finding.AnalyzerAction = sub.AnalyzerAction
		}
		if err := s.addFinding(ctx, finding, sub.Sources[finding.FilePath], blobIDs, markers); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.received++
	received := s.received
	s.mu.Unlock()

	s.logger.Debug().
		Str("analyzer_action", sub.AnalyzerAction).
		Int("findings", len(sub.Findings)).
		Int("received_submissions", received).
		Msg("Submission buffered")
	return nil
}

// SubmitAll fans the submissions out across the configured number of
// submission workers. Submit is safe for concurrent producers, so the
// workers feed the same open generation; the first error stops the
// remaining work and is returned to the caller.
func (s *Session) SubmitAll(ctx context.Context, subs []Submission) error {
	workers := s.coordinator.config.SubmissionWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(subs) {
		workers = len(subs)
	}

	jobs := make(chan Submission, len(subs))
	for _, sub := range subs {
		jobs <- sub
	}
	close(jobs)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for sub := range jobs {
				if workerCtx.Err() != nil {
					return
				}
				if err := s.Submit(workerCtx, sub); err != nil {
					s.logger.Error().Err(err).Int("worker_id", id).
						Str("analyzer_action", sub.AnalyzerAction).
						Msg("Submission worker failed")
					errCh <- err
					cancel()
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	return <-errCh
}

// captureSources stores the submitted source files and scans them for
// suppression markers. Oversized files are skipped but their findings are
// still ingested (without a blob reference).
func (s *Session) captureSources(sub Submission) (map[string]blobstore.BlobID, map[string]map[int][]SuppressionMarker, error) {
	blobIDs := make(map[string]blobstore.BlobID, len(sub.Sources))
	markers := make(map[string]map[int][]SuppressionMarker, len(sub.Sources))

	for path, content := range sub.Sources {
		if max := s.coordinator.config.MaxSourceFileBytes; max > 0 && len(content) > max {
			s.logger.Warn().
				Str("file", path).
				Int("size", len(content)).
				Msg("Source file exceeds size limit, skipping blob capture")
			continue
		}

		id, err := s.coordinator.blobs.Put(path, content)
		if err != nil {
			return nil, nil, common.WrapError(err, "failed to store source blob for "+path)
		}
		blobIDs[path] = id

		if s.coordinator.config.EnableSuppressionComments {
			markers[path] = s.coordinator.scanner.Scan(content)
		}
	}
	return blobIDs, markers, nil
}

// addFinding fingerprints one finding and upserts it into the generation.
func (s *Session) addFinding(ctx context.Context, finding models.Finding, source []byte, blobIDs map[string]blobstore.BlobID, markers map[string]map[int][]SuppressionMarker) error {
	fp := s.coordinator.calculator.Calculate(finding, source)

	bugPath := finding.BugPath
	if max := s.coordinator.config.MaxBugPathSteps; max > 0 && len(bugPath) > max {
		bugPath = bugPath[:max]
	}

	report := models.Report{
		Fingerprint:     fp.Value,
		CheckerID:       finding.CheckerID,
		Severity:        finding.Severity,
		Message:         finding.Message,
		FilePath:        finding.FilePath,
		Line:            finding.Line,
		Column:          finding.Column,
		BlobID:          string(blobIDs[finding.FilePath]),
		AnalyzerAction:  finding.AnalyzerAction,
		BugPath:         bugPath,
		DetectionStatus: models.DetectionNew,
		ReviewStatus:    models.ReviewUnreviewed,
	}

	if err := s.coordinator.store.AddReport(ctx, s.generation, report); err != nil {
		return common.WrapError(err, "failed to add report for "+finding.CheckerID)
	}

	if fileMarkers, ok := markers[finding.FilePath]; ok {
		if record, found := suppressionForFinding(s.coordinator.scanner, fileMarkers, finding, fp); found {
			s.generation.AddSuppression(record.Fingerprint, record.Status, record.Message)
		}
	}
	return nil
}

// Finalize commits the generation. When the orchestrating caller announced
// an expected submission count and fewer arrived (e.g. a client
// disconnected mid-transfer) the generation is aborted instead and
// ErrIngestionIncomplete is returned: partial contributions are never
// committed.
func (s *Session) Finalize(ctx context.Context) (*models.CommitSummary, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, reportstore.ErrGenerationClosed
	}
	s.closed = true
	expected, received := s.expected, s.received
	s.mu.Unlock()

	defer s.coordinator.releaseRun(s.RunName)
	defer s.runMutex.Unlock()

	if expected > 0 && received < expected {
		s.logger.Warn().
			Int("expected", expected).
			Int("received", received).
			Msg("Finalize with missing submissions, aborting generation")
		if err := s.coordinator.store.Abort(ctx, s.generation); err != nil {
			return nil, common.WrapError(err, "failed to abort incomplete generation")
		}
		return nil, common.WrapError(ErrIngestionIncomplete,
			common.NewError("expected %d submissions, received %d", expected, received).Error())
	}

	summary, err := s.coordinator.store.Commit(ctx, s.generation)
	if err != nil {
		return nil, common.WrapError(err, "failed to commit generation for run "+s.RunName)
	}

	s.logger.Info().
		Int64("generation", summary.Generation).
		Int("total_reports", summary.Total).
		Msg("Ingestion session finalized")
	return summary, nil
}

// Abort discards the session's generation. Safe to call at any point
// before Finalize, including after a client disconnect.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	defer s.coordinator.releaseRun(s.RunName)
	defer s.runMutex.Unlock()

	if err := s.coordinator.store.Abort(ctx, s.generation); err != nil {
		return common.WrapError(err, "failed to abort session for run "+s.RunName)
	}
	s.logger.Info().Msg("Ingestion session aborted")
	return nil
}
