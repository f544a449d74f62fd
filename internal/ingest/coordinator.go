package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/aleister1102/codetriage/internal/blobstore"
	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/config"
	"github.com/aleister1102/codetriage/internal/fingerprint"
	"github.com/aleister1102/codetriage/internal/reportstore"
	"github.com/aleister1102/codetriage/internal/rslimiter"

	"github.com/rs/zerolog"
)

// ErrIngestionIncomplete is returned when a session is finalized before all
// expected submissions arrived. The whole generation is aborted rather than
// committing a partial result set that would mis-report findings as resolved.
var ErrIngestionIncomplete = errors.New("ingestion incomplete: missing submissions")

// Coordinator accepts result submissions from many concurrent analyzer
// clients and merges them into one run generation. It is the only caller
// of BeginIngestion/Commit for a given run at a time: sessions on the same
// run name serialize, sessions on different runs proceed in parallel.
type Coordinator struct {
	store      *reportstore.Store
	blobs      *blobstore.Store
	calculator *fingerprint.Calculator
	limiter    *rslimiter.ResourceLimiter
	mutexes    *RunMutexManager
	scanner    *SuppressionScanner
	config     config.IngestionConfig
	logger     zerolog.Logger

	sessionLock sync.Mutex
	activeRuns  map[string]int
}

// CoordinatorBuilder provides a fluent interface for creating a Coordinator
type CoordinatorBuilder struct {
	store   *reportstore.Store
	blobs   *blobstore.Store
	limiter *rslimiter.ResourceLimiter
	config  config.IngestionConfig
	logger  zerolog.Logger
}

// NewCoordinatorBuilder creates a new builder
func NewCoordinatorBuilder(logger zerolog.Logger) *CoordinatorBuilder {
	return &CoordinatorBuilder{
		config: config.NewDefaultIngestionConfig(),
		logger: logger.With().Str("component", "IngestionCoordinator").Logger(),
	}
}

// WithReportStore sets the report store
func (b *CoordinatorBuilder) WithReportStore(store *reportstore.Store) *CoordinatorBuilder {
	b.store = store
	return b
}

// WithBlobStore sets the source blob store
func (b *CoordinatorBuilder) WithBlobStore(blobs *blobstore.Store) *CoordinatorBuilder {
	b.blobs = blobs
	return b
}

// WithResourceLimiter sets the ingestion memory guard
func (b *CoordinatorBuilder) WithResourceLimiter(limiter *rslimiter.ResourceLimiter) *CoordinatorBuilder {
	b.limiter = limiter
	return b
}

// WithConfig sets the ingestion configuration
func (b *CoordinatorBuilder) WithConfig(cfg config.IngestionConfig) *CoordinatorBuilder {
	b.config = cfg
	return b
}

// Build creates a new Coordinator instance
func (b *CoordinatorBuilder) Build() (*Coordinator, error) {
	if b.store == nil {
		return nil, common.NewValidationError("report_store", b.store, "report store cannot be nil")
	}
	if b.blobs == nil {
		return nil, common.NewValidationError("blob_store", b.blobs, "blob store cannot be nil")
	}

	return &Coordinator{
		store:      b.store,
		blobs:      b.blobs,
		calculator: fingerprint.NewCalculator(b.logger),
		limiter:    b.limiter,
		mutexes:    NewRunMutexManager(b.logger),
		scanner:    NewSuppressionScanner(),
		config:     b.config,
		logger:     b.logger,
		activeRuns: make(map[string]int),
	}, nil
}

// NewCoordinator creates a new Coordinator using builder pattern
func NewCoordinator(store *reportstore.Store, blobs *blobstore.Store, cfg config.IngestionConfig, logger zerolog.Logger) (*Coordinator, error) {
	return NewCoordinatorBuilder(logger).
		WithReportStore(store).
		WithBlobStore(blobs).
		WithConfig(cfg).
		Build()
}

// SessionOptions configures one ingestion session.
type SessionOptions struct {
	// VersionTag optionally labels the generation with the analyzed
	// source version (e.g. a commit hash). Descriptive only.
	VersionTag string
	// ExpectedSubmissions is the number of submissions the orchestrating
	// caller announced. Zero means unknown; the caller then signals
	// completion through Finalize alone.
	ExpectedSubmissions int
}

// StartSession opens an ingestion session for a run. It blocks while
// another session on the same run name is open; sessions on different run
// names never wait on each other.
func (c *Coordinator) StartSession(ctx context.Context, runName string, opts SessionOptions) (*Session, error) {
	if runName == "" {
		return nil, common.NewValidationError("run_name", runName, "run name cannot be empty")
	}

	c.acquireRun(runName)
	runMutex := c.mutexes.GetMutex(runName)
	runMutex.Lock()

	gen, err := c.store.BeginIngestion(ctx, runName, opts.VersionTag)
	if err != nil {
		runMutex.Unlock()
		c.releaseRun(runName)
		return nil, common.WrapError(err, "failed to begin ingestion for run "+runName)
	}

	session := newSession(c, runName, gen, runMutex, opts)
	c.logger.Info().
		Str("session_id", session.ID).
		Str("run", runName).
		Int("expected_submissions", opts.ExpectedSubmissions).
		Msg("Ingestion session started")
	return session, nil
}

// acquireRun registers interest in a run before its mutex is taken so the
// mutex cannot be pruned while a session or a waiting caller relies on it.
func (c *Coordinator) acquireRun(runName string) {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()
	c.activeRuns[runName]++
}

// releaseRun drops one reference to a run and prunes the mutexes of runs
// with no open sessions or waiters left.
func (c *Coordinator) releaseRun(runName string) {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()

	c.activeRuns[runName]--
	if c.activeRuns[runName] <= 0 {
		delete(c.activeRuns, runName)
	}

	active := make([]string, 0, len(c.activeRuns))
	for name := range c.activeRuns {
		active = append(active, name)
	}
	c.mutexes.CleanupUnusedMutexes(active)
}
