package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleister1102/codetriage/internal/blobstore"
	"github.com/aleister1102/codetriage/internal/config"
	"github.com/aleister1102/codetriage/internal/models"
	"github.com/aleister1102/codetriage/internal/reportstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *reportstore.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "ingest-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blobstore.NewStore(filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)

	coordinator, err := NewCoordinator(store, blobs, config.NewDefaultIngestionConfig(), zerolog.Nop())
	require.NoError(t, err)
	return coordinator, store
}

const divideSource = `int divide(int a, int b) {
	return a / b;
}
`

func divideFinding() models.Finding {
	return models.Finding{
		CheckerID: "core.DivideZero",
		FilePath:  "src/math.c",
		Line:      2,
		Severity:  models.SeverityHigh,
		Message:   "division by zero",
	}
}

func TestSession_SubmitAndFinalize(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	ctx := context.Background()

	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{VersionTag: "abc123"})
	require.NoError(t, err)

	err = session.Submit(ctx, Submission{
		AnalyzerAction: "clang -c src/math.c",
		Findings:       []models.Finding{divideFinding()},
		Sources:        map[string][]byte{"src/math.c": []byte(divideSource)},
	})
	require.NoError(t, err)

	summary, err := session.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)

	reports, err := store.GetReports(ctx, "nightly")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.NotEmpty(t, reports[0].Fingerprint)
	assert.NotEmpty(t, reports[0].BlobID)
	assert.Equal(t, "clang -c src/math.c", reports[0].AnalyzerAction)

	run, err := store.GetRun(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "abc123", run.VersionTag)
}

func TestSession_SubmitAllFansOutAcrossWorkers(t *testing.T) {
	dir, err := os.MkdirTemp("", "ingest-workers-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs, err := blobstore.NewStore(filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)

	cfg := config.NewDefaultIngestionConfig()
	cfg.SubmissionWorkers = 4
	coordinator, err := NewCoordinator(store, blobs, cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	subs := make([]Submission, 8)
	for i := range subs {
		finding := divideFinding()
		finding.CheckerID = "core.DivideZero." + string(rune('a'+i))
		subs[i] = Submission{
			AnalyzerAction: "clang -c unit" + string(rune('a'+i)) + ".c",
			Findings:       []models.Finding{finding},
			Sources:        map[string][]byte{"src/math.c": []byte(divideSource)},
		}
	}

	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{
		ExpectedSubmissions: len(subs),
	})
	require.NoError(t, err)
	require.NoError(t, session.SubmitAll(ctx, subs))

	summary, err := session.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(subs), summary.New)
}

func TestSession_SubmitAllOnClosedSessionFails(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	ctx := context.Background()

	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
	require.NoError(t, err)
	_, err = session.Finalize(ctx)
	require.NoError(t, err)

	err = session.SubmitAll(ctx, []Submission{
		{Findings: []models.Finding{divideFinding()}},
	})
	require.ErrorIs(t, err, reportstore.ErrGenerationClosed)
}

func TestSession_FingerprintStableAcrossSessions(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	ctx := context.Background()

	submit := func(source string, line int) {
		session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
		require.NoError(t, err)
		finding := divideFinding()
		finding.Line = line
		err = session.Submit(ctx, Submission{
			Findings: []models.Finding{finding},
			Sources:  map[string][]byte{"src/math.c": []byte(source)},
		})
		require.NoError(t, err)
		_, err = session.Finalize(ctx)
		require.NoError(t, err)
	}

	submit(divideSource, 2)
	// Same function shifted down two lines by a new include block.
	submit("#include <math.h>\n\n"+divideSource, 4)

	reports, err := store.GetReports(ctx, "nightly")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.DetectionUnresolved, reports[0].DetectionStatus)
}

func TestSession_IncompleteFinalizeAborts(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	ctx := context.Background()

	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{ExpectedSubmissions: 3})
	require.NoError(t, err)

	err = session.Submit(ctx, Submission{
		Findings: []models.Finding{divideFinding()},
		Sources:  map[string][]byte{"src/math.c": []byte(divideSource)},
	})
	require.NoError(t, err)

	_, err = session.Finalize(ctx)
	require.ErrorIs(t, err, ErrIngestionIncomplete)

	// Nothing was committed.
	_, err = store.GetRun(ctx, "nightly")
	require.NoError(t, err)
	reports, err := store.GetReports(ctx, "nightly")
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestSession_SuppressionCommentAttached(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	ctx := context.Background()

	source := `int divide(int a, int b) {
	// codetriage_false_positive [core.DivideZero] b is validated upstream
	return a / b;
}
`
	finding := divideFinding()
	finding.Line = 3

	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
	require.NoError(t, err)
	err = session.Submit(ctx, Submission{
		Findings: []models.Finding{finding},
		Sources:  map[string][]byte{"src/math.c": []byte(source)},
	})
	require.NoError(t, err)
	_, err = session.Finalize(ctx)
	require.NoError(t, err)

	reports, err := store.GetReports(ctx, "nightly")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.ReviewFalsePositive, reports[0].ReviewStatus)
	assert.Equal(t, "b is validated upstream", reports[0].ReviewMessage)

	// Suppressed reports drop out of the active set.
	active, err := store.GetActiveReports(ctx, "nightly")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSession_SuppressionDisabledByConfig(t *testing.T) {
	dir, err := os.MkdirTemp("", "ingest-nosuppress-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs, err := blobstore.NewStore(filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)

	cfg := config.NewDefaultIngestionConfig()
	cfg.EnableSuppressionComments = false
	coordinator, err := NewCoordinator(store, blobs, cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	source := "// codetriage_false_positive noise\nint x = a / b;\n"
	finding := divideFinding()
	finding.FilePath = "x.c"
	finding.Line = 2

	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, session.Submit(ctx, Submission{
		Findings: []models.Finding{finding},
		Sources:  map[string][]byte{"x.c": []byte(source)},
	}))
	_, err = session.Finalize(ctx)
	require.NoError(t, err)

	reports, err := store.GetReports(ctx, "nightly")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.ReviewUnreviewed, reports[0].ReviewStatus)
}

func TestStartSession_SameRunSerializes(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
	require.NoError(t, err)

	secondStarted := make(chan struct{})
	go func() {
		second, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
		assert.NoError(t, err)
		close(secondStarted)
		if second != nil {
			_ = second.Abort(ctx)
		}
	}()

	// The second session cannot start while the first is open.
	select {
	case <-secondStarted:
		t.Fatal("second session started while the first was still open")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Abort(ctx))

	select {
	case <-secondStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("second session never started after the first was aborted")
	}
}

func TestStartSession_DifferentRunsRunInParallel(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coordinator.StartSession(ctx, "run-a", SessionOptions{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		second, err := coordinator.StartSession(ctx, "run-b", SessionOptions{})
		assert.NoError(t, err)
		if second != nil {
			_ = second.Abort(ctx)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session on a different run was blocked")
	}

	require.NoError(t, first.Abort(ctx))
}

func TestSession_SubmitAfterFinalizeFails(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	ctx := context.Background()

	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, session.Submit(ctx, Submission{
		Findings: []models.Finding{divideFinding()},
		Sources:  map[string][]byte{"src/math.c": []byte(divideSource)},
	}))
	_, err = session.Finalize(ctx)
	require.NoError(t, err)

	err = session.Submit(ctx, Submission{Findings: []models.Finding{divideFinding()}})
	assert.ErrorIs(t, err, reportstore.ErrGenerationClosed)
}

func TestSession_OversizedSourceSkipsBlobCapture(t *testing.T) {
	dir, err := os.MkdirTemp("", "ingest-oversize-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs, err := blobstore.NewStore(filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)

	cfg := config.NewDefaultIngestionConfig()
	cfg.MaxSourceFileBytes = 8
	coordinator, err := NewCoordinator(store, blobs, cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	session, err := coordinator.StartSession(ctx, "nightly", SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, session.Submit(ctx, Submission{
		Findings: []models.Finding{divideFinding()},
		Sources:  map[string][]byte{"src/math.c": []byte(divideSource)},
	}))
	_, err = session.Finalize(ctx)
	require.NoError(t, err)

	reports, err := store.GetReports(ctx, "nightly")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].BlobID)
	// Findings of skipped files are still ingested.
	assert.Equal(t, "core.DivideZero", reports[0].CheckerID)
}

func TestRunMutexManager(t *testing.T) {
	manager := NewRunMutexManager(zerolog.Nop())

	a := manager.GetMutex("run-a")
	assert.Same(t, a, manager.GetMutex("run-a"))
	assert.NotSame(t, a, manager.GetMutex("run-b"))
}

func TestRunMutexManager_Cleanup(t *testing.T) {
	manager := NewRunMutexManager(zerolog.Nop())

	a := manager.GetMutex("run-a")
	b := manager.GetMutex("run-b")

	manager.CleanupUnusedMutexes([]string{"run-a"})

	// The active run keeps its mutex, the idle run is recreated fresh.
	assert.Same(t, a, manager.GetMutex("run-a"))
	assert.NotSame(t, b, manager.GetMutex("run-b"))
}

func TestCoordinator_PrunesMutexesAfterSessionClose(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	ctx := context.Background()

	mutexCount := func() int {
		coordinator.mutexes.mapLock.RLock()
		defer coordinator.mutexes.mapLock.RUnlock()
		return len(coordinator.mutexes.mutexes)
	}

	sessionA, err := coordinator.StartSession(ctx, "run-a", SessionOptions{})
	require.NoError(t, err)
	sessionB, err := coordinator.StartSession(ctx, "run-b", SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, mutexCount())

	_, err = sessionA.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mutexCount())

	require.NoError(t, sessionB.Abort(ctx))
	assert.Equal(t, 0, mutexCount())

	// A pruned run is usable again afterwards.
	sessionA, err = coordinator.StartSession(ctx, "run-a", SessionOptions{})
	require.NoError(t, err)
	_, err = sessionA.Finalize(ctx)
	require.NoError(t, err)
}
