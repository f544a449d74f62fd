package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aleister1102/codetriage/internal/blobstore"
	"github.com/aleister1102/codetriage/internal/models"
	"github.com/aleister1102/codetriage/internal/reportstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *reportstore.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "query-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	service, err := NewService(store, zerolog.Nop())
	require.NoError(t, err)
	return service, store
}

func storeRun(t *testing.T, store *reportstore.Store, runName string, reports ...models.Report) {
	t.Helper()
	ctx := context.Background()
	gen, err := store.BeginIngestion(ctx, runName, "")
	require.NoError(t, err)
	for _, r := range reports {
		require.NoError(t, store.AddReport(ctx, gen, r))
	}
	_, err = store.Commit(ctx, gen)
	require.NoError(t, err)
}

func report(fingerprint, action, file string, line int) models.Report {
	return models.Report{
		Fingerprint:    fingerprint,
		CheckerID:      "core.DivideZero",
		FilePath:       file,
		Line:           line,
		AnalyzerAction: action,
		Message:        "finding " + fingerprint,
	}
}

func TestListReports_Unique(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	// Store under distinct fingerprints: the store itself collapses per
	// fingerprint, uniqueing happens per listing.
	storeRun(t, store, "nightly",
		report("aaa", "cc tu1.c", "shared.h", 5),
		report("bbb", "cc tu1.c", "tu1.c", 12),
	)

	reports, err := service.ListReports(ctx, "nightly", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	unique, err := service.ListReports(ctx, "nightly", ListOptions{Unique: true})
	require.NoError(t, err)
	assert.Len(t, unique, 2)
}

func TestListReports_ActiveOnly(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	storeRun(t, store, "nightly", report("aaa", "", "a.c", 1), report("bbb", "", "b.c", 2))
	storeRun(t, store, "nightly", report("aaa", "", "a.c", 1))

	all, err := service.ListReports(ctx, "nightly", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := service.ListReports(ctx, "nightly", ListOptions{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "aaa", active[0].Fingerprint)
}

func TestDiffStoredRuns(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	storeRun(t, store, "old", report("aaa", "", "a.c", 1), report("bbb", "", "b.c", 2))
	storeRun(t, store, "new", report("bbb", "", "b.c", 2), report("ccc", "", "c.c", 3))

	newReports, err := service.DiffStoredRuns(ctx, "old", "new", models.DiffModeNew, DiffOptions{StableOrder: true})
	require.NoError(t, err)
	require.Len(t, newReports, 1)
	assert.Equal(t, "ccc", newReports[0].Fingerprint)

	resolved, err := service.DiffStoredRuns(ctx, "old", "new", models.DiffModeResolved, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "aaa", resolved[0].Fingerprint)
}

func TestDiffAgainstStored(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	storeRun(t, store, "baseline", report("aaa", "", "a.c", 1))

	local := []models.Report{report("aaa", "", "a.c", 1), report("bbb", "", "b.c", 2)}
	newReports, err := service.DiffAgainstStored(ctx, "baseline", local, "workdir", models.DiffModeNew, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, newReports, 1)
	assert.Equal(t, "bbb", newReports[0].Fingerprint)
}

func TestSetReviewStatus(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	storeRun(t, store, "nightly", report("aaa", "", "a.c", 1))

	require.NoError(t, service.SetReviewStatus(ctx, "aaa", models.ReviewFalsePositive, "noise"))

	record, err := service.GetReviewStatus(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewFalsePositive, record.Status)

	err = service.SetReviewStatus(ctx, "", models.ReviewConfirmed, "")
	assert.Error(t, err)
}

func TestGetRun_Missing(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, reportstore.ErrRunNotFound)
}

func TestExplainLineDrift(t *testing.T) {
	dir, err := os.MkdirTemp("", "query-drift-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blobstore.NewStore(filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)

	service, err := NewServiceBuilder(zerolog.Nop()).
		WithReportStore(store).
		WithBlobStore(blobs).
		Build()
	require.NoError(t, err)

	oldSource := "int divide(int a, int b) {\n\treturn a / b;\n}\n"
	newSource := "#include <math.h>\n\n" + oldSource
	oldID, err := blobs.Put("src/math.c", []byte(oldSource))
	require.NoError(t, err)
	newID, err := blobs.Put("src/math.c", []byte(newSource))
	require.NoError(t, err)

	oldReport := report("aaa", "", "src/math.c", 2)
	oldReport.BlobID = string(oldID)
	storeRun(t, store, "nightly", oldReport)

	newReport := report("aaa", "", "src/math.c", 4)
	newReport.BlobID = string(newID)
	storeRun(t, store, "nightly", newReport)

	drift, err := service.ExplainLineDrift(context.Background(), "nightly", "aaa", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, drift.BaselineLine)
	assert.Equal(t, 4, drift.NewLine)
	assert.Equal(t, "src/math.c", drift.FilePath)
	require.NotNil(t, drift.BlobDiff)
	assert.False(t, drift.BlobDiff.IsIdentical)
	assert.Equal(t, oldID, drift.BlobDiff.OldID)
	assert.Equal(t, newID, drift.BlobDiff.NewID)

	var inserted string
	for _, d := range drift.BlobDiff.Diffs {
		if d.Operation == "insert" {
			inserted += d.Text
		}
	}
	assert.Contains(t, inserted, "#include <math.h>")
}

func TestExplainLineDrift_FingerprintMissingInGeneration(t *testing.T) {
	dir, err := os.MkdirTemp("", "query-drift-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blobstore.NewStore(filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)

	service, err := NewServiceBuilder(zerolog.Nop()).
		WithReportStore(store).
		WithBlobStore(blobs).
		Build()
	require.NoError(t, err)

	storeRun(t, store, "nightly", report("aaa", "", "a.c", 1))

	_, err = service.ExplainLineDrift(context.Background(), "nightly", "zzz", 1, 1)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestExplainLineDrift_RequiresBlobStore(t *testing.T) {
	service, store := newTestService(t)

	storeRun(t, store, "nightly", report("aaa", "", "a.c", 1))

	_, err := service.ExplainLineDrift(context.Background(), "nightly", "aaa", 1, 1)
	assert.Error(t, err)
}
