package differ

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aleister1102/codetriage/internal/models"
	"github.com/aleister1102/codetriage/internal/reportstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiffer(t *testing.T) (*Differ, *reportstore.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "differ-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := reportstore.NewStore(filepath.Join(dir, "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	d, err := NewDiffer(store, zerolog.Nop())
	require.NoError(t, err)
	return d, store
}

func report(fingerprint, file string, line int) models.Report {
	return models.Report{
		Fingerprint: fingerprint,
		CheckerID:   "core.DivideZero",
		FilePath:    file,
		Line:        line,
		Message:     "finding " + fingerprint,
	}
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

func fingerprints(reports []models.Report) []string {
	fps := make([]string, 0, len(reports))
	for _, r := range reports {
		fps = append(fps, r.Fingerprint)
	}
	return fps
}

func TestCompare_LocalCollections(t *testing.T) {
	d, _ := newTestDiffer(t)
	ctx := context.Background()

	baseline := NewLocalCollection("old", []models.Report{
		report("aaa", "a.c", 1),
		report("bbb", "b.c", 2),
	})
	newSet := NewLocalCollection("new", []models.Report{
		report("bbb", "b.c", 2),
		report("ccc", "c.c", 3),
	})

	result, err := d.Compare(ctx, baseline, newSet, CompareOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ccc"}, fingerprints(result.New))
	assert.ElementsMatch(t, []string{"aaa"}, fingerprints(result.Resolved))
	assert.ElementsMatch(t, []string{"bbb"}, fingerprints(result.Unresolved))
}

func TestCompare_Symmetry(t *testing.T) {
	d, _ := newTestDiffer(t)
	ctx := context.Background()

	x := NewLocalCollection("x", []models.Report{report("aaa", "a.c", 1), report("bbb", "b.c", 2)})
	y := NewLocalCollection("y", []models.Report{report("bbb", "b.c", 2), report("ccc", "c.c", 3)})

	forward, err := d.Compare(ctx, x, y, CompareOptions{})
	require.NoError(t, err)
	backward, err := d.Compare(ctx, y, x, CompareOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, fingerprints(forward.New), fingerprints(backward.Resolved))
	assert.ElementsMatch(t, fingerprints(forward.Resolved), fingerprints(backward.New))
	assert.ElementsMatch(t, fingerprints(forward.Unresolved), fingerprints(backward.Unresolved))
}

func TestCompare_StoredRuns(t *testing.T) {
	d, store := newTestDiffer(t)
	ctx := context.Background()

	storeRun(t, store, "old", report("aaa", "a.c", 1), report("bbb", "b.c", 2))
	storeRun(t, store, "new", report("bbb", "b.c", 2), report("ccc", "c.c", 3))

	baseline, err := d.LoadStoredRun(ctx, "old")
	require.NoError(t, err)
	newSet, err := d.LoadStoredRun(ctx, "new")
	require.NoError(t, err)

	result, err := d.Compare(ctx, baseline, newSet, CompareOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ccc"}, fingerprints(result.New))
	assert.ElementsMatch(t, []string{"aaa"}, fingerprints(result.Resolved))
	assert.ElementsMatch(t, []string{"bbb"}, fingerprints(result.Unresolved))
}

func TestCompare_SuppressedExcludedFromAllCategories(t *testing.T) {
	d, store := newTestDiffer(t)
	ctx := context.Background()

	// Baseline run: aaa active, bbb marked false positive.
	storeRun(t, store, "baseline", report("aaa", "a.c", 1), report("bbb", "b.c", 2))
	require.NoError(t, store.SetReviewStatus(ctx, "bbb", models.ReviewFalsePositive, ""))
	// Suppress a fingerprint that only the local side reports.
	require.NoError(t, store.SetReviewStatus(ctx, "ddd", models.ReviewIntentional, ""))

	baseline, err := d.LoadStoredRun(ctx, "baseline")
	require.NoError(t, err)
	local := NewLocalCollection("local", []models.Report{
		report("aaa", "a.c", 1),
		report("bbb", "b.c", 2), // suppressed, must not surface anywhere
		report("ccc", "c.c", 3),
		report("ddd", "d.c", 4), // suppressed, must not count as new
	})

	result, err := d.Compare(ctx, baseline, local, CompareOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ccc"}, fingerprints(result.New))
	assert.ElementsMatch(t, []string{"aaa"}, fingerprints(result.Unresolved))
	assert.Empty(t, result.Resolved)
}

func TestCompare_ResolvedReportsExcludedFromStoredSide(t *testing.T) {
	d, store := newTestDiffer(t)
	ctx := context.Background()

	// bbb resolves in the second generation; it must not show up as an
	// active baseline finding.
	storeRun(t, store, "nightly", report("aaa", "a.c", 1), report("bbb", "b.c", 2))
	storeRun(t, store, "nightly", report("aaa", "a.c", 1))

	baseline, err := d.LoadStoredRun(ctx, "nightly")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aaa"}, fingerprints(baseline.Reports))

	local := NewLocalCollection("local", []models.Report{report("bbb", "b.c", 2)})
	result, err := d.Compare(ctx, baseline, local, CompareOptions{})
	require.NoError(t, err)

	// From the diff's perspective the resolved finding coming back is new.
	assert.ElementsMatch(t, []string{"bbb"}, fingerprints(result.New))
	assert.ElementsMatch(t, []string{"aaa"}, fingerprints(result.Resolved))
}

func TestCompare_StableOrder(t *testing.T) {
	d, _ := newTestDiffer(t)
	ctx := context.Background()

	newSet := NewLocalCollection("new", []models.Report{
		report("zzz", "z.c", 9),
		report("mmm", "a.c", 5),
		report("qqq", "a.c", 2),
	})

	result, err := d.Compare(ctx, NewLocalCollection("old", nil), newSet, CompareOptions{StableOrder: true})
	require.NoError(t, err)

	require.Len(t, result.New, 3)
	assert.Equal(t, "qqq", result.New[0].Fingerprint)
	assert.Equal(t, "mmm", result.New[1].Fingerprint)
	assert.Equal(t, "zzz", result.New[2].Fingerprint)
}

func TestLoadStoredRun_MissingRun(t *testing.T) {
	d, _ := newTestDiffer(t)

	_, err := d.LoadStoredRun(context.Background(), "missing")
	assert.ErrorIs(t, err, reportstore.ErrRunNotFound)
}

func TestRunDiffResult_Reports(t *testing.T) {
	result := models.RunDiffResult{
		New:        []models.Report{report("aaa", "a.c", 1)},
		Resolved:   []models.Report{report("bbb", "b.c", 2)},
		Unresolved: []models.Report{report("ccc", "c.c", 3)},
	}

	assert.Equal(t, result.New, result.Reports(models.DiffModeNew))
	assert.Equal(t, result.Resolved, result.Reports(models.DiffModeResolved))
	assert.Equal(t, result.Unresolved, result.Reports(models.DiffModeUnresolved))
}
