package blobstore

import (
	"github.com/aleister1102/codetriage/internal/common"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// BlobDiff is one fragment of a blob comparison.
type BlobDiff struct {
	Operation string `json:"operation"` // "equal", "insert" or "delete"
	Text      string `json:"text"`
}

// BlobDiffResult describes how the content of two stored source versions
// differs. It is used to explain line drift of a fingerprint between
// generations.
type BlobDiffResult struct {
	OldID        BlobID     `json:"old_id"`
	NewID        BlobID     `json:"new_id"`
	Diffs        []BlobDiff `json:"diffs,omitempty"`
	LinesAdded   int        `json:"lines_added"`
	LinesDeleted int        `json:"lines_deleted"`
	IsIdentical  bool       `json:"is_identical"`
}

// Comparer computes structured diffs between stored blobs.
type Comparer struct {
	store *Store
	dmp   *diffmatchpatch.DiffMatchPatch
}

// NewComparer creates a new blob comparer backed by the given store
func NewComparer(store *Store) *Comparer {
	return &Comparer{
		store: store,
		dmp:   diffmatchpatch.New(),
	}
}

// CompareBlobs loads both blobs and returns their semantic text diff.
func (c *Comparer) CompareBlobs(oldID, newID BlobID) (*BlobDiffResult, error) {
	if oldID == newID {
		return &BlobDiffResult{OldID: oldID, NewID: newID, IsIdentical: true}, nil
	}

	oldData, err := c.store.Get(oldID)
	if err != nil {
		return nil, common.WrapError(err, "failed to load old blob for comparison")
	}
	newData, err := c.store.Get(newID)
	if err != nil {
		return nil, common.WrapError(err, "failed to load new blob for comparison")
	}

	diffs := c.dmp.DiffMain(string(oldData), string(newData), true)
	diffs = c.dmp.DiffCleanupSemantic(diffs)

	result := &BlobDiffResult{OldID: oldID, NewID: newID}
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.LinesAdded++
			result.Diffs = append(result.Diffs, BlobDiff{Operation: "insert", Text: d.Text})
		case diffmatchpatch.DiffDelete:
			result.LinesDeleted++
			result.Diffs = append(result.Diffs, BlobDiff{Operation: "delete", Text: d.Text})
		default:
			result.Diffs = append(result.Diffs, BlobDiff{Operation: "equal", Text: d.Text})
		}
	}
	result.IsIdentical = result.LinesAdded == 0 && result.LinesDeleted == 0
	return result, nil
}
