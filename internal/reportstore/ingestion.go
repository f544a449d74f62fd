package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/models"
)

// Generation is the handle for one uncommitted ingestion generation of a
// run. Reports added through it stay invisible to readers until Commit;
// readers always see the run's previously committed generation (snapshot
// isolation). AddReport may be called from multiple goroutines.
type Generation struct {
	store *Store

	ID      int64
	RunID   int64
	RunName string
	// Number is this generation's sequence number within the run.
	Number int64
	// baseNumber is the committed generation observed at BeginIngestion.
	// Commit fails with ErrStorageConflict when another writer moved the
	// run past it in the meantime.
	baseNumber int64
	versionTag string

	mu           sync.Mutex
	closed       bool
	suppressions map[string]models.ReviewStatusRecord
}

// BeginIngestion allocates a new generation for the named run, creating
// the run on first ingestion. The returned handle must be finished with
// Commit or Abort.
func (s *Store) BeginIngestion(ctx context.Context, runName string, versionTag string) (*Generation, error) {
	if runName == "" {
		return nil, common.NewValidationError("run_name", runName, "run name cannot be empty")
	}

	gen := &Generation{
		store:        s,
		RunName:      runName,
		versionTag:   versionTag,
		suppressions: make(map[string]models.ReviewStatusRecord),
	}

	err := s.inTransaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (name, current_generation, created_at, updated_at) VALUES (?, 0, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			runName, now, now); err != nil {
			return common.WrapError(err, "failed to upsert run "+runName)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT id, current_generation FROM runs WHERE name = ?`, runName).
			Scan(&gen.RunID, &gen.baseNumber); err != nil {
			return common.WrapError(err, "failed to load run "+runName)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(number), 0) + 1 FROM generations WHERE run_id = ?`, gen.RunID).
			Scan(&gen.Number); err != nil {
			return common.WrapError(err, "failed to allocate generation number")
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO generations (run_id, number, state, version_tag) VALUES (?, ?, ?, ?)`,
			gen.RunID, gen.Number, models.GenerationPending, versionTag)
		if err != nil {
			return common.WrapError(err, "failed to create generation")
		}
		gen.ID, err = result.LastInsertId()
		if err != nil {
			return common.WrapError(err, "failed to get generation id")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("run", runName).
		Int64("generation", gen.Number).
		Int64("base_generation", gen.baseNumber).
		Msg("Ingestion started")
	return gen, nil
}

// AddReport stores one report in the open generation. It is idempotent per
// fingerprint: a second add with the same fingerprint is a no-op and the
// first-seen bug path is retained. Safe for concurrent producers.
func (s *Store) AddReport(ctx context.Context, gen *Generation, report models.Report) error {
	gen.mu.Lock()
	if gen.closed {
		gen.mu.Unlock()
		return ErrGenerationClosed
	}
	gen.mu.Unlock()

	if report.Fingerprint == "" {
		return common.NewValidationError("fingerprint", report.Fingerprint, "report fingerprint cannot be empty")
	}

	bugPathJSON, err := marshalBugPath(report.BugPath)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports
		 (generation_id, fingerprint, checker_id, severity, message, file_path, line, col, blob_id, analyzer_action, bug_path, detection_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(generation_id, fingerprint) DO NOTHING`,
		gen.ID, report.Fingerprint, report.CheckerID, string(report.Severity), report.Message,
		report.FilePath, report.Line, report.Column, report.BlobID, report.AnalyzerAction,
		bugPathJSON, string(models.DetectionNew))
	if err != nil {
		return common.WrapError(err, "failed to add report "+report.Fingerprint)
	}
	return nil
}

// AddSuppression records an in-source suppression for a fingerprint. It is
// applied to the sticky review status at commit time and never overrides a
// judgment a human already made.
func (g *Generation) AddSuppression(fingerprint string, status models.ReviewStatus, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.suppressions[fingerprint]; exists {
		return
	}
	g.suppressions[fingerprint] = models.ReviewStatusRecord{
		Fingerprint: fingerprint,
		Status:      status,
		Message:     message,
	}
}

// Commit atomically publishes the generation. Detection status transitions
// are computed against the previous generation:
//   - only in new            -> New
//   - in both                -> Unresolved
//   - previously Resolved and present again -> Reopened
//   - only in old, previously active        -> Resolved (carried forward)
//
// Inactive old reports (Resolved, Off, Unavailable) are carried into the
// new generation unchanged so resolution history is retained, not erased.
// A racing commit on the same run fails with ErrStorageConflict and leaves
// the previous generation fully intact.
func (s *Store) Commit(ctx context.Context, gen *Generation) (*models.CommitSummary, error) {
	gen.mu.Lock()
	if gen.closed {
		gen.mu.Unlock()
		return nil, ErrGenerationClosed
	}
	suppressions := make([]models.ReviewStatusRecord, 0, len(gen.suppressions))
	for _, rec := range gen.suppressions {
		suppressions = append(suppressions, rec)
	}
	gen.mu.Unlock()

	summary := &models.CommitSummary{RunName: gen.RunName, Generation: gen.Number}

	err := s.inTransaction(ctx, func(tx *sql.Tx) error {
		var currentGeneration int64
		if err := tx.QueryRowContext(ctx,
			`SELECT current_generation FROM runs WHERE id = ?`, gen.RunID).
			Scan(&currentGeneration); err != nil {
			return common.WrapError(err, "failed to read current generation")
		}
		if currentGeneration != gen.baseNumber {
			return ErrStorageConflict
		}

		previous, err := loadGenerationStatuses(ctx, tx, gen.RunID, gen.baseNumber)
		if err != nil {
			return err
		}

		newFingerprints, err := loadGenerationFingerprints(ctx, tx, gen.ID)
		if err != nil {
			return err
		}

		// Status transitions for the fingerprints present in the new set.
		for _, fp := range newFingerprints {
			previousStatus := previous[fp] // empty when never seen
			next := models.NextDetectionStatus(previousStatus, true)
			if _, err := tx.ExecContext(ctx,
				`UPDATE reports SET detection_status = ? WHERE generation_id = ? AND fingerprint = ?`,
				string(next), gen.ID, fp); err != nil {
				return common.WrapError(err, "failed to set detection status for "+fp)
			}
			switch next {
			case models.DetectionNew:
				summary.New++
			case models.DetectionReopened:
				summary.Reopened++
			default:
				summary.Unresolved++
			}
		}

		// Vanished fingerprints are carried forward instead of deleted.
		newSet := make(map[string]struct{}, len(newFingerprints))
		for _, fp := range newFingerprints {
			newSet[fp] = struct{}{}
		}
		for fp, previousStatus := range previous {
			if _, present := newSet[fp]; present {
				continue
			}
			carried := previousStatus
			if previousStatus.IsActive() {
				carried = models.DetectionResolved
				summary.Resolved++
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reports
				 (generation_id, fingerprint, checker_id, severity, message, file_path, line, col, blob_id, analyzer_action, bug_path, detection_status)
				 SELECT ?, fingerprint, checker_id, severity, message, file_path, line, col, blob_id, analyzer_action, bug_path, ?
				 FROM reports r
				 JOIN generations g ON g.id = r.generation_id
				 WHERE g.run_id = ? AND g.number = ? AND r.fingerprint = ?`,
				gen.ID, string(carried), gen.RunID, gen.baseNumber, fp); err != nil {
				return common.WrapError(err, "failed to carry forward report "+fp)
			}
		}

		// In-source suppressions attach at commit time but never downgrade
		// an existing human judgment.
		now := time.Now().UTC()
		for _, rec := range suppressions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO review_statuses (fingerprint, status, message, updated_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT(fingerprint) DO UPDATE SET status = excluded.status, message = excluded.message, updated_at = excluded.updated_at
				 WHERE review_statuses.status = ?`,
				rec.Fingerprint, string(rec.Status), rec.Message, now, string(models.ReviewUnreviewed)); err != nil {
				return common.WrapError(err, "failed to apply suppression for "+rec.Fingerprint)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE generations SET state = ?, committed_at = ? WHERE id = ?`,
			models.GenerationCommitted, now, gen.ID); err != nil {
			return common.WrapError(err, "failed to mark generation committed")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET current_generation = ?, version_tag = ?, updated_at = ? WHERE id = ?`,
			gen.Number, gen.versionTag, now, gen.RunID); err != nil {
			return common.WrapError(err, "failed to advance run generation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gen.mu.Lock()
	gen.closed = true
	gen.mu.Unlock()

	summary.Total = summary.New + summary.Unresolved + summary.Resolved + summary.Reopened
	s.logger.Info().
		Str("run", gen.RunName).
		Int64("generation", gen.Number).
		Int("new", summary.New).
		Int("unresolved", summary.Unresolved).
		Int("resolved", summary.Resolved).
		Int("reopened", summary.Reopened).
		Msg("Generation committed")
	return summary, nil
}

// Abort discards the uncommitted generation. Safe to call at any point
// before Commit; the previous generation's readable state is untouched.
// Blobs already written stay in the blob store as harmless orphans.
func (s *Store) Abort(ctx context.Context, gen *Generation) error {
	gen.mu.Lock()
	if gen.closed {
		gen.mu.Unlock()
		return nil
	}
	gen.closed = true
	gen.mu.Unlock()

	err := s.inTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reports WHERE generation_id = ?`, gen.ID); err != nil {
			return common.WrapError(err, "failed to delete aborted reports")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE generations SET state = ? WHERE id = ?`,
			models.GenerationAborted, gen.ID); err != nil {
			return common.WrapError(err, "failed to mark generation aborted")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("run", gen.RunName).
		Int64("generation", gen.Number).
		Msg("Generation aborted")
	return nil
}

// loadGenerationStatuses returns fingerprint -> detection status for the
// generation with the given number. An empty map is returned for number 0
// (first ingestion of a run).
func loadGenerationStatuses(ctx context.Context, tx *sql.Tx, runID, number int64) (map[string]models.DetectionStatus, error) {
	statuses := make(map[string]models.DetectionStatus)
	if number == 0 {
		return statuses, nil
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT r.fingerprint, r.detection_status
		 FROM reports r
		 JOIN generations g ON g.id = r.generation_id
		 WHERE g.run_id = ? AND g.number = ?`, runID, number)
	if err != nil {
		return nil, common.WrapError(err, "failed to load previous generation")
	}
	defer rows.Close()

	for rows.Next() {
		var fp, status string
		if err := rows.Scan(&fp, &status); err != nil {
			return nil, common.WrapError(err, "failed to scan previous generation row")
		}
		statuses[fp] = models.DetectionStatus(status)
	}
	return statuses, rows.Err()
}

// loadGenerationFingerprints returns the fingerprints stored in one
// generation by its row id.
func loadGenerationFingerprints(ctx context.Context, tx *sql.Tx, generationID int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT fingerprint FROM reports WHERE generation_id = ? ORDER BY fingerprint`, generationID)
	if err != nil {
		return nil, common.WrapError(err, "failed to load generation fingerprints")
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, common.WrapError(err, "failed to scan fingerprint row")
		}
		fingerprints = append(fingerprints, fp)
	}
	return fingerprints, rows.Err()
}

// marshalBugPath converts bug path steps to their stored JSON form.
func marshalBugPath(steps []models.BugPathStep) (string, error) {
	if len(steps) == 0 {
		return "", nil
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return "", common.WrapError(err, "failed to marshal bug path")
	}
	return string(data), nil
}

// unmarshalBugPath converts the stored JSON form back to bug path steps.
func unmarshalBugPath(data string) []models.BugPathStep {
	if data == "" {
		return nil
	}
	var steps []models.BugPathStep
	if err := json.Unmarshal([]byte(data), &steps); err != nil {
		return nil
	}
	return steps
}
