package reportstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/models"
)

// GetRun returns a run by name.
func (s *Store) GetRun(ctx context.Context, name string) (*models.Run, error) {
	var run models.Run
	var versionTag sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, current_generation, version_tag, created_at, updated_at FROM runs WHERE name = ?`, name).
		Scan(&run.ID, &run.Name, &run.CurrentGeneration, &versionTag, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, common.WrapError(ErrRunNotFound, "run "+name)
	}
	if err != nil {
		return nil, common.WrapError(err, "failed to load run "+name)
	}
	run.VersionTag = versionTag.String
	return &run, nil
}

// ListRuns returns all runs ordered by name.
func (s *Store) ListRuns(ctx context.Context) ([]models.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, current_generation, version_tag, created_at, updated_at FROM runs ORDER BY name`)
	if err != nil {
		return nil, common.WrapError(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var versionTag sql.NullString
		if err := rows.Scan(&run.ID, &run.Name, &run.CurrentGeneration, &versionTag, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, common.WrapError(err, "failed to scan run row")
		}
		run.VersionTag = versionTag.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetGenerations returns all generations of a run, oldest first.
func (s *Store) GetGenerations(ctx context.Context, runName string) ([]models.GenerationInfo, error) {
	run, err := s.GetRun(ctx, runName)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, number, state, version_tag, committed_at FROM generations WHERE run_id = ? ORDER BY number`,
		run.ID)
	if err != nil {
		return nil, common.WrapError(err, "failed to list generations")
	}
	defer rows.Close()

	var generations []models.GenerationInfo
	for rows.Next() {
		var info models.GenerationInfo
		var state string
		var versionTag sql.NullString
		var committedAt sql.NullTime
		if err := rows.Scan(&info.ID, &info.RunID, &info.Number, &state, &versionTag, &committedAt); err != nil {
			return nil, common.WrapError(err, "failed to scan generation row")
		}
		info.State = models.GenerationState(state)
		info.VersionTag = versionTag.String
		if committedAt.Valid {
			t := committedAt.Time
			info.CommittedAt = &t
		}
		generations = append(generations, info)
	}
	return generations, rows.Err()
}

// GetReports returns all reports of the run's committed generation with
// their sticky review statuses joined in.
func (s *Store) GetReports(ctx context.Context, runName string) ([]models.Report, error) {
	run, err := s.GetRun(ctx, runName)
	if err != nil {
		return nil, err
	}
	return s.GetReportsForGeneration(ctx, run.ID, run.CurrentGeneration)
}

// GetReportsForGeneration returns the reports of one committed generation.
func (s *Store) GetReportsForGeneration(ctx context.Context, runID, number int64) ([]models.Report, error) {
	if number == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.fingerprint, r.checker_id, r.severity, r.message, r.file_path, r.line, r.col,
		        r.blob_id, r.analyzer_action, r.bug_path, r.detection_status,
		        COALESCE(rs.status, ?), COALESCE(rs.message, '')
		 FROM reports r
		 JOIN generations g ON g.id = r.generation_id
		 LEFT JOIN review_statuses rs ON rs.fingerprint = r.fingerprint
		 WHERE g.run_id = ? AND g.number = ?
		 ORDER BY r.file_path, r.line, r.fingerprint`,
		string(models.ReviewUnreviewed), runID, number)
	if err != nil {
		return nil, common.WrapError(err, "failed to query reports")
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// GetActiveReports returns the run's reports that participate in diffs:
// detection status active and review status not suppressing.
func (s *Store) GetActiveReports(ctx context.Context, runName string) ([]models.Report, error) {
	reports, err := s.GetReports(ctx, runName)
	if err != nil {
		return nil, err
	}

	active := reports[:0]
	for _, report := range reports {
		if report.IsActive() {
			active = append(active, report)
		}
	}
	return active, nil
}

// SetReviewStatus sets the sticky, fingerprint-scoped review judgment.
// Unlike suppression comments this is a human decision and always wins.
func (s *Store) SetReviewStatus(ctx context.Context, fingerprint string, status models.ReviewStatus, message string) error {
	if fingerprint == "" {
		return common.NewValidationError("fingerprint", fingerprint, "fingerprint cannot be empty")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_statuses (fingerprint, status, message, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET status = excluded.status, message = excluded.message, updated_at = excluded.updated_at`,
		fingerprint, string(status), message, time.Now().UTC())
	if err != nil {
		return common.WrapError(err, "failed to set review status for "+fingerprint)
	}

	s.logger.Info().
		Str("fingerprint", fingerprint).
		Str("status", string(status)).
		Msg("Review status updated")
	return nil
}

// GetReviewStatus returns the sticky review judgment for a fingerprint,
// defaulting to unreviewed.
func (s *Store) GetReviewStatus(ctx context.Context, fingerprint string) (models.ReviewStatusRecord, error) {
	record := models.ReviewStatusRecord{
		Fingerprint: fingerprint,
		Status:      models.ReviewUnreviewed,
	}
	var message sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT status, message, updated_at FROM review_statuses WHERE fingerprint = ?`, fingerprint).
		Scan(&record.Status, &message, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return record, nil
	}
	if err != nil {
		return record, common.WrapError(err, "failed to load review status for "+fingerprint)
	}
	record.Message = message.String
	return record, nil
}

// ListSuppressedFingerprints returns the fingerprints whose review status
// excludes them from diffs. The diff engine applies this to transient
// collections as well, since suppression is a persistent property.
func (s *Store) ListSuppressedFingerprints(ctx context.Context) (map[string]models.ReviewStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, status FROM review_statuses WHERE status IN (?, ?)`,
		string(models.ReviewFalsePositive), string(models.ReviewIntentional))
	if err != nil {
		return nil, common.WrapError(err, "failed to list suppressed fingerprints")
	}
	defer rows.Close()

	suppressed := make(map[string]models.ReviewStatus)
	for rows.Next() {
		var fp, status string
		if err := rows.Scan(&fp, &status); err != nil {
			return nil, common.WrapError(err, "failed to scan suppression row")
		}
		suppressed[fp] = models.ReviewStatus(status)
	}
	return suppressed, rows.Err()
}

// scanReport reads one report row including the joined review status.
func scanReport(rows *sql.Rows) (models.Report, error) {
	var report models.Report
	var severity, message, blobID, analyzerAction, bugPath, reviewMessage sql.NullString
	var column sql.NullInt64
	var detectionStatus, reviewStatus string

	err := rows.Scan(&report.ID, &report.Fingerprint, &report.CheckerID, &severity, &message,
		&report.FilePath, &report.Line, &column, &blobID, &analyzerAction, &bugPath,
		&detectionStatus, &reviewStatus, &reviewMessage)
	if err != nil {
		return report, common.WrapError(err, "failed to scan report row")
	}

	report.Severity = models.Severity(severity.String)
	report.Message = message.String
	report.Column = int(column.Int64)
	report.BlobID = blobID.String
	report.AnalyzerAction = analyzerAction.String
	report.BugPath = unmarshalBugPath(bugPath.String)
	report.DetectionStatus = models.DetectionStatus(detectionStatus)
	report.ReviewStatus = models.ReviewStatus(reviewStatus)
	report.ReviewMessage = reviewMessage.String
	return report, nil
}
