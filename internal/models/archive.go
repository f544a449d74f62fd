package models

// ReportArchiveRecord is the columnar form of a report used by the Parquet
// run archive. Optional string fields are pointers so absent values are
// stored as nulls instead of empty strings.
type ReportArchiveRecord struct {
	RunName            string  `parquet:"run_name,zstd"`
	Generation         int64   `parquet:"generation,zstd"`
	Fingerprint        string  `parquet:"fingerprint,zstd"`
	CheckerID          string  `parquet:"checker_id,zstd"`
	Severity           *string `parquet:"severity,zstd,optional"`
	Message            string  `parquet:"message,zstd"`
	FilePath           string  `parquet:"file_path,zstd"`
	Line               int32   `parquet:"line,zstd"`
	Column             *int32  `parquet:"column,zstd,optional"`
	BlobID             *string `parquet:"blob_id,zstd,optional"`
	AnalyzerAction     *string `parquet:"analyzer_action,zstd,optional"`
	BugPathJSON        *string `parquet:"bug_path_json,zstd,optional"`
	DetectionStatus    string  `parquet:"detection_status,zstd"`
	ReviewStatus       string  `parquet:"review_status,zstd"`
	ReviewMessage      *string `parquet:"review_message,zstd,optional"`
	ArchivedAtUnixMill int64   `parquet:"archived_at,zstd"`
}
