package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/config"
	"github.com/aleister1102/codetriage/internal/models"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

// ArchiveWriterConfig holds configuration for the run archive writer
type ArchiveWriterConfig struct {
	CompressionType string
}

// DefaultArchiveWriterConfig returns default configuration
func DefaultArchiveWriterConfig() ArchiveWriterConfig {
	return ArchiveWriterConfig{CompressionType: "zstd"}
}

// ArchiveWriter writes a committed generation's reports as a columnar
// Parquet snapshot for offline analysis. One file per (run, generation).
type ArchiveWriter struct {
	config       *config.StorageConfig
	writerConfig ArchiveWriterConfig
	logger       zerolog.Logger
	fileManager  *common.FileManager
}

// ArchiveWriterBuilder provides a fluent interface for creating an ArchiveWriter
type ArchiveWriterBuilder struct {
	config       *config.StorageConfig
	writerConfig ArchiveWriterConfig
	logger       zerolog.Logger
}

// NewArchiveWriterBuilder creates a new builder
func NewArchiveWriterBuilder(logger zerolog.Logger) *ArchiveWriterBuilder {
	return &ArchiveWriterBuilder{
		writerConfig: DefaultArchiveWriterConfig(),
		logger:       logger.With().Str("component", "ArchiveWriter").Logger(),
	}
}

// WithStorageConfig sets the storage configuration
func (b *ArchiveWriterBuilder) WithStorageConfig(cfg *config.StorageConfig) *ArchiveWriterBuilder {
	b.config = cfg
	return b
}

// WithWriterConfig sets the writer configuration
func (b *ArchiveWriterBuilder) WithWriterConfig(cfg ArchiveWriterConfig) *ArchiveWriterBuilder {
	b.writerConfig = cfg
	return b
}

// Build creates a new ArchiveWriter instance
func (b *ArchiveWriterBuilder) Build() (*ArchiveWriter, error) {
	if b.config == nil {
		return nil, common.NewValidationError("config", b.config, "storage config cannot be nil")
	}
	if b.config.ArchiveBasePath == "" {
		return nil, common.NewValidationError("archive_base_path", b.config.ArchiveBasePath, "archive base path cannot be empty")
	}

	return &ArchiveWriter{
		config:       b.config,
		writerConfig: b.writerConfig,
		logger:       b.logger,
		fileManager:  common.NewFileManager(b.logger),
	}, nil
}

// NewArchiveWriter creates a new ArchiveWriter using builder pattern
func NewArchiveWriter(cfg *config.StorageConfig, logger zerolog.Logger) (*ArchiveWriter, error) {
	return NewArchiveWriterBuilder(logger).WithStorageConfig(cfg).Build()
}

// Write archives the reports of one committed generation.
func (aw *ArchiveWriter) Write(ctx context.Context, runName string, generation int64, reports []models.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", common.WrapError(err, "archive write cancelled")
	}

	filePath := aw.archivePath(runName, generation)
	if err := aw.fileManager.EnsureDirectory(filepath.Dir(filePath), 0755); err != nil {
		return "", err
	}

	records := make([]models.ReportArchiveRecord, 0, len(reports))
	archivedAt := time.Now().UnixMilli()
	for _, report := range reports {
		records = append(records, toArchiveRecord(runName, generation, report, archivedAt))
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", common.WrapError(err, "failed to create archive file "+filePath)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[models.ReportArchiveRecord](file, aw.compressionOption())
	if _, err := writer.Write(records); err != nil {
		writer.Close()
		return "", common.WrapError(err, "failed to write archive records")
	}
	if err := writer.Close(); err != nil {
		return "", common.WrapError(err, "failed to close archive writer")
	}

	aw.logger.Info().
		Str("run", runName).
		Int64("generation", generation).
		Str("file_path", filePath).
		Int("records", len(records)).
		Msg("Generation archived to Parquet")
	return filePath, nil
}

// compressionOption maps the configured compression name to a writer option.
func (aw *ArchiveWriter) compressionOption() parquet.WriterOption {
	switch aw.writerConfig.CompressionType {
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "snappy":
		return parquet.Compression(&parquet.Snappy)
	default:
		return parquet.Compression(&parquet.Zstd)
	}
}

// archivePath builds the archive file path for one generation.
func (aw *ArchiveWriter) archivePath(runName string, generation int64) string {
	return filepath.Join(aw.config.ArchiveBasePath, sanitizeRunName(runName), fmt.Sprintf("gen-%06d.parquet", generation))
}

// ArchiveReader loads archived generations back into report form.
type ArchiveReader struct {
	config *config.StorageConfig
	logger zerolog.Logger
}

// NewArchiveReader creates a new archive reader
func NewArchiveReader(cfg *config.StorageConfig, logger zerolog.Logger) (*ArchiveReader, error) {
	if cfg == nil {
		return nil, common.NewValidationError("config", cfg, "storage config cannot be nil")
	}
	return &ArchiveReader{
		config: cfg,
		logger: logger.With().Str("component", "ArchiveReader").Logger(),
	}, nil
}

// Read loads one archived generation.
func (ar *ArchiveReader) Read(runName string, generation int64) ([]models.Report, error) {
	filePath := filepath.Join(ar.config.ArchiveBasePath, sanitizeRunName(runName), fmt.Sprintf("gen-%06d.parquet", generation))

	records, err := parquet.ReadFile[models.ReportArchiveRecord](filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.WrapError(models.ErrRecordNotFound, "archive "+filePath)
		}
		return nil, common.WrapError(err, "failed to read archive "+filePath)
	}

	reports := make([]models.Report, 0, len(records))
	for _, record := range records {
		reports = append(reports, fromArchiveRecord(record))
	}

	ar.logger.Debug().
		Str("run", runName).
		Int64("generation", generation).
		Int("records", len(reports)).
		Msg("Archived generation loaded")
	return reports, nil
}

// toArchiveRecord converts a report to its columnar form.
func toArchiveRecord(runName string, generation int64, report models.Report, archivedAt int64) models.ReportArchiveRecord {
	record := models.ReportArchiveRecord{
		RunName:            runName,
		Generation:         generation,
		Fingerprint:        report.Fingerprint,
		CheckerID:          report.CheckerID,
		Severity:           stringPtrOrNil(string(report.Severity)),
		Message:            report.Message,
		FilePath:           report.FilePath,
		Line:               int32(report.Line),
		Column:             int32PtrOrNilZero(int32(report.Column)),
		BlobID:             stringPtrOrNil(report.BlobID),
		AnalyzerAction:     stringPtrOrNil(report.AnalyzerAction),
		DetectionStatus:    string(report.DetectionStatus),
		ReviewStatus:       string(report.ReviewStatus),
		ReviewMessage:      stringPtrOrNil(report.ReviewMessage),
		ArchivedAtUnixMill: archivedAt,
	}
	if len(report.BugPath) > 0 {
		if data, err := json.Marshal(report.BugPath); err == nil {
			s := string(data)
			record.BugPathJSON = &s
		}
	}
	return record
}

// fromArchiveRecord converts a columnar record back to a report.
func fromArchiveRecord(record models.ReportArchiveRecord) models.Report {
	report := models.Report{
		Fingerprint:     record.Fingerprint,
		CheckerID:       record.CheckerID,
		Message:         record.Message,
		FilePath:        record.FilePath,
		Line:            int(record.Line),
		DetectionStatus: models.DetectionStatus(record.DetectionStatus),
		ReviewStatus:    models.ReviewStatus(record.ReviewStatus),
	}
	if record.Severity != nil {
		report.Severity = models.Severity(*record.Severity)
	}
	if record.Column != nil {
		report.Column = int(*record.Column)
	}
	if record.BlobID != nil {
		report.BlobID = *record.BlobID
	}
	if record.AnalyzerAction != nil {
		report.AnalyzerAction = *record.AnalyzerAction
	}
	if record.ReviewMessage != nil {
		report.ReviewMessage = *record.ReviewMessage
	}
	if record.BugPathJSON != nil {
		var steps []models.BugPathStep
		if err := json.Unmarshal([]byte(*record.BugPathJSON), &steps); err == nil {
			report.BugPath = steps
		}
	}
	return report
}

// sanitizeRunName makes a run name safe to use as a directory name.
func sanitizeRunName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(name)
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func int32PtrOrNilZero(v int32) *int32 {
	if v == 0 {
		return nil
	}
	return &v
}
