package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/aleister1102/codetriage/internal/config"
	"github.com/aleister1102/codetriage/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReports() []models.Report {
	return []models.Report{
		{
			Fingerprint:     "aaaa1111",
			CheckerID:       "core.DivideZero",
			Severity:        models.SeverityHigh,
			Message:         "division by zero",
			FilePath:        "src/math.c",
			Line:            12,
			Column:          9,
			AnalyzerAction:  "clang -c src/math.c",
			DetectionStatus: models.DetectionNew,
			ReviewStatus:    models.ReviewUnreviewed,
			BugPath: []models.BugPathStep{
				{FilePath: "src/math.c", Line: 10, Message: "b assigned zero"},
				{FilePath: "src/math.c", Line: 12, Message: "division here"},
			},
		},
		{
			Fingerprint:     "bbbb2222",
			CheckerID:       "core.NullDereference",
			Severity:        models.SeverityMedium,
			Message:         "null dereference",
			FilePath:        "src/list.c",
			Line:            40,
			DetectionStatus: models.DetectionUnresolved,
			ReviewStatus:    models.ReviewConfirmed,
			ReviewMessage:   "verified",
		},
	}
}

func TestSarifExport(t *testing.T) {
	exporter := NewSarifExporter(zerolog.Nop())

	var buf bytes.Buffer
	require.NoError(t, exporter.Export("nightly", sampleReports(), &buf))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc["version"])

	runs := doc["runs"].([]interface{})
	require.Len(t, runs, 1)
	run := runs[0].(map[string]interface{})

	driver := run["tool"].(map[string]interface{})["driver"].(map[string]interface{})
	assert.Equal(t, "codetriage", driver["name"])
	assert.Len(t, driver["rules"].([]interface{}), 2)

	results := run["results"].([]interface{})
	require.Len(t, results, 2)

	first := results[0].(map[string]interface{})
	assert.Equal(t, "core.DivideZero", first["ruleId"])
	assert.Equal(t, "error", first["level"])

	fps := first["partialFingerprints"].(map[string]interface{})
	assert.Equal(t, "aaaa1111", fps["codetriageFingerprint/v1"])

	location := first["locations"].([]interface{})[0].(map[string]interface{})
	physical := location["physicalLocation"].(map[string]interface{})
	assert.Equal(t, "src/math.c", physical["artifactLocation"].(map[string]interface{})["uri"])
	assert.Equal(t, float64(12), physical["region"].(map[string]interface{})["startLine"])
}

func TestSarifExport_DuplicateRulesCollapsed(t *testing.T) {
	reports := []models.Report{
		{Fingerprint: "a", CheckerID: "core.DivideZero", Severity: models.SeverityHigh, FilePath: "a.c", Line: 1},
		{Fingerprint: "b", CheckerID: "core.DivideZero", Severity: models.SeverityHigh, FilePath: "b.c", Line: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, NewSarifExporter(zerolog.Nop()).Export("nightly", reports, &buf))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	run := doc["runs"].([]interface{})[0].(map[string]interface{})
	driver := run["tool"].(map[string]interface{})["driver"].(map[string]interface{})
	assert.Len(t, driver["rules"].([]interface{}), 1)
	assert.Len(t, run["results"].([]interface{}), 2)
}

func newArchiveConfig(t *testing.T) *config.StorageConfig {
	t.Helper()
	dir, err := os.MkdirTemp("", "archive-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.NewDefaultStorageConfig()
	cfg.ArchiveBasePath = dir
	return &cfg
}

func TestArchiveRoundTrip(t *testing.T) {
	cfg := newArchiveConfig(t)
	ctx := context.Background()

	writer, err := NewArchiveWriter(cfg, zerolog.Nop())
	require.NoError(t, err)

	path, err := writer.Write(ctx, "nightly", 3, sampleReports())
	require.NoError(t, err)
	assert.FileExists(t, path)

	reader, err := NewArchiveReader(cfg, zerolog.Nop())
	require.NoError(t, err)

	reports, err := reader.Read("nightly", 3)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "aaaa1111", reports[0].Fingerprint)
	assert.Equal(t, models.SeverityHigh, reports[0].Severity)
	assert.Equal(t, 12, reports[0].Line)
	assert.Equal(t, 9, reports[0].Column)
	assert.Equal(t, "clang -c src/math.c", reports[0].AnalyzerAction)
	require.Len(t, reports[0].BugPath, 2)
	assert.Equal(t, "division here", reports[0].BugPath[1].Message)

	assert.Equal(t, models.ReviewConfirmed, reports[1].ReviewStatus)
	assert.Equal(t, "verified", reports[1].ReviewMessage)
	assert.Empty(t, reports[1].AnalyzerAction)
	assert.Zero(t, reports[1].Column)
}

func TestArchiveWrite_CompressionVariants(t *testing.T) {
	for _, compression := range []string{"zstd", "gzip", "snappy"} {
		t.Run(compression, func(t *testing.T) {
			cfg := newArchiveConfig(t)

			writer, err := NewArchiveWriterBuilder(zerolog.Nop()).
				WithStorageConfig(cfg).
				WithWriterConfig(ArchiveWriterConfig{CompressionType: compression}).
				Build()
			require.NoError(t, err)

			_, err = writer.Write(context.Background(), "nightly", 1, sampleReports())
			require.NoError(t, err)

			reader, err := NewArchiveReader(cfg, zerolog.Nop())
			require.NoError(t, err)
			reports, err := reader.Read("nightly", 1)
			require.NoError(t, err)
			assert.Len(t, reports, 2)
		})
	}
}

func TestArchiveRead_Missing(t *testing.T) {
	cfg := newArchiveConfig(t)

	reader, err := NewArchiveReader(cfg, zerolog.Nop())
	require.NoError(t, err)

	_, err = reader.Read("never-archived", 1)
	assert.Error(t, err)
}

func TestSanitizeRunName(t *testing.T) {
	assert.Equal(t, "a_b_c_d", sanitizeRunName("a/b:c d"))
}
