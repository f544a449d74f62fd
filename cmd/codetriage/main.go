package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/aleister1102/codetriage/internal/blobstore"
	"github.com/aleister1102/codetriage/internal/config"
	"github.com/aleister1102/codetriage/internal/export"
	"github.com/aleister1102/codetriage/internal/ingest"
	"github.com/aleister1102/codetriage/internal/logger"
	"github.com/aleister1102/codetriage/internal/models"
	"github.com/aleister1102/codetriage/internal/query"
	"github.com/aleister1102/codetriage/internal/reportstore"
	"github.com/aleister1102/codetriage/internal/rslimiter"

	"github.com/rs/zerolog"
)

// analyzerResultFile is the on-disk input format consumed in store mode.
// One file per analysis action; sources carry the analyzed file contents
// so suppression comments can be evaluated and blobs captured.
type analyzerResultFile struct {
	AnalyzerAction string            `json:"analyzer_action"`
	Findings       []models.Finding  `json:"findings"`
	Sources        map[string]string `json:"sources,omitempty"`
}

func main() {
	flags := ParseFlags()

	gCfg, err := config.LoadGlobalConfig(flags.GlobalConfigFile)
	if err != nil {
		log.Fatalf("[FATAL] Could not load global config using path '%s': %v", flags.GlobalConfigFile, err)
	}
	if err := config.ValidateConfig(gCfg); err != nil {
		log.Fatalf("[FATAL] Configuration validation failed: %v", err)
	}

	zLogger, err := logger.New(gCfg.LogConfig)
	if err != nil {
		log.Fatalf("[FATAL] Could not initialize logger: %v", err)
	}
	zLogger.Info().Str("mode", flags.Mode).Str("run", flags.RunName).Msg("codetriage starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := reportstore.NewStore(gCfg.StorageConfig.DatabasePath, zLogger)
	if err != nil {
		zLogger.Fatal().Err(err).Msg("Failed to open report store")
	}
	defer store.Close()

	switch flags.Mode {
	case "store":
		err = runStore(ctx, flags, gCfg, store, zLogger)
	case "diff":
		err = runDiff(ctx, flags, store, zLogger)
	case "export":
		err = runExport(ctx, flags, gCfg, store, zLogger)
	case "drift":
		err = runDrift(ctx, flags, gCfg, store, zLogger)
	default:
		zLogger.Fatal().Str("mode", flags.Mode).Msg("Unknown mode (expected store, diff, export or drift)")
	}
	if err != nil {
		zLogger.Fatal().Err(err).Str("mode", flags.Mode).Msg("Command failed")
	}
}

// runStore ingests every analyzer result file under the input directory
// into one new generation of the named run.
func runStore(ctx context.Context, flags AppFlags, gCfg *config.GlobalConfig, store *reportstore.Store, zLogger zerolog.Logger) error {
	if flags.InputDir == "" {
		return fmt.Errorf("store mode requires -input")
	}

	inputFiles, err := collectResultFiles(flags.InputDir)
	if err != nil {
		return err
	}
	if len(inputFiles) == 0 {
		return fmt.Errorf("no analyzer result files found under %s", flags.InputDir)
	}

	blobs, err := blobstore.NewStore(gCfg.StorageConfig.BlobStorePath, zLogger)
	if err != nil {
		return err
	}

	limiter := rslimiter.NewResourceLimiter(gCfg.ResourceLimiterConfig, zLogger)

	coordinator, err := ingest.NewCoordinatorBuilder(zLogger).
		WithReportStore(store).
		WithBlobStore(blobs).
		WithResourceLimiter(limiter).
		WithConfig(gCfg.IngestionConfig).
		Build()
	if err != nil {
		return err
	}

	session, err := coordinator.StartSession(ctx, flags.RunName, ingest.SessionOptions{
		VersionTag:          flags.VersionTag,
		ExpectedSubmissions: len(inputFiles),
	})
	if err != nil {
		return err
	}

	subs := make([]ingest.Submission, 0, len(inputFiles))
	for _, path := range inputFiles {
		sub, err := loadResultFile(path)
		if err != nil {
			if abortErr := session.Abort(ctx); abortErr != nil {
				zLogger.Error().Err(abortErr).Msg("Failed to abort ingestion session")
			}
			return err
		}
		subs = append(subs, sub)
	}

	if err := session.SubmitAll(ctx, subs); err != nil {
		if abortErr := session.Abort(ctx); abortErr != nil {
			zLogger.Error().Err(abortErr).Msg("Failed to abort ingestion session")
		}
		return err
	}

	summary, err := session.Finalize(ctx)
	if err != nil {
		return err
	}

	zLogger.Info().
		Str("run", summary.RunName).
		Int64("generation", summary.Generation).
		Int("new", summary.New).
		Int("unresolved", summary.Unresolved).
		Int("resolved", summary.Resolved).
		Int("reopened", summary.Reopened).
		Int("total", summary.Total).
		Msg("Run stored")
	return printJSON(summary)
}

// runDiff compares the baseline run against the named run and prints the
// reports of the requested diff category.
func runDiff(ctx context.Context, flags AppFlags, store *reportstore.Store, zLogger zerolog.Logger) error {
	if flags.BaselineName == "" {
		return fmt.Errorf("diff mode requires -baseline")
	}
	mode, ok := models.ParseDiffMode(flags.DiffMode)
	if !ok {
		return fmt.Errorf("unknown diff mode %q (expected new, resolved or unresolved)", flags.DiffMode)
	}

	service, err := query.NewService(store, zLogger)
	if err != nil {
		return err
	}

	reports, err := service.DiffStoredRuns(ctx, flags.BaselineName, flags.RunName, mode, query.DiffOptions{
		Unique:      flags.Unique,
		StableOrder: true,
	})
	if err != nil {
		return err
	}

	zLogger.Info().
		Str("baseline", flags.BaselineName).
		Str("run", flags.RunName).
		Str("diff_mode", string(mode)).
		Int("reports", len(reports)).
		Msg("Diff computed")
	return printJSON(reports)
}

// runExport writes the current generation of the named run as SARIF or a
// Parquet archive.
func runExport(ctx context.Context, flags AppFlags, gCfg *config.GlobalConfig, store *reportstore.Store, zLogger zerolog.Logger) error {
	service, err := query.NewService(store, zLogger)
	if err != nil {
		return err
	}

	reports, err := service.ListReports(ctx, flags.RunName, query.ListOptions{Unique: flags.Unique})
	if err != nil {
		return err
	}

	switch flags.ExportFormat {
	case "sarif":
		out := os.Stdout
		if flags.OutputFile != "" {
			f, err := os.Create(flags.OutputFile)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		exporter := export.NewSarifExporter(zLogger)
		return exporter.Export(flags.RunName, reports, out)
	case "parquet":
		run, err := store.GetRun(ctx, flags.RunName)
		if err != nil {
			return err
		}
		writer, err := export.NewArchiveWriterBuilder(zLogger).
			WithStorageConfig(&gCfg.StorageConfig).
			WithWriterConfig(export.ArchiveWriterConfig{CompressionType: gCfg.StorageConfig.ArchiveCompression}).
			Build()
		if err != nil {
			return err
		}
		path, err := writer.Write(ctx, flags.RunName, run.CurrentGeneration, reports)
		if err != nil {
			return err
		}
		zLogger.Info().Str("file_path", path).Msg("Archive written")
		return nil
	default:
		return fmt.Errorf("unknown export format %q (expected sarif or parquet)", flags.ExportFormat)
	}
}

// runDrift prints the source text diff behind a fingerprint's line change
// between two generations of a run.
func runDrift(ctx context.Context, flags AppFlags, gCfg *config.GlobalConfig, store *reportstore.Store, zLogger zerolog.Logger) error {
	if flags.Fingerprint == "" {
		return fmt.Errorf("drift mode requires -fingerprint")
	}
	if flags.BaselineGen <= 0 {
		return fmt.Errorf("drift mode requires -baseline-gen")
	}

	blobs, err := blobstore.NewStore(gCfg.StorageConfig.BlobStorePath, zLogger)
	if err != nil {
		return err
	}
	service, err := query.NewServiceBuilder(zLogger).
		WithReportStore(store).
		WithBlobStore(blobs).
		Build()
	if err != nil {
		return err
	}

	newGen := flags.NewGen
	if newGen <= 0 {
		run, err := store.GetRun(ctx, flags.RunName)
		if err != nil {
			return err
		}
		newGen = run.CurrentGeneration
	}

	drift, err := service.ExplainLineDrift(ctx, flags.RunName, flags.Fingerprint, flags.BaselineGen, newGen)
	if err != nil {
		return err
	}

	zLogger.Info().
		Str("run", flags.RunName).
		Str("fingerprint", flags.Fingerprint).
		Int("baseline_line", drift.BaselineLine).
		Int("new_line", drift.NewLine).
		Msg("Line drift computed")
	return printJSON(drift)
}

// collectResultFiles lists the JSON result files under dir in stable order.
func collectResultFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func loadResultFile(path string) (ingest.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Submission{}, err
	}
	var parsed analyzerResultFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ingest.Submission{}, fmt.Errorf("invalid analyzer result file %s: %w", path, err)
	}

	sub := ingest.Submission{
		AnalyzerAction: parsed.AnalyzerAction,
		Findings:       parsed.Findings,
	}
	if len(parsed.Sources) > 0 {
		sub.Sources = make(map[string][]byte, len(parsed.Sources))
		for sourcePath, content := range parsed.Sources {
			sub.Sources[sourcePath] = []byte(content)
		}
	}
	return sub, nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
