package main

import (
	"flag"
	"fmt"
	"os"
)

type AppFlags struct {
	GlobalConfigFile string
	Mode             string
	RunName          string
	BaselineName     string
	InputDir         string
	DiffMode         string
	ExportFormat     string
	OutputFile       string
	VersionTag       string
	Unique           bool
	Fingerprint      string
	BaselineGen      int64
	NewGen           int64
}

func ParseFlags() AppFlags {
	globalConfigFile := flag.String("config", "", "Path to the global YAML/JSON configuration file. If not set, searches default locations.")
	globalConfigFileAlias := flag.String("c", "", "Alias for -config")

	modeFlag := flag.String("mode", "", "Mode to run the tool: store, diff or export")
	modeFlagAlias := flag.String("m", "", "Alias for -mode")

	runName := flag.String("run", "", "Run name to store into, export from, or use as the new side of a diff")
	runNameAlias := flag.String("r", "", "Alias for -run")

	baselineName := flag.String("baseline", "", "Baseline run name for diff mode")
	baselineNameAlias := flag.String("b", "", "Alias for -baseline")

	inputDir := flag.String("input", "", "Directory containing analyzer result JSON files (store mode)")
	inputDirAlias := flag.String("i", "", "Alias for -input")

	diffMode := flag.String("diff-mode", "new", "Diff category to print: new, resolved or unresolved")
	exportFormat := flag.String("format", "sarif", "Export format: sarif or parquet")
	outputFile := flag.String("output", "", "Output file for export mode (default: stdout for sarif)")
	versionTag := flag.String("tag", "", "Version tag to record on the stored generation (store mode)")
	unique := flag.Bool("unique", false, "Collapse reports to one representative per fingerprint")
	fingerprintFlag := flag.String("fingerprint", "", "Report fingerprint to explain (drift mode)")
	baselineGen := flag.Int64("baseline-gen", 0, "Baseline generation number for drift mode")
	newGen := flag.Int64("new-gen", 0, "New generation number for drift mode (default: the run's current generation)")

	flag.Parse()

	flags := AppFlags{
		DiffMode:     *diffMode,
		ExportFormat: *exportFormat,
		OutputFile:   *outputFile,
		VersionTag:   *versionTag,
		Unique:       *unique,
		Fingerprint:  *fingerprintFlag,
		BaselineGen:  *baselineGen,
		NewGen:       *newGen,
	}

	if *globalConfigFile != "" {
		flags.GlobalConfigFile = *globalConfigFile
	} else if *globalConfigFileAlias != "" {
		flags.GlobalConfigFile = *globalConfigFileAlias
	}

	if *modeFlag != "" {
		flags.Mode = *modeFlag
	} else if *modeFlagAlias != "" {
		flags.Mode = *modeFlagAlias
	}

	if *runName != "" {
		flags.RunName = *runName
	} else if *runNameAlias != "" {
		flags.RunName = *runNameAlias
	}

	if *baselineName != "" {
		flags.BaselineName = *baselineName
	} else if *baselineNameAlias != "" {
		flags.BaselineName = *baselineNameAlias
	}

	if *inputDir != "" {
		flags.InputDir = *inputDir
	} else if *inputDirAlias != "" {
		flags.InputDir = *inputDirAlias
	}

	if flags.Mode == "" {
		fmt.Fprintln(os.Stderr, "[FATAL] -mode argument is required (store, diff, export or drift)")
		os.Exit(1)
	}
	if flags.RunName == "" {
		fmt.Fprintln(os.Stderr, "[FATAL] -run argument is required")
		os.Exit(1)
	}

	return flags
}
