package config

// Default values for configuration sections.
const (
	DefaultDatabasePath    = "data/codetriage.sqlite"
	DefaultBlobStorePath   = "data/blobs"
	DefaultArchiveBasePath = "data/archives"

	DefaultLogFile       = "logs/codetriage.log"
	DefaultLogFormat     = "console"
	DefaultLogLevel      = "info"
	DefaultMaxLogBackups = 3
	DefaultMaxLogSizeMB  = 100

	DefaultSubmissionWorkers  = 4
	DefaultMaxBugPathSteps    = 200
	DefaultMaxSourceFileBytes = 4 * 1024 * 1024
)
