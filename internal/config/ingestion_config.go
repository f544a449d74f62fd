package config

// IngestionConfig controls the ingestion coordinator.
type IngestionConfig struct {
	// SubmissionWorkers is the number of concurrent producers one session
	// feeds into a generation.
	SubmissionWorkers int `json:"submission_workers,omitempty" yaml:"submission_workers,omitempty" validate:"omitempty,min=1"`
	// MaxBugPathSteps truncates excessively long checker execution paths.
	MaxBugPathSteps int `json:"max_bug_path_steps,omitempty" yaml:"max_bug_path_steps,omitempty" validate:"omitempty,min=1"`
	// MaxSourceFileBytes skips blob capture for files larger than this.
	MaxSourceFileBytes int `json:"max_source_file_bytes,omitempty" yaml:"max_source_file_bytes,omitempty" validate:"omitempty,min=1"`
	// EnableSuppressionComments toggles in-source suppression marker scanning.
	EnableSuppressionComments bool `json:"enable_suppression_comments,omitempty" yaml:"enable_suppression_comments,omitempty"`
}

// NewDefaultIngestionConfig creates default ingestion configuration
func NewDefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		SubmissionWorkers:         DefaultSubmissionWorkers,
		MaxBugPathSteps:           DefaultMaxBugPathSteps,
		MaxSourceFileBytes:        DefaultMaxSourceFileBytes,
		EnableSuppressionComments: true,
	}
}
