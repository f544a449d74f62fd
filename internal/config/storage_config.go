package config

// StorageConfig defines where the report database, the content-addressed
// blob store and the Parquet run archives live.
type StorageConfig struct {
	DatabasePath    string `json:"database_path,omitempty" yaml:"database_path,omitempty" validate:"required"`
	BlobStorePath   string `json:"blob_store_path,omitempty" yaml:"blob_store_path,omitempty" validate:"required"`
	ArchiveBasePath string `json:"archive_base_path,omitempty" yaml:"archive_base_path,omitempty"`
	// ArchiveCompression selects the Parquet page compression: zstd, gzip or snappy.
	ArchiveCompression string `json:"archive_compression,omitempty" yaml:"archive_compression,omitempty" validate:"omitempty,oneof=zstd gzip snappy"`
}

// NewDefaultStorageConfig creates default storage configuration
func NewDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DatabasePath:       DefaultDatabasePath,
		BlobStorePath:      DefaultBlobStorePath,
		ArchiveBasePath:    DefaultArchiveBasePath,
		ArchiveCompression: "zstd",
	}
}
