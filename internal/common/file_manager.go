package common

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileManager provides file system helpers shared by the stores
type FileManager struct {
	logger zerolog.Logger
}

// NewFileManager creates a new file manager
func NewFileManager(logger zerolog.Logger) *FileManager {
	return &FileManager{
		logger: logger.With().Str("component", "FileManager").Logger(),
	}
}

// FileExists checks whether path exists and is a regular file
func (fm *FileManager) FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// EnsureDirectory creates the directory (and parents) if it does not exist
func (fm *FileManager) EnsureDirectory(path string, perm fs.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		fm.logger.Error().Err(err).Str("directory", path).Msg("Failed to create directory")
		return WrapError(err, "failed to create directory "+path)
	}
	return nil
}

// ReadFile reads the whole file at path
func (fm *FileManager) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, WrapError(ErrNotFound, "file "+path)
		}
		return nil, WrapError(err, "failed to read file "+path)
	}
	return data, nil
}

// WriteFileAtomic writes data to path via a temporary file followed by a
// rename, so readers never observe a partially written file.
func (fm *FileManager) WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := fm.EnsureDirectory(dir, 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return WrapError(err, "failed to create temp file in "+dir)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return WrapError(err, "failed to write temp file "+tmpPath)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return WrapError(err, "failed to chmod temp file "+tmpPath)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return WrapError(err, "failed to close temp file "+tmpPath)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return WrapError(err, "failed to rename temp file to "+path)
	}
	return nil
}
