package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/aleister1102/codetriage/internal/common"

	"github.com/rs/zerolog"
)

// ErrBlobNotFound is returned when a requested blob id is unknown to the store.
var ErrBlobNotFound = errors.New("blob not found")

// BlobID is the content hash that addresses one stored blob.
type BlobID string

// Store is a content-addressed store for analyzed source file text.
// Identical bytes are stored exactly once no matter how many paths, reports
// or runs reference them. Blobs are immutable; Put never overwrites.
type Store struct {
	basePath    string
	logger      zerolog.Logger
	fileManager *common.FileManager
	mu          sync.Mutex
}

// StoreBuilder provides a fluent interface for creating a Store
type StoreBuilder struct {
	basePath string
	logger   zerolog.Logger
}

// NewStoreBuilder creates a new builder
func NewStoreBuilder(logger zerolog.Logger) *StoreBuilder {
	return &StoreBuilder{
		logger: logger.With().Str("component", "BlobStore").Logger(),
	}
}

// WithBasePath sets the directory blobs are stored under
func (b *StoreBuilder) WithBasePath(basePath string) *StoreBuilder {
	b.basePath = basePath
	return b
}

// Build creates a new Store instance
func (b *StoreBuilder) Build() (*Store, error) {
	if b.basePath == "" {
		return nil, common.NewValidationError("base_path", b.basePath, "blob store base path cannot be empty")
	}

	fileManager := common.NewFileManager(b.logger)
	if err := fileManager.EnsureDirectory(b.basePath, 0755); err != nil {
		return nil, err
	}

	return &Store{
		basePath:    b.basePath,
		logger:      b.logger,
		fileManager: fileManager,
	}, nil
}

// NewStore creates a new Store instance using builder pattern
func NewStore(basePath string, logger zerolog.Logger) (*Store, error) {
	return NewStoreBuilder(logger).WithBasePath(basePath).Build()
}

// HashBytes computes the content hash that addresses the given bytes.
func HashBytes(data []byte) BlobID {
	sum := sha256.Sum256(data)
	return BlobID(hex.EncodeToString(sum[:]))
}

// Put stores content once and returns its BlobID. If identical bytes were
// already stored under any path the existing id is returned without a
// write. The write is atomic: readers never observe a partial blob.
func (s *Store) Put(path string, data []byte) (BlobID, error) {
	id := HashBytes(data)
	blobPath := s.blobPath(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileManager.FileExists(blobPath) {
		s.logger.Debug().
			Str("blob_id", string(id)).
			Str("path", path).
			Msg("Blob already stored, reusing existing content")
		return id, nil
	}

	if err := s.fileManager.WriteFileAtomic(blobPath, data, 0644); err != nil {
		return "", common.WrapError(err, "failed to store blob for "+path)
	}

	s.logger.Debug().
		Str("blob_id", string(id)).
		Str("path", path).
		Int("size", len(data)).
		Msg("Stored new source blob")
	return id, nil
}

// Get returns the bytes of a stored blob.
func (s *Store) Get(id BlobID) ([]byte, error) {
	data, err := os.ReadFile(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.WrapError(ErrBlobNotFound, "blob "+string(id))
		}
		return nil, common.WrapError(err, "failed to read blob "+string(id))
	}
	return data, nil
}

// Has reports whether a blob id is present in the store.
func (s *Store) Has(id BlobID) bool {
	return s.fileManager.FileExists(s.blobPath(id))
}

// blobPath fans blobs out into two-character prefix directories.
func (s *Store) blobPath(id BlobID) string {
	name := string(id)
	if len(name) < 2 {
		return filepath.Join(s.basePath, name)
	}
	return filepath.Join(s.basePath, name[:2], name)
}
