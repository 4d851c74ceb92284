package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadStore keeps a copy of every uploaded image. Files are named by a
// fresh uuid so concurrent uploads with the same client filename never
// overwrite each other.
type UploadStore struct {
	dir string
}

// NewUploadStore creates dir if needed.
func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadStore{dir: dir}, nil
}

// Save writes data and returns the stored path. Only the extension of the
// client filename is kept.
func (s *UploadStore) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(s.dir, uuid.New().String()+safeExt(filename))

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

// Dir is the upload directory.
func (s *UploadStore) Dir() string {
	return s.dir
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
