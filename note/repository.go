package note

import (
	"fmt"
	"os"
	"path/filepath"
)

// Repository is the single access path for reading and writing notes on disk.
// Keeping every read-modify-write sequence behind this interface means the
// atomic-rename discipline is enforced in one place, not scattered across
// handlers.
type Repository interface {
	Load(path string) (*Note, error)
	Save(path string, n *Note) error
}

// FileRepository is the on-disk Repository implementation.
type FileRepository struct{}

// NewFileRepository creates a filesystem-backed note repository.
func NewFileRepository() *FileRepository {
	return &FileRepository{}
}

// Load reads and parses the note at path.
func (r *FileRepository) Load(path string) (*Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read note: %w", err)
	}

	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse note %s: %w", path, err)
	}
	return n, nil
}

// Save writes the note atomically: content goes to a temp file in the same
// directory, then a rename replaces the original. A crash mid-write leaves
// either the old content or the new content, never a partial file.
func (r *FileRepository) Save(path string, n *Note) error {
	data, err := n.Render()
	if err != nil {
		return fmt.Errorf("render note: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}
