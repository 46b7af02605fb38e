// Package store persists one image file per sample in an output directory.
//
// The presence of "<uid>.png" is the cache-hit signal for the acquisition pipeline.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robert-malhotra/scene-chipper/internal/raster"
)

// Extension is the file extension of persisted rasters.
const Extension = ".png"

// ErrInvalidID is returned for sample ids that cannot be used as a file name.
var ErrInvalidID = errors.New("invalid sample id")

// Store is the output store contract used by the pipeline and the scrubber.
type Store interface {
	// Exists reports whether a raster is already persisted for id.
	Exists(id string) (bool, error)
	// Save writes the raster for id. Readers never observe a partially written file.
	Save(id string, r raster.Raster) (string, error)
	// Load reads the raster persisted for id.
	Load(id string) (raster.Raster, error)
	// Remove deletes the raster persisted for id.
	Remove(id string) error
	// List returns the ids of every persisted raster in lexical order.
	List() ([]string, error)
	// Path returns the location a raster for id is (or would be) stored at.
	Path(id string) string
}

// FileStore implements Store on a local directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the output directory if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger for the store.
func (s *FileStore) WithLogger(logger *slog.Logger) *FileStore {
	s.logger = logger
	return s
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file path for a sample id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+Extension)
}

// Exists reports whether a raster file is present for id.
func (s *FileStore) Exists(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	info, err := os.Stat(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %q: %w", s.Path(id), err)
	}
	return info.Mode().IsRegular(), nil
}

// Save encodes the raster to a temporary file in the same directory and renames it
// into place.
func (s *FileStore) Save(id string, r raster.Raster) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("failed to remove temp file", slog.String("path", tmpName), slog.String("error", rmErr.Error()))
		}
	}

	if err := raster.EncodePNG(tmp, r); err != nil {
		tmp.Close()
		cleanup()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to sync %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close %q: %w", tmpName, err)
	}

	path := s.Path(id)
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to move raster into place: %w", err)
	}

	s.logger.Debug("raster saved", slog.String("id", id), slog.String("path", path))
	return path, nil
}

// Load decodes the raster stored for id.
func (s *FileStore) Load(id string) (raster.Raster, error) {
	if err := validateID(id); err != nil {
		return raster.Raster{}, err
	}
	f, err := os.Open(s.Path(id))
	if err != nil {
		return raster.Raster{}, fmt.Errorf("failed to open raster %q: %w", id, err)
	}
	defer f.Close()

	r, err := raster.DecodePNG(f)
	if err != nil {
		return raster.Raster{}, fmt.Errorf("raster %q: %w", id, err)
	}
	return r, nil
}

// Remove deletes the file stored for id. Removing a missing file is not an error.
func (s *FileStore) Remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove raster %q: %w", id, err)
	}
	return nil
}

// List returns ids of all persisted rasters, ignoring temp files and other entries.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory %q: %w", s.dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		id, ok := strings.CutSuffix(name, Extension)
		if !ok || validateID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return nil
}
