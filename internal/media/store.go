package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("media exceeds maximum upload size")
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Store writes uploaded photos to a local directory under
// collision-free names. Object names are opaque; callers keep the
// returned name to build URLs.
type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating media directory: %w", err)
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
	}, nil
}

// Save stores the content under a fresh uuid-based name and returns it.
func (s *Store) Save(r io.Reader, origName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(origName))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating media file: %w", err)
	}
	defer f.Close()

	// Read one byte past the cap to detect oversize uploads.
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("error writing media file: %w", err)
	}
	if n > s.maxBytes {
		os.Remove(path)
		return "", ErrTooLarge
	}

	return name, nil
}

func (s *Store) Open(name string) (io.ReadCloser, error) {
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid media name: %s", name)
	}
	return os.Open(filepath.Join(s.dir, name))
}

func (s *Store) Delete(name string) error {
	if filepath.Base(name) != name {
		return fmt.Errorf("invalid media name: %s", name)
	}
	return os.Remove(filepath.Join(s.dir, name))
}

// Dir exposes the storage root for static file serving.
func (s *Store) Dir() string {
	return s.dir
}
