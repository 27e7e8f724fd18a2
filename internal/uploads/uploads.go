package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	// ErrInvalidName is returned for names that are not plain stored filenames
	ErrInvalidName = errors.New("invalid upload name")
	// ErrNotFound is returned when a stored file does not exist
	ErrNotFound = errors.New("upload not found")
)

// Store writes attachments under a directory and builds their public URLs
type Store struct {
	fs      afero.Fs
	dir     string
	baseURL string
}

// NewStore creates an upload store on the OS filesystem
func NewStore(cfg config.UploadsConfig) (*Store, error) {
	return NewStoreWithFs(afero.NewOsFs(), cfg)
}

// NewStoreWithFs creates an upload store on fs (MemMapFs in tests)
func NewStoreWithFs(fs afero.Fs, cfg config.UploadsConfig) (*Store, error) {
	if err := fs.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory %s: %w", cfg.Dir, err)
	}
	return &Store{
		fs:      fs,
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// StoredName returns a random filename keeping the extension of original
func StoredName(original string) string {
	ext := strings.ToLower(filepath.Ext(path.Base(filepath.ToSlash(original))))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return uuid.NewString() + ext
}

// Save copies r to a new file named after original's extension.
// It returns the stored filename and its public URL.
func (s *Store) Save(original string, r io.Reader) (string, string, error) {
	name := StoredName(original)
	full := filepath.Join(s.dir, name)

	f, err := s.fs.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", "", fmt.Errorf("create %s: %w", name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(full)
		return "", "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(full)
		return "", "", fmt.Errorf("close %s: %w", name, err)
	}

	return name, s.URL(name), nil
}

// URL returns the public URL of a stored file
func (s *Store) URL(name string) string {
	return s.baseURL + "/" + name
}

func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// Open opens a stored file for reading
func (s *Store) Open(name string) (afero.File, os.FileInfo, error) {
	full, err := s.resolve(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.fs.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Remove deletes a stored file; a missing file is not an error
func (s *Store) Remove(name string) error {
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
