package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/eugenenazirov/trendradar-webui/internal/document"
)

const defaultFileMode fs.FileMode = 0o644

// ErrNotFound indicates the backing file does not exist yet.
var ErrNotFound = errors.New("file not found")

// ConfigStore persists the configuration document.
type ConfigStore interface {
	Read() (*document.Document, error)
	Write(doc *document.Document) error
}

// KeywordStore persists the keyword file content.
type KeywordStore interface {
	Read() (string, error)
	Write(content string) error
}

// YAMLFileStore keeps the configuration document in a YAML file.
type YAMLFileStore struct {
	path string
}

// NewYAMLFileStore returns a store backed by the file at path.
func NewYAMLFileStore(path string) *YAMLFileStore {
	return &YAMLFileStore{path: path}
}

// Path returns the backing file location.
func (s *YAMLFileStore) Path() string {
	return s.path
}

// Read parses the YAML file. A missing file yields ErrNotFound.
func (s *YAMLFileStore) Read() (*document.Document, error) {
	data, err := readFile(s.path)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

// Write encodes doc and replaces the file atomically.
func (s *YAMLFileStore) Write(doc *document.Document) error {
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// TextFileStore keeps the keyword list as a UTF-8 text file. Content is
// stored byte for byte.
type TextFileStore struct {
	mu   sync.Mutex
	path string
}

// NewTextFileStore returns a store backed by the file at path.
func NewTextFileStore(path string) *TextFileStore {
	return &TextFileStore{path: path}
}

// Path returns the backing file location.
func (s *TextFileStore) Path() string {
	return s.path
}

// Read returns the file content. A missing file yields "" and ErrNotFound.
func (s *TextFileStore) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := readFile(s.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the file content atomically.
func (s *TextFileStore) Write(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeFileAtomic(s.path, []byte(content))
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it, and
// renames it over path so readers never observe a truncated file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	mode := defaultFileMode
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}
