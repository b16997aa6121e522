package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileKV stores every key in one YAML document on disk. Writes go through a
// temp file and rename so a crash never leaves a half-written pattern list.
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV creates a file-backed KV at path. The parent directory is
// created on first save; a missing file reads as empty.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Path returns the backing file path.
func (f *FileKV) Path() string {
	return f.path
}

// Load implements the KV interface.
func (f *FileKV) Load(key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}

	values, ok := doc[key]
	if !ok {
		return nil, ErrNotFound
	}
	return values, nil
}

// Save implements the KV interface.
func (f *FileKV) Save(key string, values []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}

	stored := make([]string, len(values))
	copy(stored, values)
	doc[key] = stored

	return f.write(doc)
}

// read loads the whole document. A missing file is an empty document.
func (f *FileKV) read() (map[string][]string, error) {
	// #nosec G304 - the path comes from trusted configuration
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string][]string), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	doc := make(map[string][]string)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if doc == nil {
		doc = make(map[string][]string)
	}
	return doc, nil
}

// write replaces the document atomically.
func (f *FileKV) write(doc map[string][]string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
