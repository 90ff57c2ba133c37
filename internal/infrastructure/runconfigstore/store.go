// Package runconfigstore persists run configurations as YAML files, one per
// configuration.
package runconfigstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/runconfig"
)

// ErrNotFound is returned when no configuration has the requested name
var ErrNotFound = errors.New("run configuration not found")

// FileRepository stores run configurations under a directory
type FileRepository struct {
	dir string
}

// NewFileRepository creates a repository rooted at dir
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// Dir returns the directory holding the configurations
func (r *FileRepository) Dir() string {
	return r.dir
}

// Load retrieves a run configuration by name
func (r *FileRepository) Load(name string) (*runconfig.RunConfiguration, error) {
	doc, err := r.read(r.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	if doc.Name != name {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return runconfig.NewRunConfiguration(doc)
}

// Save writes the configuration, replacing the stored copy. The file is
// written to a temporary name first so readers never see a partial document.
func (r *FileRepository) Save(cfg *runconfig.RunConfiguration) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run configuration directory: %w", err)
	}

	data, err := yaml.Marshal(cfg.Document())
	if err != nil {
		return fmt.Errorf("failed to marshal run configuration %q: %w", cfg.Name(), err)
	}

	path := r.path(cfg.Name())
	tmp, err := os.CreateTemp(r.dir, ".runconfig-*")
	if err != nil {
		return fmt.Errorf("failed to write run configuration %q: %w", cfg.Name(), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write run configuration %q: %w", cfg.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write run configuration %q: %w", cfg.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write run configuration %q: %w", cfg.Name(), err)
	}
	return nil
}

// List returns the names of all stored run configurations, sorted
func (r *FileRepository) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list run configurations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		doc, err := r.read(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue
		}
		names = append(names, doc.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *FileRepository) read(path string) (runconfig.Document, error) {
	var doc runconfig.Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

func (r *FileRepository) path(name string) string {
	return filepath.Join(r.dir, FileName(name))
}

// FileName maps a configuration name to its file name
func FileName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".yaml"
}

var _ ports.RunConfigurationRepository = (*FileRepository)(nil)
