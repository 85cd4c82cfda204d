// Package workspace owns all file I/O inside per-project directory trees.
// File paths originate from parsed generation output, so every path-accepting
// operation funnels through the same containment check.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	orerrors "github.com/openroger/openroger/internal/errors"
)

// Mandatory top-level folders of every project workspace.
var mandatoryFolders = []string{"frontend", "backend", "db"}

// FileSentinel marks file entries in a structure snapshot.
const FileSentinel = "file"

// Store manages per-project workspaces under a single root directory.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore creates a workspace store rooted at root.
func NewStore(root string, logger zerolog.Logger) *Store {
	return &Store{
		root:   root,
		logger: logger.With().Str("component", "workspace").Logger(),
	}
}

// Root returns the projects root directory.
func (s *Store) Root() string {
	return s.root
}

// ProjectRoot returns the workspace root for a project.
func (s *Store) ProjectRoot(projectID string) string {
	return filepath.Join(s.root, projectID)
}

// Create idempotently materializes the workspace for a project:
// {root}/{projectID}/{frontend,backend,db}. Returns the workspace root.
// Only creates directories; never touches existing files.
func (s *Store) Create(projectID string) (string, error) {
	projectRoot := s.ProjectRoot(projectID)
	for _, dir := range append([]string{""}, mandatoryFolders...) {
		if err := os.MkdirAll(filepath.Join(projectRoot, dir), 0o755); err != nil {
			return "", fmt.Errorf("create workspace %s: %w", projectID, err)
		}
	}
	s.logger.Debug().Str("project_id", projectID).Str("path", projectRoot).Msg("workspace created")
	return projectRoot, nil
}

// Resolve resolves rel against the project root, failing with
// ErrOutOfBoundsPath if the result escapes it. Used for both file paths and
// command working directories.
func (s *Store) Resolve(projectID, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", orerrors.ErrOutOfBoundsPath, rel)
	}
	projectRoot := filepath.Clean(s.ProjectRoot(projectID))
	resolved := filepath.Clean(filepath.Join(projectRoot, rel))
	if resolved != projectRoot && !strings.HasPrefix(resolved, projectRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", orerrors.ErrOutOfBoundsPath, rel)
	}
	return resolved, nil
}

// WriteFile writes content at rel inside the project workspace, creating
// intermediate directories as needed. Overwrites existing content.
func (s *Store) WriteFile(projectID, rel, content string) error {
	target, err := s.Resolve(projectID, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// ReadFile returns the file's text, or ok=false if the path does not exist
// or escapes the workspace. Escapes deliberately read as "not found" so
// callers cannot probe path validity.
func (s *Store) ReadFile(projectID, rel string) (string, bool) {
	target, err := s.Resolve(projectID, rel)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Snapshot walks the project workspace producing a nested mapping where
// directories map to nested mappings and files map to the "file" sentinel.
// Returns an empty map if the workspace does not exist.
func (s *Store) Snapshot(projectID string) map[string]any {
	projectRoot := s.ProjectRoot(projectID)
	info, err := os.Stat(projectRoot)
	if err != nil || !info.IsDir() {
		return map[string]any{}
	}
	return walkDir(projectRoot)
}

func walkDir(dir string) map[string]any {
	result := map[string]any{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return result
	}
	for _, entry := range entries {
		if entry.IsDir() {
			result[entry.Name()] = walkDir(filepath.Join(dir, entry.Name()))
		} else {
			result[entry.Name()] = FileSentinel
		}
	}
	return result
}
