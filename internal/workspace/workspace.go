package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docmake/internal/logfields"
)

// markerFile is dropped into every build directory docmake creates. Clean
// refuses to remove directory contents unless the marker is present, so a
// mistyped build_dir cannot wipe unrelated files.
const markerFile = ".docmake-build"

// Manager handles build directory operations.
type Manager struct {
	buildDir string
}

// NewManager creates a build directory manager rooted at buildDir.
func NewManager(buildDir string) *Manager {
	return &Manager{buildDir: buildDir}
}

// Ensure creates the build directory and its marker file if needed.
func (m *Manager) Ensure() error {
	if err := os.MkdirAll(m.buildDir, 0o750); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	marker := filepath.Join(m.buildDir, markerFile)
	if _, err := os.Stat(marker); os.IsNotExist(err) {
		if err := os.WriteFile(marker, []byte("managed by docmake\n"), 0o640); err != nil {
			return fmt.Errorf("failed to write build marker: %w", err)
		}
		slog.Debug("Created build directory", logfields.Path(m.buildDir))
	}
	return nil
}

// Path returns the build directory path.
func (m *Manager) Path() string {
	return m.buildDir
}

// TargetDir returns the output directory for a builder target (builddir/<target>).
func (m *Manager) TargetDir(target string) string {
	return filepath.Join(m.buildDir, target)
}

// Clean removes everything under the build directory, keeping the directory
// itself and its marker. It refuses to touch a directory it does not manage.
func (m *Manager) Clean() error {
	if _, err := os.Stat(m.buildDir); os.IsNotExist(err) {
		return nil
	}

	marker := filepath.Join(m.buildDir, markerFile)
	if _, err := os.Stat(marker); err != nil {
		return fmt.Errorf("refusing to clean %s: not a docmake build directory (missing %s)", m.buildDir, markerFile)
	}

	entries, err := os.ReadDir(m.buildDir)
	if err != nil {
		return fmt.Errorf("failed to read build directory: %w", err)
	}

	for _, entry := range entries {
		if entry.Name() == markerFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.buildDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}

	slog.Info("Cleaned build directory", logfields.Path(m.buildDir))
	return nil
}
