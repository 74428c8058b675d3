// Package archive stores completed-session bundles: the compiled review
// report, encrypted exports and ledger snapshots, keyed by session.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"drivescope/internal/inspect"
)

// FileSystemArchive is a filesystem-based implementation of the Archive
// interface. Bundle items live in a per-session directory:
//
//	<root>/
//	  sessions/
//	    <sessionID>/
//	      <name>    (bundle items: report.json, ledger.db, ...)
type FileSystemArchive struct {
	root        string
	sessionsDir string
}

// NewFileSystemArchive creates a new filesystem archive rooted at the given path.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	sessionsDir := filepath.Join(root, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FileSystemArchive{
		root:        root,
		sessionsDir: sessionsDir,
	}, nil
}

// PutBundle stores a named bundle item for a session. Storing the same
// session/name twice overwrites the previous item.
func (a *FileSystemArchive) PutBundle(sessionID string, name string, r io.Reader, size int64) error {
	dir := filepath.Join(a.sessionsDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return a.writeFile(filepath.Join(dir, name), r, size)
}

// GetBundle retrieves a named bundle item and writes it to w.
func (a *FileSystemArchive) GetBundle(sessionID string, name string, w io.Writer) error {
	srcPath := filepath.Join(a.sessionsDir, sessionID, name)
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("bundle item %q not found for session: %s", name, sessionID)
		}
		return fmt.Errorf("failed to open bundle item: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read bundle item: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the archive directories are accessible.
func (a *FileSystemArchive) ValidateSetup() error {
	for _, dir := range []string{a.root, a.sessionsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("archive directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("archive path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (a *FileSystemArchive) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemArchive implements the Archive interface
var _ inspect.Archive = (*FileSystemArchive)(nil)
