package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"drivescope/internal/inspect"
)

// MemoryArchive is an in-memory implementation of the Archive interface,
// useful for testing. Safe for concurrent use.
type MemoryArchive struct {
	bundles map[string][]byte // "sessionID/name" -> data
	mu      sync.RWMutex
}

// NewMemoryArchive creates a new in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		bundles: make(map[string][]byte),
	}
}

func bundleKey(sessionID, name string) string {
	return sessionID + "/" + name
}

// PutBundle stores a named bundle item for a session.
func (m *MemoryArchive) PutBundle(sessionID string, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read bundle item: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[bundleKey(sessionID, name)] = data
	return nil
}

// GetBundle retrieves a named bundle item and writes it to w.
func (m *MemoryArchive) GetBundle(sessionID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.bundles[bundleKey(sessionID, name)]
	if !ok {
		return fmt.Errorf("bundle item %q not found for session: %s", name, sessionID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write bundle item: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for an in-memory archive.
func (m *MemoryArchive) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryArchive implements the Archive interface
var _ inspect.Archive = (*MemoryArchive)(nil)
