package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"cvn-go/internal/tracker"
)

// MemoryVault is an in-memory implementation of the Vault interface,
// useful for testing. Safe for concurrent use.
type MemoryVault struct {
	name     string
	snapshot map[string][]byte // hostID -> snapshot
	version  map[string]int64  // hostID -> version
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		snapshot: make(map[string][]byte),
		version:  make(map[string]int64),
	}
}

// PutSnapshot stores a snapshot for a host.
func (m *MemoryVault) PutSnapshot(ctx context.Context, hostID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot[hostID] = data
	m.version[hostID] = version
	return nil
}

// GetSnapshot retrieves the stored snapshot for a host.
func (m *MemoryVault) GetSnapshot(ctx context.Context, hostID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshot[hostID]
	if !ok {
		return fmt.Errorf("no snapshot stored for host: %s", hostID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns the stored version for a host, 0 when absent.
func (m *MemoryVault) SnapshotVersion(ctx context.Context, hostID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version[hostID], nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemoryVault implements tracker.Vault interface
var _ tracker.Vault = (*MemoryVault)(nil)
