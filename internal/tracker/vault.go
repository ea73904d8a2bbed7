package tracker

import (
	"context"
	"io"
)

// Vault stores versioned database snapshots per host, so a reinstalled or
// second machine can recover the notification state instead of re-notifying
// everyone. Snapshot versions are monotonically increasing per host;
// SnapshotVersion returns 0 when the host has never uploaded.
type Vault interface {
	PutSnapshot(ctx context.Context, hostID string, r io.Reader, size int64, version int64) error
	GetSnapshot(ctx context.Context, hostID string, w io.Writer) error
	SnapshotVersion(ctx context.Context, hostID string) (int64, error)

	// ValidateSetup verifies the backing store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
