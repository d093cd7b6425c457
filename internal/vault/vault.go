// Package vault stores snapshots of the local cache so a user can carry
// their unsubmitted work between machines.
package vault

import (
	"context"
	"errors"
	"io"
)

// ErrSnapshotNotFound is returned when a vault holds no snapshot under a name.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Vault is a snapshot storage backend. Snapshots are keyed by name (the
// user's login) and carry a version, the unix time they were taken.
type Vault interface {
	Name() string

	// PutSnapshot stores size bytes read from r under name.
	PutSnapshot(ctx context.Context, name string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the snapshot stored under name to w.
	GetSnapshot(ctx context.Context, name string, w io.Writer) error

	// SnapshotVersion returns the version stored under name, or 0 when there is none.
	SnapshotVersion(ctx context.Context, name string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
