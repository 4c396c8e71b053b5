// Package backup manages database snapshots and rollback points.
//
// The Manager interface is what the recovery core programs against; the
// host may substitute its own implementation (object storage, managed
// snapshots). LocalManager is the bundled implementation: snapshot files
// plus a JSON index under one directory.
package backup

import (
	"context"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Manager creates, restores, verifies, and prunes backups.
type Manager interface {
	// CreateBackup snapshots the store. tables narrows the snapshot's
	// declared scope; nil means everything.
	CreateBackup(ctx context.Context, typ model.BackupType, tables []string) (*model.BackupInfo, error)

	// RestoreFromBackup replaces current state with the named snapshot.
	// Callers must quiesce writers first.
	RestoreFromBackup(ctx context.Context, id string, tables []string) error

	// ListBackups returns backups matching the filter, newest first.
	ListBackups(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error)

	// DeleteBackup removes the snapshot file and its index entry.
	DeleteBackup(ctx context.Context, id string) error

	// VerifyBackup checks the snapshot file against its recorded checksum.
	VerifyBackup(ctx context.Context, id string) error

	// Cleanup deletes backups past the retention age and returns the count.
	Cleanup(ctx context.Context) (int, error)
}

// Source is the database being snapshotted. *store.Store satisfies it.
type Source interface {
	// SnapshotTo writes a consistent copy of the database to path.
	SnapshotTo(ctx context.Context, path string) error
}
