package model

import "time"

// BackupType distinguishes full snapshots from incremental ones.
type BackupType string

// Backup types.
const (
	BackupFull        BackupType = "full"
	BackupIncremental BackupType = "incremental"
)

// BackupInfo describes one backup snapshot. Owned by the backup manager;
// the recovery core only requests creation, restoration, and verification.
type BackupInfo struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Type       BackupType `json:"type"`
	SizeBytes  int64      `json:"size_bytes"`
	Location   string     `json:"location"`
	Checksum   string     `json:"checksum"`
	Tables     []string   `json:"tables,omitempty"`
	Compressed bool       `json:"compressed"`
	Encrypted  bool       `json:"encrypted"`
}

// BackupFilter narrows ListBackups results.
type BackupFilter struct {
	Type  BackupType `json:"type,omitempty"`
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

// RollbackPoint names a backup snapshot plus the operations it guards.
//
// Created before a risky recovery attempt or replay checkpoint; consumed on
// success, restored on failure. A point referencing an expired backup must
// never be applied; expiry is checked before restore.
type RollbackPoint struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BackupID     string    `json:"backup_id"`
	OperationIDs []string  `json:"operation_ids,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the point may no longer be applied.
func (p *RollbackPoint) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
