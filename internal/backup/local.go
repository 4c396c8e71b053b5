package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Sentinel errors surfaced by the local manager.
var (
	ErrBackupNotFound = errors.New("backup not found")
	ErrChecksum       = errors.New("backup checksum mismatch")
)

// indexFile is the JSON sidecar listing every backup in the directory.
const indexFile = "index.json"

// DefaultRetentionAge is how long backups are kept before Cleanup removes
// them.
const DefaultRetentionAge = 90 * 24 * time.Hour

// LocalManager keeps snapshot files and a JSON index in one directory.
// Individual index rewrites are atomic (write temp, rename), so concurrent
// creators from the recovery manager and the replay engine cannot corrupt
// the metadata.
type LocalManager struct {
	source    Source
	dir       string
	dbPath    string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewLocalManager builds a manager writing snapshots under dir. dbPath is
// the live database file restores overwrite.
func NewLocalManager(source Source, dir, dbPath string, logger *zap.Logger) *LocalManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalManager{
		source:    source,
		dir:       dir,
		dbPath:    dbPath,
		retention: DefaultRetentionAge,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBackup snapshots the database into a new file and records it in
// the index.
func (m *LocalManager) CreateBackup(ctx context.Context, typ model.BackupType, tables []string) (*model.BackupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	now := m.now().UTC()
	id := model.NewBackupID(now)
	path := filepath.Join(m.dir, id+".db")

	if err := m.source.SnapshotTo(ctx, path); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("snapshot database: %w", err)
	}

	checksum, size, err := fileChecksum(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("checksum backup: %w", err)
	}

	info := &model.BackupInfo{
		ID:        id,
		CreatedAt: now,
		Type:      typ,
		SizeBytes: size,
		Location:  path,
		Checksum:  checksum,
		Tables:    tables,
	}

	index, err := m.readIndex()
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	index = append(index, info)
	if err := m.writeIndex(index); err != nil {
		os.Remove(path)
		return nil, err
	}

	m.logger.Info("backup created",
		zap.String("id", id),
		zap.String("type", string(typ)),
		zap.Int64("size_bytes", size))
	return info, nil
}

// RestoreFromBackup verifies the snapshot then copies it over the live
// database file. The swap happens at the path level: a store handle that
// was already open keeps reading the pre-restore file until it is
// reopened, so in-process callers must reopen the store afterwards.
func (m *LocalManager) RestoreFromBackup(ctx context.Context, id string, tables []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.find(id)
	if err != nil {
		return err
	}
	if err := verify(info); err != nil {
		return err
	}

	// Copy into place via a temp file so a failed copy never leaves the
	// live database truncated.
	tmp := m.dbPath + ".restore"
	if err := copyFile(info.Location, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("stage restore: %w", err)
	}
	if err := os.Rename(tmp, m.dbPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("apply restore: %w", err)
	}

	m.logger.Info("backup restored", zap.String("id", id), zap.String("target", m.dbPath))
	return nil
}

// ListBackups returns backups matching the filter, newest first.
func (m *LocalManager) ListBackups(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndex()
	if err != nil {
		return nil, err
	}

	matched := make([]*model.BackupInfo, 0, len(index))
	for _, info := range index {
		if filter.Type != "" && info.Type != filter.Type {
			continue
		}
		if filter.Since != nil && info.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !info.CreatedAt.Before(*filter.Until) {
			continue
		}
		matched = append(matched, info)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// DeleteBackup removes the snapshot file and drops it from the index.
func (m *LocalManager) DeleteBackup(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

// VerifyBackup recomputes the snapshot file's checksum and compares it to
// the recorded one.
func (m *LocalManager) VerifyBackup(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.find(id)
	if err != nil {
		return err
	}
	return verify(info)
}

// Cleanup deletes every backup older than the retention age.
func (m *LocalManager) Cleanup(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndex()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-m.retention)
	deleted := 0
	for _, info := range index {
		if info.CreatedAt.Before(cutoff) {
			if err := m.deleteLocked(info.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	if deleted > 0 {
		m.logger.Info("expired backups removed", zap.Int("count", deleted))
	}
	return deleted, nil
}

func (m *LocalManager) deleteLocked(id string) error {
	index, err := m.readIndex()
	if err != nil {
		return err
	}

	kept := index[:0]
	var removed *model.BackupInfo
	for _, info := range index {
		if info.ID == id {
			removed = info
			continue
		}
		kept = append(kept, info)
	}
	if removed == nil {
		return fmt.Errorf("delete backup %s: %w", id, ErrBackupNotFound)
	}

	if err := os.Remove(removed.Location); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete backup file: %w", err)
	}
	return m.writeIndex(kept)
}

func (m *LocalManager) find(id string) (*model.BackupInfo, error) {
	index, err := m.readIndex()
	if err != nil {
		return nil, err
	}
	for _, info := range index {
		if info.ID == id {
			return info, nil
		}
	}
	return nil, fmt.Errorf("backup %s: %w", id, ErrBackupNotFound)
}

func (m *LocalManager) readIndex() ([]*model.BackupInfo, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, indexFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup index: %w", err)
	}

	var index []*model.BackupInfo
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse backup index: %w", err)
	}
	return index, nil
}

func (m *LocalManager) writeIndex(index []*model.BackupInfo) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal backup index: %w", err)
	}

	path := filepath.Join(m.dir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write backup index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace backup index: %w", err)
	}
	return nil
}

func verify(info *model.BackupInfo) error {
	checksum, size, err := fileChecksum(info.Location)
	if err != nil {
		return fmt.Errorf("verify backup %s: %w", info.ID, err)
	}
	if checksum != info.Checksum || size != info.SizeBytes {
		return fmt.Errorf("verify backup %s: %w", info.ID, ErrChecksum)
	}
	return nil
}

func fileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
