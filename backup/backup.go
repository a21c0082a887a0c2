// Package backup protects the collection files against write bugs and
// corruption. It keeps two independent sets under the backup root, pruned by
// the same retention policy:
//
//	<root>/daily/<YYYY-MM-DD>/<collection>.json  - at most one per day,
//	    taken lazily before the first mutating write of the day
//	<root>/full/full_backup_<YYYY-MM-DD_HH-MM-SS>/  - on demand
//
// Backups are best-effort safety: a snapshot failure is logged and swallowed,
// it never blocks the write it was protecting.
package backup

import (
	"context"
	"fmt"
	log "log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/fs"
)

const (
	dailySubdir = "daily"
	fullSubdir  = "full"

	dateKeyLayout       = "2006-01-02"
	fullTimestampLayout = "2006-01-02_15-04-05"

	// DefaultRetentionDays is how long dated backup directories are kept.
	DefaultRetentionDays = 30

	// Bound for concurrent file copies during a full backup.
	fullBackupMaxWorkers = 4
)

// Manager creates and prunes backups for one data directory.
type Manager struct {
	dataDir string
	root    string
	fileIO  fs.FileIO
	now     func() time.Time
}

// NewManager constructs a Manager storing backups under root. A nil fileIO
// selects the default.
func NewManager(dataDir, root string, fileIO fs.FileIO) *Manager {
	if fileIO == nil {
		fileIO = fs.NewFileIO()
	}
	return &Manager{
		dataDir: dataDir,
		root:    root,
		fileIO:  fileIO,
		now:     time.Now,
	}
}

// SnapshotIfNeeded copies the collection file verbatim into today's daily
// backup directory unless a snapshot for this (day, collection) pair already
// exists. Called unconditionally before every mutating write; performs
// actual I/O at most once per file per day. A missing source file means
// there is nothing to back up yet. Returns false only when a copy was
// attempted and failed; failures are logged, never propagated.
func (m *Manager) SnapshotIfNeeded(ctx context.Context, collectionFilePath string) bool {
	if !m.fileIO.Exists(ctx, collectionFilePath) {
		return true
	}

	dateKey := m.now().Format(dateKeyLayout)
	backupPath := filepath.Join(m.root, dailySubdir, dateKey, filepath.Base(collectionFilePath))
	if m.fileIO.Exists(ctx, backupPath) {
		return true
	}

	// Shared lock on the source so the copy can't interleave with a writer
	// replacing the file.
	l, err := fs.SharedLock(ctx, collectionFilePath)
	if err != nil {
		log.Warn("daily backup skipped, lock not acquired", "path", collectionFilePath, "error", err.Error())
		return false
	}
	defer l.Unlock()

	if err := m.fileIO.Copy(ctx, collectionFilePath, backupPath); err != nil {
		log.Warn("daily backup failed", "path", collectionFilePath, "error", err.Error())
		return false
	}
	log.Info("daily backup created", "path", backupPath)
	return true
}

// FullBackup copies every collection file into a freshly timestamped
// directory under the full-backup sub-root and returns its path. Copies run
// concurrently; the first failure aborts the backup.
func (m *Manager) FullBackup(ctx context.Context) (string, error) {
	entries, err := m.fileIO.ReadDir(ctx, m.dataDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(m.root, fullSubdir, "full_backup_"+m.now().Format(fullTimestampLayout))
	if err := m.fileIO.MkdirAll(ctx, dir, 0o755); err != nil {
		return "", err
	}

	tr := backoffice.NewTaskRunner(ctx, fullBackupMaxWorkers)
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		count++
		name := entry.Name()
		tr.Go(func() error {
			source := filepath.Join(m.dataDir, name)
			l, err := fs.SharedLock(tr.GetContext(), source)
			if err != nil {
				return err
			}
			defer l.Unlock()
			return m.fileIO.Copy(tr.GetContext(), source, filepath.Join(dir, name))
		})
	}
	if err := tr.Wait(); err != nil {
		return "", err
	}
	log.Info("full backup created", "dir", dir, "files", count)
	return dir, nil
}

// Prune deletes dated backup directories older than retentionDays. The
// daily and full-backup sets are enumerated independently but share the one
// retention knob. Directories are removed as whole units.
func (m *Manager) Prune(ctx context.Context, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := m.now().AddDate(0, 0, -retentionDays)

	for _, sub := range []string{dailySubdir, fullSubdir} {
		root := filepath.Join(m.root, sub)
		if !m.fileIO.Exists(ctx, root) {
			continue
		}
		entries, err := m.fileIO.ReadDir(ctx, root)
		if err != nil {
			log.Warn("backup prune skipped", "dir", root, "error", err.Error())
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				target := filepath.Join(root, entry.Name())
				if err := m.fileIO.RemoveAll(ctx, target); err != nil {
					log.Warn("backup prune failed", "dir", target, "error", err.Error())
					continue
				}
				log.Info("old backup removed", "dir", target)
			}
		}
	}
}

// Initialize performs startup maintenance: prunes expired backups and takes
// the day's first snapshot of every collection file when today's daily
// directory does not exist yet. Failures are logged and swallowed, startup
// must not be blocked by backup housekeeping.
func (m *Manager) Initialize(ctx context.Context, retentionDays int) {
	m.Prune(ctx, retentionDays)

	todayDir := filepath.Join(m.root, dailySubdir, m.now().Format(dateKeyLayout))
	if m.fileIO.Exists(ctx, todayDir) {
		return
	}
	entries, err := m.fileIO.ReadDir(ctx, m.dataDir)
	if err != nil {
		log.Warn(fmt.Sprintf("initial daily backup skipped, can't list %s: %v", m.dataDir, err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		m.SnapshotIfNeeded(ctx, filepath.Join(m.dataDir, entry.Name()))
	}
}
