package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// backup manifest written alongside the copied directories.
type backupManifest struct {
	BackupName    string    `json:"backup_name"`
	CreatedAt     time.Time `json:"created_at"`
	FilesBackedUp []string  `json:"files_backed_up"`
}

var backupDirs = []string{"accounts", "reports", "sync_state", "history"}

// Backup copies account configs, reports, history and sync state into
// backups/<name> and returns the backup path.
func (s *FileStore) Backup(name string) (string, error) {
	if name == "" {
		name = "backup_" + time.Now().Format("20060102_150405")
	}

	backupDir := filepath.Join(s.dataDir, "backups", name)
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	for _, sub := range backupDirs {
		src := filepath.Join(s.dataDir, sub)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyDir(src, filepath.Join(backupDir, sub)); err != nil {
			return "", fmt.Errorf("backing up %s: %w", sub, err)
		}
	}

	manifest := backupManifest{
		BackupName:    name,
		CreatedAt:     time.Now().UTC(),
		FilesBackedUp: backupDirs,
	}
	if err := s.saveJSON(filepath.Join(backupDir, "manifest.json"), &manifest, false); err != nil {
		return "", err
	}

	s.logger.Info().Str("backup", name).Msg("Backup created")
	return backupDir, nil
}

// Restore replaces the live data directories with a backup's contents.
func (s *FileStore) Restore(name string) error {
	backupDir := filepath.Join(s.dataDir, "backups", name)
	if _, err := os.Stat(backupDir); err != nil {
		return fmt.Errorf("backup %s not found: %w", name, err)
	}

	for _, sub := range backupDirs {
		src := filepath.Join(backupDir, sub)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(s.dataDir, sub)
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("clearing %s: %w", sub, err)
		}
		if err := copyDir(src, dst); err != nil {
			return fmt.Errorf("restoring %s: %w", sub, err)
		}
	}

	s.logger.Info().Str("backup", name).Msg("Backup restored")
	return nil
}

// CleanupOld removes backup and report files older than the retention
// period.
func (s *FileStore) CleanupOld(retention time.Duration) {
	cutoff := time.Now().Add(-retention)

	for _, sub := range []string{"backups", "reports"} {
		dir := filepath.Join(s.dataDir, sub)
		_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err != nil {
					s.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove old file")
				}
			}
			return nil
		})
	}
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
