package actions

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PurgeTempFiles deletes regular files in the OS temp directory whose
// modification time is older than maxAge. Files in use or otherwise
// undeletable are skipped. Returns the number of files removed.
func PurgeTempFiles(maxAge time.Duration) (int, error) {
	return purgeDir(os.TempDir(), maxAge)
}

func purgeDir(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
				continue
			}
			slog.Debug("skipping temp file", "path", path, "error", err)
			continue
		}
		removed++
	}

	slog.Info("temp files purged", "dir", dir, "removed", removed)
	return removed, nil
}
