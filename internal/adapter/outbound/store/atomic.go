// Package store provides atomic, flock-guarded JSON file persistence for
// the approval store and quarantine store, grounded in the teacher's
// FileStateStore: write-to-temp, fsync, rename, chmod 0600, cross-process
// advisory locking, and a best-effort ".bak" snapshot before each
// overwrite.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// warnIfTooOpen logs a warning if path's permission bits grant group/other
// access, mirroring the teacher's SECU-07 check.
func warnIfTooOpen(logger *slog.Logger, path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		logger.Warn("store file has too-open permissions, should be 0600",
			"path", path, "current_mode", fmt.Sprintf("%04o", mode))
	}
}

// withFileLock acquires an exclusive advisory lock on path+".lock" for the
// duration of fn, guaranteeing cross-process write serialization.
func withFileLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer func() { _ = flockUnlock(lockFile.Fd()) }()

	return fn()
}

// backup best-effort copies the current contents of path to path+".bak"
// before an overwrite. Absence of the current file is not an error.
func backup(logger *slog.Logger, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := os.WriteFile(path+".bak", data, 0600); err != nil {
		logger.Warn("failed to write backup", "path", path, "error", err)
	}
}

// writeAtomic writes data to path via a temp file, fsync, and rename, so
// readers never observe a torn write. The temp file is removed on any
// failure along the way.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("chmod store file: %w", err)
	}
	return nil
}
