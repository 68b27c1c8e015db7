//go:build !windows

package store

import "syscall"

// flockLock acquires an exclusive advisory file lock (Unix, via flock(2)).
func flockLock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

// flockUnlock releases the advisory file lock.
func flockUnlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
