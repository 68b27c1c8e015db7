//go:build windows

package store

// flockLock/flockUnlock are no-ops on Windows, where advisory flock(2) has
// no direct equivalent; single-writer discipline still holds for the
// common single-process deployment, matching the teacher's scope (its own
// flock implementation is Unix-only too).
func flockLock(fd uintptr) error   { return nil }
func flockUnlock(fd uintptr) error { return nil }
