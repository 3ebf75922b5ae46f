// Package lockedfile provides inter-process mutual exclusion backed by
// advisory file locks.
package lockedfile

import (
	"os"
	"path/filepath"
)

// A Mutex provides mutual exclusion within and across processes by locking
// a well-known file. The file is created if needed and never removed.
type Mutex struct {
	Path string
}

// MutexAt returns a new Mutex with file as the underlying file.
func MutexAt(path string) *Mutex {
	return &Mutex{Path: path}
}

// Lock attempts to lock the Mutex, blocking until it is available. On
// success it returns a function that unlocks it.
func (mu *Mutex) Lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(mu.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lock(f); err != nil {
		f.Close()
		return nil, &os.PathError{Op: "lock", Path: mu.Path, Err: err}
	}
	return func() {
		unlock(f)
		f.Close()
	}, nil
}

// TryLock is like Lock but reports false instead of blocking when another
// holder has the lock.
func (mu *Mutex) TryLock() (func(), bool, error) {
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, false, err
	}
	f, err := os.OpenFile(mu.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, err
	}
	ok, err := tryLock(f)
	if err != nil || !ok {
		f.Close()
		return nil, false, err
	}
	return func() {
		unlock(f)
		f.Close()
	}, true, nil
}
