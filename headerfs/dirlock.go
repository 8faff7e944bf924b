package headerfs

import (
	"fmt"
	"os"
	"path/filepath"
)

// lockFileName is the advisory lock file created inside a headers
// directory while a process holds the store open.
const lockFileName = "headers.lock"

// DirLock is an advisory, process-lifetime exclusive lock on a headers
// directory. It guards against two processes opening the same store and
// interleaving writes; a single process coordinates through the per-chain
// mutexes instead.
type DirLock struct {
	f *os.File
}

// AcquireDirLock creates (or opens) dir's lock file and takes an exclusive
// advisory lock on it. It fails immediately, rather than blocking, when
// another process already holds the lock.
func AcquireDirLock(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("headerfs: headers directory %s is locked by another process: %w", dir, err)
	}
	return &DirLock{f: f}, nil
}

// Release drops the lock and closes the lock file. Safe to call on a nil
// receiver.
func (l *DirLock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = flockRelease(l.f)
	_ = l.f.Close()
	l.f = nil
}
