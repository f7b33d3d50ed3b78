// Copyright 2025 James Ross
package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// singletonLock is an advisory, exclusive OS file lock guaranteeing at most
// one worker process drains the queue at a time.
type singletonLock struct {
	path string
	file *os.File
}

// acquireSingletonLock opens (creating if absent) and flock(2)s path
// non-blocking. A held lock by another process returns an error rather than
// blocking.
func acquireSingletonLock(path string) (*singletonLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("worker already running (lock held on %s): %w", path, err)
	}
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	return &singletonLock{path: path, file: f}, nil
}

func (l *singletonLock) release() {
	if l == nil || l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
}
