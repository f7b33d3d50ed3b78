// Copyright 2025 James Ross
package worker

import (
	"path/filepath"
	"testing"
)

func TestAcquireSingletonLockRejectsSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.lock")

	first, err := acquireSingletonLock(path)
	if err != nil {
		t.Fatal(err)
	}
	defer first.release()

	if _, err := acquireSingletonLock(path); err == nil {
		t.Fatal("expected second acquire to fail while first holds the lock")
	}
}

func TestAcquireSingletonLockReleasableAndReacquirable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.lock")

	first, err := acquireSingletonLock(path)
	if err != nil {
		t.Fatal(err)
	}
	first.release()

	second, err := acquireSingletonLock(path)
	if err != nil {
		t.Fatalf("expected reacquire after release to succeed, got %v", err)
	}
	second.release()
}
