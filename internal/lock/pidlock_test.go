package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "data", FileName)
	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, err := HolderPID(lockPath)
	if err != nil {
		t.Fatalf("HolderPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("HolderPID = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), FileName)
	first, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// flock locks belong to the open file description, so a second open in
	// the same process conflicts.
	if _, err := Acquire(lockPath); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestPathFor(t *testing.T) {
	t.Parallel()

	got := PathFor("/var/lib/openbook/state.db")
	if want := filepath.Join("/var/lib/openbook", FileName); got != want {
		t.Fatalf("PathFor = %q, want %q", got, want)
	}
}

func TestAcquireEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Acquire(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
