package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func staticDetector(fsType string) func(string) (string, error) {
	return func(string) (string, error) { return fsType, nil }
}

func TestCheckLocalFilesystem_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	if err := checkLocalFilesystem(dbPath, staticDetector("apfs")); err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystem_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	err := checkLocalFilesystem(dbPath, staticDetector("smbfs"))
	if !errors.Is(err, ErrNetworkFilesystem) {
		t.Fatalf("expected ErrNetworkFilesystem, got %v", err)
	}
	for _, want := range []string{"smbfs", "state.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to contain %q, got %q", want, err)
		}
	}
}

func TestDetectFilesystem_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "state.db")

	var inspected string
	fs, err := detectFilesystemWith(dbPath, func(path string) (string, error) {
		inspected = path
		return "NFS", nil
	})
	if err != nil {
		t.Fatalf("detectFilesystemWith: %v", err)
	}
	if inspected != root || fs.Path != root {
		t.Fatalf("expected %q to be inspected, got %q (fs.Path %q)", root, inspected, fs.Path)
	}
	if fs.Type != "NFS" || !fs.Network {
		t.Fatalf("unexpected result %+v", fs)
	}
}

func TestDetectFilesystem_Errors(t *testing.T) {
	t.Parallel()

	if _, err := DetectFilesystem(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	_, err := detectFilesystemWith(filepath.Join(t.TempDir(), "state.db"), func(string) (string, error) {
		return "", errors.New("statfs failed")
	})
	if err == nil || !strings.Contains(err.Error(), "statfs failed") {
		t.Fatalf("expected detector error, got %v", err)
	}
}

func TestDetectFilesystem_RealPath(t *testing.T) {
	t.Parallel()

	fs, err := DetectFilesystem(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("DetectFilesystem: %v", err)
	}
	if fs.Type == "" {
		t.Fatal("expected a filesystem type")
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fs   string
		want bool
	}{
		{name: "nfs", fs: "nfs", want: true},
		{name: "smbfs uppercase", fs: "SMBFS", want: true},
		{name: "local apfs", fs: "apfs", want: false},
		{name: "unnamed linux magic", fs: "0x6969", want: false},
		{name: "ext4", fs: "ext4", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isNetworkFilesystem(tc.fs); got != tc.want {
				t.Fatalf("isNetworkFilesystem(%q)=%v, want %v", tc.fs, got, tc.want)
			}
		})
	}
}
