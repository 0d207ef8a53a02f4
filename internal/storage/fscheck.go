package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when the database would live on a network mount.
var ErrNetworkFilesystem = errors.New("database on network filesystem")

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// Filesystem describes where a state database would be stored.
type Filesystem struct {
	// Path is the nearest existing ancestor of the database path.
	Path    string `json:"path"`
	Type    string `json:"type"`
	Network bool   `json:"network"`
}

// DetectFilesystem reports the filesystem holding path, which need not
// exist yet.
func DetectFilesystem(path string) (Filesystem, error) {
	return detectFilesystemWith(path, detectFilesystemType)
}

func detectFilesystemWith(path string, detector func(string) (string, error)) (Filesystem, error) {
	if path == "" {
		return Filesystem{}, fmt.Errorf("sqlite path is empty")
	}
	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return Filesystem{}, fmt.Errorf("resolve database path %q: %w", path, err)
	}
	fsType, err := detector(inspectPath)
	if err != nil {
		return Filesystem{}, fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}
	return Filesystem{Path: inspectPath, Type: fsType, Network: isNetworkFilesystem(fsType)}, nil
}

// validateSQLiteFilesystem refuses database paths on network mounts, where
// SQLite locking is unreliable.
func validateSQLiteFilesystem(path string) error {
	return checkLocalFilesystem(path, detectFilesystemType)
}

func checkLocalFilesystem(path string, detector func(string) (string, error)) error {
	fs, err := detectFilesystemWith(path, detector)
	if err != nil {
		return err
	}
	if fs.Network {
		return fmt.Errorf(
			"%w: database path %q is on %q; SQLite requires a local filesystem for reliable locking. Set state.path to a local file",
			ErrNetworkFilesystem, path, fs.Type)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.TrimSpace(strings.ToLower(fsType))]
	return found
}
