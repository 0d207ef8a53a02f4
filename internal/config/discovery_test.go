package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverConfigPathFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "custom.yaml", lockedConfig)
	t.Setenv(EnvConfigPath, path)

	got, err := DiscoverConfigPath()
	if err != nil {
		t.Fatalf("DiscoverConfigPath() error = %v", err)
	}
	if got != path {
		t.Errorf("DiscoverConfigPath() = %q, want %q", got, path)
	}

	t.Setenv(EnvConfigPath, filepath.Join(dir, "missing.yaml"))
	if _, err := DiscoverConfigPath(); err == nil {
		t.Error("DiscoverConfigPath() should fail when the env path does not exist")
	}
}

func TestDiscoverConfigPathUserDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvConfigPath, "")
	t.Setenv("HOME", home)

	userDir := filepath.Join(home, ".config", "openbook")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatal(err)
	}
	want := writeConfig(t, userDir, "config.yaml", lockedConfig)

	got, err := DiscoverConfigPath()
	if err != nil {
		t.Fatalf("DiscoverConfigPath() error = %v", err)
	}
	if got != want {
		t.Errorf("DiscoverConfigPath() = %q, want %q", got, want)
	}
}

func TestDiscoverAllConfigFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "more")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, sub, "books.yaml", "include: [../shared.yaml]\n")
	writeConfig(t, dir, "shared.yaml", "service:\n  name: x\n")
	root := writeConfig(t, dir, "config.yaml", "include: [more/books.yaml, shared.yaml]\n")

	files, err := DiscoverAllConfigFiles(root)
	if err != nil {
		t.Fatalf("DiscoverAllConfigFiles() error = %v", err)
	}
	want := []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(sub, "books.yaml"),
		filepath.Join(dir, "shared.yaml"),
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	seen := map[string]bool{}
	for _, f := range files {
		seen[f] = true
	}
	for _, w := range want {
		if !seen[w] {
			t.Errorf("missing %s in %v", w, files)
		}
	}
}
