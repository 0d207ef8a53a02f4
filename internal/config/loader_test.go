package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config, dir string)
	}{
		{
			name: "minimal valid config",
			yaml: `
reader:
  executable: /usr/local/bin/book_reader
books:
  - name: italian
    path: books/italian.bin
`,
			checkFn: func(t *testing.T, cfg *Config, dir string) {
				if cfg.Service.Name != "openbook" {
					t.Errorf("service.name = %q, want default", cfg.Service.Name)
				}
				if cfg.Reader.ShutdownGrace != 5*time.Second {
					t.Errorf("shutdown_grace = %v, want 5s", cfg.Reader.ShutdownGrace)
				}
				if cfg.DefaultBook != "italian" {
					t.Errorf("default_book = %q, want first book", cfg.DefaultBook)
				}
				if want := filepath.Join(dir, "books", "italian.bin"); cfg.Books[0].Path != want {
					t.Errorf("book path = %q, want %q", cfg.Books[0].Path, want)
				}
				if cfg.Assessment.SidelineThreshold != 10 {
					t.Errorf("sideline_threshold = %d, want 10", cfg.Assessment.SidelineThreshold)
				}
				if !cfg.Cache.IsEnabled() || cfg.Cache.TTL != 24*time.Hour {
					t.Errorf("cache defaults not applied: %+v", cfg.Cache)
				}
				if cfg.API.Enabled || cfg.API.Listen != "127.0.0.1:8080" {
					t.Errorf("api defaults not applied: %+v", cfg.API)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: trainer
  log_level: debug
  log_format: text
reader:
  executable: ./bin/book_reader
  args: ["{book}", "--quiet"]
  inline_books: true
  shutdown_grace: 2s
books:
  - name: italian
    label: Italian Game
    path: /books/italian.bin
  - name: sicilian
    path: /books/sicilian.bin
default_book: sicilian
state:
  path: /var/lib/openbook/state.db
api:
  enabled: true
  listen: 0.0.0.0:9000
  auth:
    api_key: secret
    tokens:
      - token: ro-token
        scopes: [query, books:ro]
assessment:
  sideline_threshold: 20
cache:
  enabled: false
  ttl: 1h
`,
			checkFn: func(t *testing.T, cfg *Config, dir string) {
				if cfg.Service.Name != "trainer" || cfg.Service.LogFormat != "text" {
					t.Errorf("service not parsed: %+v", cfg.Service)
				}
				if want := filepath.Join(dir, "bin", "book_reader"); cfg.Reader.Executable != want {
					t.Errorf("executable = %q, want %q", cfg.Reader.Executable, want)
				}
				if len(cfg.Reader.Args) != 2 || cfg.Reader.Args[0] != "{book}" {
					t.Errorf("args = %v", cfg.Reader.Args)
				}
				if !cfg.Reader.InlineBooks || cfg.Reader.ShutdownGrace != 2*time.Second {
					t.Errorf("reader not parsed: %+v", cfg.Reader)
				}
				if cfg.DefaultBook != "sicilian" {
					t.Errorf("default_book = %q", cfg.DefaultBook)
				}
				if b, ok := cfg.Book("italian"); !ok || b.Label != "Italian Game" {
					t.Errorf("Book(italian) = %+v, %v", b, ok)
				}
				if !cfg.API.Enabled || cfg.API.Auth.APIKey != "secret" {
					t.Errorf("api not parsed: %+v", cfg.API)
				}
				if len(cfg.API.Auth.Tokens) != 1 || len(cfg.API.Auth.Tokens[0].Scopes) != 2 {
					t.Errorf("api tokens not parsed: %+v", cfg.API.Auth.Tokens)
				}
				if cfg.Assessment.SidelineThreshold != 20 {
					t.Errorf("sideline_threshold = %d", cfg.Assessment.SidelineThreshold)
				}
				if cfg.Cache.IsEnabled() || cfg.Cache.TTL != time.Hour {
					t.Errorf("cache not parsed: %+v", cfg.Cache)
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
reader:
  executable: ${READER_BIN}
books:
  - name: main
    path: ${BOOK_DIR}/main.bin
api:
  enabled: true
  auth:
    api_key: ${OPENBOOK_TEST_KEY}
`,
			env: map[string]string{
				"READER_BIN":        "/opt/reader",
				"BOOK_DIR":          "/data/books",
				"OPENBOOK_TEST_KEY": "k3y",
			},
			checkFn: func(t *testing.T, cfg *Config, dir string) {
				if cfg.Reader.Executable != "/opt/reader" {
					t.Errorf("executable = %q", cfg.Reader.Executable)
				}
				if cfg.Books[0].Path != "/data/books/main.bin" {
					t.Errorf("book path = %q", cfg.Books[0].Path)
				}
				if cfg.API.Auth.APIKey != "k3y" {
					t.Errorf("api_key = %q", cfg.API.Auth.APIKey)
				}
			},
		},
		{
			name: "unset api key variable",
			yaml: `
reader:
  executable: /bin/reader
books:
  - name: main
    path: /main.bin
api:
  enabled: true
  auth:
    api_key: ${OPENBOOK_UNSET_KEY_FOR_TEST}
`,
			wantErr: "OPENBOOK_UNSET_KEY_FOR_TEST",
		},
		{
			name: "token without scopes",
			yaml: `
reader:
  executable: /bin/reader
books:
  - name: main
    path: /main.bin
api:
  enabled: true
  auth:
    tokens:
      - token: abc
`,
			wantErr: "api.auth.tokens[0].scopes is required",
		},
		{
			name: "missing executable",
			yaml: `
books:
  - name: main
    path: /main.bin
`,
			wantErr: "reader.executable is required",
		},
		{
			name: "no books",
			yaml: `
reader:
  executable: /bin/reader
`,
			wantErr: "at least one book",
		},
		{
			name: "duplicate book",
			yaml: `
reader:
  executable: /bin/reader
books:
  - name: main
    path: /a.bin
  - name: main
    path: /b.bin
`,
			wantErr: "duplicate book name",
		},
		{
			name: "unknown default book",
			yaml: `
reader:
  executable: /bin/reader
books:
  - name: main
    path: /a.bin
default_book: other
`,
			wantErr: "default_book",
		},
		{
			name: "bad log level",
			yaml: `
service:
  log_level: verbose
reader:
  executable: /bin/reader
books:
  - name: main
    path: /a.bin
`,
			wantErr: "log_level",
		},
		{
			name: "inline book path with space",
			yaml: `
reader:
  executable: /bin/reader
  inline_books: true
books:
  - name: main
    path: /my books/a.bin
`,
			wantErr: "whitespace",
		},
		{
			name:    "invalid yaml",
			yaml:    "books: [",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			path := writeConfig(t, dir, "config.yaml", tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.SourcePath != path {
				t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg, dir)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
reader:
  executable: /bin/reader
books:
  - name: main
    path: main.bin
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.Books[0].Path != filepath.Join(dir, "main.bin") {
		t.Errorf("book path = %q", cfg.Books[0].Path)
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load on a directory without config.yaml should fail")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load on a missing file should fail")
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "books")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, sub, "books.yaml", `
books:
  - name: sicilian
    path: sicilian.bin
default_book: sicilian
`)
	root := writeConfig(t, dir, "config.yaml", `
include:
  - books/books.yaml
reader:
  executable: /bin/reader
books:
  - name: italian
    path: italian.bin
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Books) != 2 {
		t.Fatalf("len(books) = %d, want 2", len(cfg.Books))
	}
	if cfg.Books[0].Path != filepath.Join(dir, "italian.bin") {
		t.Errorf("root book path = %q", cfg.Books[0].Path)
	}
	if cfg.Books[1].Path != filepath.Join(sub, "sicilian.bin") {
		t.Errorf("included book path = %q, want it relative to the included file", cfg.Books[1].Path)
	}
	if cfg.DefaultBook != "sicilian" {
		t.Errorf("default_book = %q, want included override", cfg.DefaultBook)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")
	root := writeConfig(t, dir, "config.yaml", `
include: [a.yaml]
reader:
  executable: /bin/reader
books:
  - name: main
    path: /main.bin
`)
	_, err := Load(root)
	if err == nil || !strings.Contains(err.Error(), "circular") {
		t.Fatalf("Load() error = %v, want circular dependency", err)
	}
}

func TestLoadMissingInclude(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "config.yaml", `
include: [nope.yaml]
reader:
  executable: /bin/reader
books:
  - name: main
    path: /main.bin
`)
	_, err := Load(root)
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("Load() error = %v, want file not found", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("OPENBOOK_SET", "yes")
	got := interpolateEnv("a=${OPENBOOK_SET} b=${OPENBOOK_NOT_SET_ANYWHERE}")
	if got != "a=yes b=${OPENBOOK_NOT_SET_ANYWHERE}" {
		t.Errorf("interpolateEnv() = %q", got)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "hourly", want: time.Hour},
		{in: "daily", want: 24 * time.Hour},
		{in: "weekly", want: 7 * 24 * time.Hour},
		{in: "15m", want: 15 * time.Minute},
		{in: "0s", wantErr: true},
		{in: "-1h", wantErr: true},
		{in: "fortnightly", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInterval(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseInterval(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
