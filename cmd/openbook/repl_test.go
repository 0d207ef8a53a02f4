package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func replFixture(t *testing.T) (reader, bookPath string) {
	t.Helper()
	dir := t.TempDir()
	reader = writeFakeReader(t, dir)
	bookPath = filepath.Join(dir, "italian.bin")
	if err := os.WriteFile(bookPath, []byte(strings.Repeat("x", 40)), 0o644); err != nil {
		t.Fatal(err)
	}
	return reader, bookPath
}

func TestRunRepl(t *testing.T) {
	reader, bookPath := replFixture(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "query then quit",
			input: "fromfen " + startFEN + "\nquit\n",
			want:  "positionmoves 2\ne2e4 40\nd2d4 1\nexit code 0\n",
		},
		{
			name:  "exit is a hard shutdown",
			input: "fromfen 8/8/8/8/8/8/8/8 w - - 0 5\nexit\n",
			want:  "positionmoves 2\ne2e4 40\nd2d4 5\nexit code 7\n",
		},
		{
			name:  "end of input quits",
			input: "\n",
			want:  "exit code 0\n",
		},
		{
			name:  "unknown command",
			input: "go depth 10\nquit\n",
			want:  "error: unknown command \"go\" (want fromfen, quit or exit)\nexit code 0\n",
		},
		{
			name:  "empty position",
			input: "fromfen\nquit\n",
			want:  "error: invalid position: position is empty\nexit code 0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := runRepl([]string{"--grace", "2s", reader, bookPath}, strings.NewReader(tt.input), &out)
			if code != 0 {
				t.Fatalf("exit code = %d, output = %q", code, out.String())
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestRunReplReaderCrash(t *testing.T) {
	reader, bookPath := replFixture(t)

	var out bytes.Buffer
	input := "fromfen crash\nfromfen " + startFEN + "\n"
	code := runRepl([]string{reader, bookPath}, strings.NewReader(input), &out)
	if code != 0 {
		t.Fatalf("exit code = %d, output = %q", code, out.String())
	}

	var errs []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "error: ") {
			errs = append(errs, line)
		}
	}
	if len(errs) != 2 {
		t.Fatalf("want both queries to fail, got %q", out.String())
	}
	for _, e := range errs {
		if !strings.Contains(e, "process terminated") {
			t.Errorf("reply = %q, want a process terminated error", e)
		}
	}
	if !strings.HasSuffix(out.String(), "exit code 1\n") {
		t.Errorf("output = %q, want the crash exit code last", out.String())
	}
}

func TestRunReplSpawnFailure(t *testing.T) {
	var out bytes.Buffer
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runRepl([]string{"/nonexistent/reader"}, strings.NewReader(""), &out)
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Failed to start reader") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunReplUsage(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runRepl(nil, strings.NewReader(""), &bytes.Buffer{})
	})
	if code != 1 || !strings.Contains(stderr, "Usage") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}
