package book

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/openbook/internal/log"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

// fakeReaderScript behaves like a book reader. Every directive is appended
// to <book>.log (or $FAKE_LOG). A fromfen reply has one edge whose count is
// the byte size of the book file, then one edge whose count is the last
// field of the position. A position containing "crash" makes it exit 1 and
// one containing "hang" makes it stop answering. quit exits 0, exit exits 7.
const fakeReaderScript = `#!/bin/sh
book="$1"
logf="${FAKE_LOG:-$book.log}"
while IFS= read -r line; do
  printf '%s\n' "$line" >> "$logf"
  case "$line" in
    quit) exit 0 ;;
    exit) exit 7 ;;
    *crash*) echo "boom" >&2; exit 1 ;;
    *hang*) exec sleep 30 ;;
    fromfen*)
      set -- $line
      if [ $# -eq 8 ]; then b="$2"; else b="$book"; fi
      last=""
      for w in $line; do last="$w"; done
      size=$(wc -c < "$b" | tr -d ' ')
      echo "positionmoves 2"
      echo "e2e4 $size"
      echo "d2d4 $last"
      ;;
  esac
done
`

// writeFakeReader installs the fake reader script and returns its path.
func writeFakeReader(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "fake-reader.sh")
	require.NoError(t, os.WriteFile(path, []byte(fakeReaderScript), 0o755))
	return path
}

// writeBook creates a book file of size bytes.
func writeBook(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name+".bin")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
	return path
}

// directives returns the lines logged by the fake reader to logPath.
func directives(t *testing.T, logPath string) []string {
	t.Helper()
	b, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func fenWithMove(n int) string {
	return "8/8/8/8/8/8/8/8 w - - 0 " + strconv.Itoa(n)
}

const testGrace = 300 * time.Millisecond

func newManagerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
