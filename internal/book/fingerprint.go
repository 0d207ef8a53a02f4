package book

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zeebo/blake3"
)

// Fingerprint returns "blake3:<hex>" of the book file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open book file: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash book file: %w", err)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}

// fingerprintOrPath falls back to hashing the path itself when the file is
// not readable here, e.g. when only the reader process can resolve it.
func fingerprintOrPath(path string, logger *slog.Logger) string {
	fp, err := Fingerprint(path)
	if err == nil {
		return fp
	}
	logger.Warn("cannot fingerprint book file, keying by path", "path", path, "error", err)
	sum := blake3.Sum256([]byte(path))
	return "path:" + hex.EncodeToString(sum[:])
}
