// Package doctor checks an openbook configuration against the machine it
// will run on: the reader executable, the book files and the API settings.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/openbook/internal/auth"
	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/config"
	"github.com/mattjoyce/openbook/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`

	// StateFilesystem is where the state database would be stored, when it
	// could be determined.
	StateFilesystem *storage.Filesystem `json:"state_filesystem,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

var knownScopes = []string{
	auth.ScopeAll,
	auth.ScopeQuery,
	auth.ScopeBooksRO,
	auth.ScopeBooksRW,
	auth.ScopeEventsRO,
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	detectFS func(string) (storage.Filesystem, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, detectFS: storage.DetectFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateReader(r)
	d.validateBooks(r)
	d.validateState(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnDeprecatedSyntax(r)
	d.warnSuspiciousSchedule(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateReader checks that the reader executable can be started.
func (d *Doctor) validateReader(r *Result) {
	exe := d.cfg.Reader.Executable
	if exe == "" {
		d.addError(r, "reader", "reader.executable", "reader.executable is required")
		return
	}

	info, err := os.Stat(exe)
	switch {
	case err != nil:
		d.addError(r, "reader", "reader.executable", fmt.Sprintf("cannot stat %s: %v", exe, err))
	case info.IsDir():
		d.addError(r, "reader", "reader.executable", fmt.Sprintf("%s is a directory", exe))
	case info.Mode().Perm()&0o111 == 0:
		d.addError(r, "reader", "reader.executable", fmt.Sprintf("%s is not executable", exe))
	}

	hasPlaceholder := slices.ContainsFunc(d.cfg.Reader.Args, func(a string) bool {
		return strings.Contains(a, book.BookArgPlaceholder)
	})
	if d.cfg.Reader.InlineBooks && hasPlaceholder {
		d.addWarning(r, "reader", "reader.args",
			fmt.Sprintf("%s is dropped in inline_books mode; books are named per query", book.BookArgPlaceholder))
	}
	if d.cfg.Reader.ShutdownGrace > 0 && d.cfg.Reader.ShutdownGrace < 100*time.Millisecond {
		d.addWarning(r, "reader", "reader.shutdown_grace",
			fmt.Sprintf("shutdown_grace %s leaves little time for queued queries", d.cfg.Reader.ShutdownGrace))
	}
}

// validateBooks checks that every book file is readable.
func (d *Doctor) validateBooks(r *Result) {
	for i, b := range d.cfg.Books {
		field := fmt.Sprintf("books[%d].path", i)
		info, err := os.Stat(b.Path)
		if err != nil {
			d.addError(r, "books", field, fmt.Sprintf("book %q: %v", b.Name, err))
			continue
		}
		if !info.Mode().IsRegular() {
			d.addError(r, "books", field, fmt.Sprintf("book %q: %s is not a regular file", b.Name, b.Path))
			continue
		}
		if info.Size() == 0 {
			d.addWarning(r, "books", field, fmt.Sprintf("book %q is empty", b.Name))
		}
	}
}

// validateState checks that the state database directory is usable.
func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	dir := filepath.Dir(d.cfg.State.Path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		d.addWarning(r, "state", "state.path", fmt.Sprintf("directory %s does not exist and will be created", dir))
	case err != nil:
		d.addError(r, "state", "state.path", fmt.Sprintf("cannot stat %s: %v", dir, err))
		return
	case !info.IsDir():
		d.addError(r, "state", "state.path", fmt.Sprintf("%s is not a directory", dir))
		return
	}

	fs, err := d.detectFS(d.cfg.State.Path)
	if err != nil {
		d.addWarning(r, "state", "state.path", fmt.Sprintf("cannot determine filesystem: %v", err))
		return
	}
	r.StateFilesystem = &fs
	if fs.Network {
		d.addError(r, "state", "state.path",
			fmt.Sprintf("%s is on network filesystem %q; SQLite needs a local filesystem", fs.Path, fs.Type))
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
}

// validateTokenScopes checks that every scope is one the API understands.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			scope = strings.TrimSpace(scope)
			if !slices.Contains(knownScopes, scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected one of %s)", scope, strings.Join(knownScopes, ", ")))
			}
		}
	}
}

// warnDeprecatedSyntax warns about overlapping credentials.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; api_key grants every scope")
	}
}

// warnSuspiciousSchedule warns about maintenance intervals that seem too short.
func (d *Doctor) warnSuspiciousSchedule(r *Result) {
	interval, err := config.ParseInterval(d.cfg.Maintenance.Every)
	if err != nil {
		d.addError(r, "schedule", "maintenance.every", err.Error())
		return
	}
	if interval < time.Minute {
		d.addWarning(r, "schedule", "maintenance.every",
			fmt.Sprintf("maintenance interval %q is very short (< 1m)", d.cfg.Maintenance.Every))
	}
	if !d.cfg.Cache.IsEnabled() && d.cfg.Maintenance.QueryLogRetention == 0 {
		d.addWarning(r, "schedule", "maintenance",
			"cache disabled and query log kept forever; maintenance has nothing to prune")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		writeStateFilesystem(&b, r)
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}
	writeStateFilesystem(&b, r)

	return b.String()
}

func writeStateFilesystem(b *strings.Builder, r *Result) {
	if r.StateFilesystem != nil {
		fmt.Fprintf(b, "State database on %s (%s)\n", r.StateFilesystem.Type, r.StateFilesystem.Path)
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
