package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file or a directory holding
// config.yaml. Files named in include are merged in order.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(visited))
	for p := range visited {
		paths = append(paths, p)
	}
	if err := verifyAllConfigHashes(paths); err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadIncludes recursively loads and merges files from the include array.
// visited tracks loaded files to prevent cycles.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)

		resolvedPath := includePath
		if !filepath.IsAbs(includePath) {
			resolvedPath = filepath.Join(baseDir, includePath)
		}
		absPath, err := filepath.Abs(resolvedPath)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}

		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("include[%d]: file not found: %s\n"+
					"Referenced from: %s\n"+
					"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
			}
			return fmt.Errorf("include[%d]: failed to access file %s: %w", i, absPath, err)
		}
		visited[absPath] = true

		includedCfg, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}

		// Book paths in an included file are relative to that file.
		resolveBookPaths(includedCfg.Books, filepath.Dir(absPath))
		deepMergeConfig(cfg, includedCfg)

		if len(includedCfg.Include) > 0 {
			if err := loadIncludes(cfg, includedCfg.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// deepMergeConfig merges src into dst. Non-zero scalars in src win; books
// are appended.
func deepMergeConfig(dst, src *Config) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Service.LogFormat != "" {
		dst.Service.LogFormat = src.Service.LogFormat
	}

	if src.Reader.Executable != "" {
		dst.Reader.Executable = src.Reader.Executable
	}
	if len(src.Reader.Args) > 0 {
		dst.Reader.Args = src.Reader.Args
	}
	if src.Reader.InlineBooks {
		dst.Reader.InlineBooks = true
	}
	if src.Reader.ShutdownGrace != 0 {
		dst.Reader.ShutdownGrace = src.Reader.ShutdownGrace
	}

	dst.Books = append(dst.Books, src.Books...)
	if src.DefaultBook != "" {
		dst.DefaultBook = src.DefaultBook
	}

	if src.State.Path != "" {
		dst.State.Path = src.State.Path
	}

	if src.API.Enabled {
		dst.API.Enabled = true
	}
	if src.API.Listen != "" {
		dst.API.Listen = src.API.Listen
	}
	if src.API.Auth.APIKey != "" {
		dst.API.Auth.APIKey = src.API.Auth.APIKey
	}
	dst.API.Auth.Tokens = append(dst.API.Auth.Tokens, src.API.Auth.Tokens...)

	if src.Assessment.SidelineThreshold != 0 {
		dst.Assessment.SidelineThreshold = src.Assessment.SidelineThreshold
	}
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.TTL != 0 {
		dst.Cache.TTL = src.Cache.TTL
	}

	if src.Maintenance.Every != "" {
		dst.Maintenance.Every = src.Maintenance.Every
	}
	if src.Maintenance.Jitter != 0 {
		dst.Maintenance.Jitter = src.Maintenance.Jitter
	}
	if src.Maintenance.QueryLogRetention != 0 {
		dst.Maintenance.QueryLogRetention = src.Maintenance.QueryLogRetention
	}
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Reader.ShutdownGrace == 0 {
		cfg.Reader.ShutdownGrace = defaults.Reader.ShutdownGrace
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Assessment.SidelineThreshold == 0 {
		cfg.Assessment.SidelineThreshold = defaults.Assessment.SidelineThreshold
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = defaults.Cache.TTL
	}
	if cfg.Maintenance.Every == "" {
		cfg.Maintenance = defaults.Maintenance
	}
	if cfg.DefaultBook == "" && len(cfg.Books) > 0 {
		cfg.DefaultBook = cfg.Books[0].Name
	}
	return cfg
}

// resolvePaths makes book paths and a relative reader executable absolute
// against the config directory.
func resolvePaths(cfg *Config, baseDir string) {
	resolveBookPaths(cfg.Books, baseDir)
	exe := cfg.Reader.Executable
	if exe != "" && !filepath.IsAbs(exe) && strings.ContainsRune(exe, filepath.Separator) {
		cfg.Reader.Executable = filepath.Join(baseDir, exe)
	}
}

func resolveBookPaths(books []BookConfig, baseDir string) {
	for i := range books {
		p := books[i].Path
		if p != "" && !filepath.IsAbs(p) {
			books[i].Path = filepath.Join(baseDir, p)
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	if cfg.Reader.Executable == "" {
		return fmt.Errorf("reader.executable is required")
	}
	if err := unresolved("reader.executable", cfg.Reader.Executable); err != nil {
		return err
	}
	if cfg.Reader.ShutdownGrace < 0 {
		return fmt.Errorf("reader.shutdown_grace must not be negative")
	}

	if len(cfg.Books) == 0 {
		return fmt.Errorf("at least one book is required")
	}
	seen := make(map[string]bool, len(cfg.Books))
	for i, b := range cfg.Books {
		if b.Name == "" {
			return fmt.Errorf("books[%d].name is required", i)
		}
		if b.Path == "" {
			return fmt.Errorf("books[%d] (%s): path is required", i, b.Name)
		}
		if strings.ContainsAny(b.Path, " \t") && cfg.Reader.InlineBooks {
			return fmt.Errorf("books[%d] (%s): path must not contain whitespace when reader.inline_books is set", i, b.Name)
		}
		if err := unresolved(fmt.Sprintf("books[%d].path", i), b.Path); err != nil {
			return err
		}
		if seen[b.Name] {
			return fmt.Errorf("books[%d]: duplicate book name %q", i, b.Name)
		}
		seen[b.Name] = true
	}
	if !seen[cfg.DefaultBook] {
		return fmt.Errorf("default_book %q is not a configured book", cfg.DefaultBook)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.API.Enabled {
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, t := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d].token", i)
			if t.Token == "" {
				return fmt.Errorf("%s is required", field)
			}
			if err := unresolved(field, t.Token); err != nil {
				return err
			}
			if len(t.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes is required", i)
			}
		}
	}

	if cfg.Assessment.SidelineThreshold < 0 {
		return fmt.Errorf("assessment.sideline_threshold must be positive")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if _, err := ParseInterval(cfg.Maintenance.Every); err != nil {
		return fmt.Errorf("maintenance.every: %w", err)
	}
	if cfg.Maintenance.Jitter < 0 || cfg.Maintenance.QueryLogRetention < 0 {
		return fmt.Errorf("maintenance durations must not be negative")
	}
	return nil
}

// ParseInterval parses a schedule such as "15m", "hourly" or "daily".
func ParseInterval(interval string) (time.Duration, error) {
	switch interval {
	case "hourly":
		return time.Hour, nil
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule interval %q: %w", interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("schedule interval must be positive: %q", interval)
	}
	return d, nil
}

// unresolved reports a ${VAR} placeholder left in value.
func unresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
