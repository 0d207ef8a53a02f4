package config

import "time"

// Config represents the complete openbook configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Reader      ReaderConfig      `yaml:"reader"`
	Books       []BookConfig      `yaml:"books"`
	DefaultBook string            `yaml:"default_book,omitempty"`
	State       StateConfig       `yaml:"state"`
	API         APIConfig         `yaml:"api,omitempty"`
	Assessment  AssessmentConfig  `yaml:"assessment,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Maintenance MaintenanceConfig `yaml:"maintenance,omitempty"`
	Include     []string          `yaml:"include,omitempty"`

	// SourcePath is the absolute path of the root config file.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ReaderConfig describes the book reader executable.
type ReaderConfig struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args,omitempty"`
	// InlineBooks sends the book path with every query to a single reader
	// process instead of starting one process per book.
	InlineBooks   bool          `yaml:"inline_books,omitempty"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace,omitempty"`
}

// BookConfig defines one opening book.
type BookConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label,omitempty"`
	Path  string `yaml:"path"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. With no APIKey and no
// Tokens the API is open.
type APIAuthConfig struct {
	APIKey string           `yaml:"api_key"`
	Tokens []APITokenConfig `yaml:"tokens,omitempty"`
}

// APITokenConfig is a bearer token limited to some scopes.
type APITokenConfig struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// AssessmentConfig tunes mainline/sideline classification.
type AssessmentConfig struct {
	SidelineThreshold int `yaml:"sideline_threshold"`
}

// CacheConfig controls the query result cache.
type CacheConfig struct {
	Enabled *bool         `yaml:"enabled,omitempty"`
	TTL     time.Duration `yaml:"ttl,omitempty"`
}

// MaintenanceConfig schedules pruning of the cache and the query log.
type MaintenanceConfig struct {
	// Every is a duration such as "30m", or "hourly" or "daily".
	Every  string        `yaml:"every"`
	Jitter time.Duration `yaml:"jitter,omitempty"`
	// QueryLogRetention is how long query log entries are kept. Zero keeps
	// them forever.
	QueryLogRetention time.Duration `yaml:"query_log_retention,omitempty"`
}

// IsEnabled reports whether caching is on. It defaults to true.
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "openbook",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Reader: ReaderConfig{
			ShutdownGrace: 5 * time.Second,
		},
		State: StateConfig{
			Path: "./data/openbook.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Assessment: AssessmentConfig{
			SidelineThreshold: 10,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Maintenance: MaintenanceConfig{
			Every:             "hourly",
			Jitter:            time.Minute,
			QueryLogRetention: 30 * 24 * time.Hour,
		},
	}
}

// Book returns the named book.
func (c *Config) Book(name string) (BookConfig, bool) {
	for _, b := range c.Books {
		if b.Name == name {
			return b, true
		}
	}
	return BookConfig{}, false
}
