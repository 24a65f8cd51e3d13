// Package config loads and validates the repository's config.json, the
// sole configuration source beyond command-line flags (spec.md §6).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the conventional config file name inside a repository
// directory, e.g. ".scribe/config.json".
const FileName = "config.json"

// Config is the operator configuration persisted at .scribe/config.json.
// AuthorID/AuthorRole seed the identity used for manually authored commits
// and as the CDC Monitor's default attribution; PGConnectionString and
// WatchedTables are optional and only required to run `scribe watch`.
type Config struct {
	AuthorID           string   `json:"author_id"`
	AuthorRole         string   `json:"author_role"`
	PGConnectionString string   `json:"pg_connection_string,omitempty"`
	WatchedTables      []string `json:"watched_tables,omitempty"`

	// Ambient operational settings, not part of spec.md's config.json
	// shape but carried the way the teacher carries service-wide knobs
	// alongside its domain configuration.
	LogLevel     string `json:"log_level,omitempty"`
	OTELEndpoint string `json:"otel_endpoint,omitempty"`
	OTELInsecure bool   `json:"otel_insecure,omitempty"`
	ServiceName  string `json:"service_name,omitempty"`
}

// Default returns a Config seeded with the given author identity and the
// ambient defaults `init` writes into a freshly created repository.
func Default(authorID, authorRole string) Config {
	if authorID == "" {
		authorID = "user:unknown"
	}
	if authorRole == "" {
		authorRole = "operator"
	}
	return Config{
		AuthorID:    authorID,
		AuthorRole:  authorRole,
		LogLevel:    "info",
		ServiceName: "scribe",
	}
}

// Path returns the conventional config file path inside a repository
// directory.
func Path(repoDir string) string {
	return filepath.Join(repoDir, FileName)
}

// Load reads and validates the config.json at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "scribe"
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path as pretty-printed JSON, creating parent
// directories as needed. This is distinct from envelope's canonical form:
// config.json is operator-facing and has no content-addressing role.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error

	if c.AuthorID == "" {
		errs = append(errs, errors.New("config: author_id is required"))
	}
	if c.AuthorRole == "" {
		errs = append(errs, errors.New("config: author_role is required"))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	for _, t := range c.WatchedTables {
		if t == "" {
			errs = append(errs, errors.New("config: watched_tables entries must not be empty"))
			break
		}
	}

	return errors.Join(errs...)
}
