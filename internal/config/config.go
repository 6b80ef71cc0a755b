// Package config handles loading and managing wahistory configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Config represents the wahistory configuration.
type Config struct {
	Data    DataConfig      `toml:"data"`
	Import  ImportConfig    `toml:"import"`
	Vault   VaultConfig     `toml:"vault"`
	Fetch   FetchConfig     `toml:"fetch"`
	Server  ServerConfig    `toml:"server"`
	Watches []WatchSchedule `toml:"watch"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
	RawDir  string `toml:"raw_dir"` // Directory scanned for exported chats
}

// ImportConfig controls the extraction pipeline.
type ImportConfig struct {
	BatchSize     int    `toml:"batch_size"`      // Files per extraction batch
	Concurrency   int    `toml:"concurrency"`     // Files in flight within a batch
	Timezone      string `toml:"timezone"`        // IANA zone for transcript timestamps; empty = local
	MaxMediaBytes int64  `toml:"max_media_bytes"` // Largest media entry read from an archive
}

// VaultConfig holds media encryption settings.
type VaultConfig struct {
	PassphraseEnv string `toml:"passphrase_env"` // Env var holding the passphrase
	Salt          string `toml:"salt"`
	Iterations    int    `toml:"iterations"`
}

// FetchConfig configures fetching transcripts from a remote raw-file host.
type FetchConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"` // Key of the remote instance
	RateLimitQPS   float64 `toml:"rate_limit_qps"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort    int    `toml:"api_port"`    // HTTP server port (default: 8080)
	BindAddr   string `toml:"bind_addr"`   // Listen address (default: 127.0.0.1)
	APIKey     string `toml:"api_key"`     // API authentication key
	CacheBytes int64  `toml:"cache_bytes"` // Decrypted media cache budget

	CORSOrigins []string `toml:"cors_origins"` // Allowed browser origins; empty disables CORS
	RateLimit   float64  `toml:"rate_limit"`   // Requests per second per client (default: 10)
}

// WatchSchedule defines an unattended import schedule for one directory.
type WatchSchedule struct {
	Dir      string `toml:"dir"`      // Directory to scan; empty means raw_dir
	Schedule string `toml:"schedule"` // Cron expression (e.g., "0 2 * * *" for 2am daily)
	Enabled  bool   `toml:"enabled"`
}

// DefaultHome returns the default wahistory home directory.
// Respects WAHISTORY_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("WAHISTORY_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wahistory"
	}
	return filepath.Join(home, ".wahistory")
}

// NewDefaultConfig returns a configuration populated with defaults rooted at homeDir.
func NewDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Import: ImportConfig{
			BatchSize:     10,
			Concurrency:   3,
			MaxMediaBytes: 100 * 1024 * 1024,
		},
		Vault: VaultConfig{
			PassphraseEnv: "WAHISTORY_PASSPHRASE",
			Salt:          "wa-history-salt",
			Iterations:    100000,
		},
		Fetch: FetchConfig{
			RateLimitQPS:   5,
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			APIPort:    8080,
			BindAddr:   "127.0.0.1",
			CacheBytes: 64 * 1024 * 1024,
			RateLimit:  10,
		},
		Watches: []WatchSchedule{},
	}
}

// Load reads the configuration from the specified file.
// If path is empty, uses config.toml inside the home directory. homeDir
// overrides WAHISTORY_HOME when set. A missing default file yields defaults;
// a missing explicit file is an error.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	switch {
	case homeDir != "":
		homeDir = expandPath(homeDir)
	case explicit && os.Getenv("WAHISTORY_HOME") == "":
		// An explicit config file defines its own home.
		homeDir = filepath.Dir(expandPath(path))
	default:
		homeDir = DefaultHome()
	}

	if explicit {
		path = expandPath(path)
	} else {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := NewDefaultConfig(homeDir)
	cfg.configPath = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		cfg.applyDerived()
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if strings.Contains(err.Error(), "escape") {
			return nil, fmt.Errorf("decode config: %w (hint: use forward slashes or single-quoted strings for Windows paths)", err)
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = cfg.resolvePath(cfg.Data.DataDir)
	cfg.Data.RawDir = cfg.resolvePath(cfg.Data.RawDir)
	for i := range cfg.Watches {
		cfg.Watches[i].Dir = cfg.resolvePath(cfg.Watches[i].Dir)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDerived fills fields whose defaults depend on other fields.
func (c *Config) applyDerived() {
	if c.Data.DataDir == "" {
		c.Data.DataDir = c.HomeDir
	}
	if c.Data.RawDir == "" {
		c.Data.RawDir = filepath.Join(c.Data.DataDir, "raw")
	}
}

// resolvePath expands ~ and anchors relative paths at the config file's directory.
func (c *Config) resolvePath(p string) string {
	if p == "" {
		return p
	}
	p = expandPath(p)
	if !filepath.IsAbs(p) && c.configPath != "" {
		p = filepath.Join(filepath.Dir(c.configPath), p)
	}
	return p
}

// Validate checks ranges and cron expressions.
func (c *Config) Validate() error {
	if c.Import.BatchSize < 1 {
		return fmt.Errorf("import.batch_size must be at least 1, got %d", c.Import.BatchSize)
	}
	if c.Import.Concurrency < 1 {
		return fmt.Errorf("import.concurrency must be at least 1, got %d", c.Import.Concurrency)
	}
	if c.Import.Timezone != "" {
		if _, err := time.LoadLocation(c.Import.Timezone); err != nil {
			return fmt.Errorf("import.timezone: %w", err)
		}
	}
	if c.Vault.Iterations < 1 {
		return fmt.Errorf("vault.iterations must be positive, got %d", c.Vault.Iterations)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, w := range c.Watches {
		if !w.Enabled {
			continue
		}
		if _, err := parser.Parse(w.Schedule); err != nil {
			return fmt.Errorf("watch %q: invalid schedule %q: %w", w.Dir, w.Schedule, err)
		}
	}
	return nil
}

// ValidateSecure refuses to expose the API beyond loopback without an API
// key.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" {
		return nil
	}
	host := s.BindAddr
	if host == "" || host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("server.bind_addr %q is not loopback: set server.api_key before exposing the API", host)
}

// ConfigFilePath returns the path config was loaded from (or would be).
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the home directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.HomeDir, 0700)
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "wahistory.db")
}

// MediaDir returns the path to the imported media directory.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Data.DataDir, "media")
}

// Location returns the zone used to interpret transcript timestamps.
func (c *Config) Location() *time.Location {
	if c.Import.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Import.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// FetchTimeout returns the per-request timeout for remote fetches.
func (c *Config) FetchTimeout() time.Duration {
	if c.Fetch.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// Passphrase returns the vault passphrase from the configured env var.
func (c *Config) Passphrase() string {
	if c.Vault.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.Vault.PassphraseEnv)
}

// ScheduledWatches returns watches with scheduling enabled. A watch without
// a directory is bound to the raw import directory.
func (c *Config) ScheduledWatches() []WatchSchedule {
	var scheduled []WatchSchedule
	for _, w := range c.Watches {
		if !w.Enabled || w.Schedule == "" {
			continue
		}
		if w.Dir == "" {
			w.Dir = c.Data.RawDir
		}
		scheduled = append(scheduled, w)
	}
	return scheduled
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
