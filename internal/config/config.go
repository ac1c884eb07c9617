// Package config implements the hierarchical configuration load: built-in
// defaults, overridden by the user config, overridden by the project
// config, overridden by environment variables, overridden last by CLI
// flags (applied by the caller after Load returns). The manual
// layering style (NewConfig/Load/mergeWith/Validate) carries over a
// BM25/semantic-search config schema generalized to chunkhound's own
// domain: database location, file watching, discovery filters, the
// embedding provider, and the indexing/coordination knobs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete chunkhound configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version" toml:"version"`
	Database     DatabaseConfig     `yaml:"database" json:"database" toml:"database"`
	Discovery    DiscoveryConfig    `yaml:"discovery" json:"discovery" toml:"discovery"`
	Watch        WatchConfig        `yaml:"watch" json:"watch" toml:"watch"`
	Embedding    EmbeddingConfig    `yaml:"embedding" json:"embedding" toml:"embedding"`
	Indexing     IndexingConfig     `yaml:"indexing" json:"indexing" toml:"indexing"`
	Server       ServerConfig       `yaml:"server" json:"server" toml:"server"`
	Coordination CoordinationConfig `yaml:"coordination" json:"coordination" toml:"coordination"`
}

// DatabaseConfig locates the SQLite database and its HNSW sidecar files.
type DatabaseConfig struct {
	Path     string `yaml:"path" json:"path" toml:"path"`
	IndexDir string `yaml:"index_dir" json:"index_dir" toml:"index_dir"`
}

// DiscoveryConfig configures the file-discovery cache: which paths
// are walked and which are skipped.
type DiscoveryConfig struct {
	Include   []string `yaml:"include" json:"include" toml:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude" toml:"exclude"`
	CacheSize int      `yaml:"cache_size" json:"cache_size" toml:"cache_size"`
	CacheTTL  string   `yaml:"cache_ttl" json:"cache_ttl" toml:"cache_ttl"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	Paths            []string `yaml:"paths" json:"paths" toml:"paths"`
	QueueSize        int      `yaml:"queue_size" json:"queue_size" toml:"queue_size"`
	ConsumerInterval string   `yaml:"consumer_interval" json:"consumer_interval" toml:"consumer_interval"`
	CatchUpWindow    string   `yaml:"catch_up_window" json:"catch_up_window" toml:"catch_up_window"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider" json:"provider" toml:"provider"`
	Model          string `yaml:"model" json:"model" toml:"model"`
	APIKey         string `yaml:"api_key" json:"api_key" toml:"api_key"`
	BaseURL        string `yaml:"base_url" json:"base_url" toml:"base_url"`
	Dimensions     int    `yaml:"dimensions" json:"dimensions" toml:"dimensions"`
	BatchSize      int    `yaml:"batch_size" json:"batch_size" toml:"batch_size"`
	MaxConcurrency int    `yaml:"max_concurrency" json:"max_concurrency" toml:"max_concurrency"`
	TokenLimit     int    `yaml:"token_limit" json:"token_limit" toml:"token_limit"`
}

// IndexingConfig configures the indexing coordinator.
type IndexingConfig struct {
	MaxFiles int `yaml:"max_files" json:"max_files" toml:"max_files"`
	Workers  int `yaml:"workers" json:"workers" toml:"workers"`
}

// ServerConfig configures the MCP/HTTP surfaces.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport" toml:"transport"`
	Port      int    `yaml:"port" json:"port" toml:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level" toml:"log_level"`
	MCPMode   bool   `yaml:"mcp_mode" json:"mcp_mode" toml:"mcp_mode"`
}

// CoordinationConfig configures the signal coordinator.
type CoordinationConfig struct {
	RendezvousDir string `yaml:"rendezvous_dir" json:"rendezvous_dir" toml:"rendezvous_dir"`
	ReadyTimeout  string `yaml:"ready_timeout" json:"ready_timeout" toml:"ready_timeout"`
}

var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Database: DatabaseConfig{
			Path:     defaultDBPath(),
			IndexDir: defaultIndexDir(),
		},
		Discovery: DiscoveryConfig{
			Include:   []string{},
			Exclude:   defaultExcludePatterns,
			CacheSize: 1000,
			CacheTTL:  "5m",
		},
		Watch: WatchConfig{
			Enabled:          true,
			Paths:            nil,
			QueueSize:        1000,
			ConsumerInterval: "1s",
			CatchUpWindow:    "3s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "",
			Model:          "",
			Dimensions:     0,
			BatchSize:      32,
			MaxConcurrency: 3,
			TokenLimit:     8192,
		},
		Indexing: IndexingConfig{
			MaxFiles: 100000,
			Workers:  runtime.NumCPU(),
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
			MCPMode:   false,
		},
		Coordination: CoordinationConfig{
			RendezvousDir: "",
			ReadyTimeout:  "10s",
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chunkhound", "chunkhound.db")
	}
	return filepath.Join(home, ".chunkhound", "chunkhound.db")
}

func defaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chunkhound", "indexes")
	}
	return filepath.Join(home, ".chunkhound", "indexes")
}

// GetUserConfigPath returns the user/global configuration file path,
// ~/.chunkhound/config.json.
func GetUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chunkhound", "config.json")
	}
	return filepath.Join(home, ".chunkhound", "config.json")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load builds the final Config for dir by applying, in order of
// increasing precedence: built-in defaults, the user config
// (~/.chunkhound/config.json), the project config
// (<dir>/.chunkhound.json), and environment variables. CLI flags are the
// caller's responsibility to apply after Load returns, since they are
// parsed by cmd/chunkhound, not this package.
func Load(dir string) (*Config, error) {
	loadDotEnv(dir)

	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadProjectConfig(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads a .env file from dir, if present, before environment
// variables are read — covers the legacy OPENAI_API_KEY/OPENAI_BASE_URL
// fallbacks without requiring shell exports.
func loadDotEnv(dir string) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))
}

// loadProjectConfig tries <dir>/.chunkhound.json, then .yaml/.yml, then
// .toml, in that order; the first one found wins.
func (c *Config) loadProjectConfig(dir string) error {
	candidates := []string{".chunkhound.json", ".chunkhound.yaml", ".chunkhound.yml", ".chunkhound.toml"}
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadFile(path)
		}
	}
	return nil
}

// loadFile dispatches to the JSON/YAML/TOML decoder matching path's
// extension, then merges the parsed values into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse toml config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse json config %s: %w", path, err)
		}
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays other's non-zero fields onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Database.IndexDir != "" {
		c.Database.IndexDir = other.Database.IndexDir
	}

	if len(other.Discovery.Include) > 0 {
		c.Discovery.Include = other.Discovery.Include
	}
	if len(other.Discovery.Exclude) > 0 {
		c.Discovery.Exclude = append(c.Discovery.Exclude, other.Discovery.Exclude...)
	}
	if other.Discovery.CacheSize != 0 {
		c.Discovery.CacheSize = other.Discovery.CacheSize
	}
	if other.Discovery.CacheTTL != "" {
		c.Discovery.CacheTTL = other.Discovery.CacheTTL
	}

	if len(other.Watch.Paths) > 0 {
		c.Watch.Paths = other.Watch.Paths
	}
	if other.Watch.QueueSize != 0 {
		c.Watch.QueueSize = other.Watch.QueueSize
	}
	if other.Watch.ConsumerInterval != "" {
		c.Watch.ConsumerInterval = other.Watch.ConsumerInterval
	}
	if other.Watch.CatchUpWindow != "" {
		c.Watch.CatchUpWindow = other.Watch.CatchUpWindow
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.APIKey != "" {
		c.Embedding.APIKey = other.Embedding.APIKey
	}
	if other.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = other.Embedding.BaseURL
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.MaxConcurrency != 0 {
		c.Embedding.MaxConcurrency = other.Embedding.MaxConcurrency
	}
	if other.Embedding.TokenLimit != 0 {
		c.Embedding.TokenLimit = other.Embedding.TokenLimit
	}

	if other.Indexing.MaxFiles != 0 {
		c.Indexing.MaxFiles = other.Indexing.MaxFiles
	}
	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.MCPMode {
		c.Server.MCPMode = other.Server.MCPMode
	}

	if other.Coordination.RendezvousDir != "" {
		c.Coordination.RendezvousDir = other.Coordination.RendezvousDir
	}
	if other.Coordination.ReadyTimeout != "" {
		c.Coordination.ReadyTimeout = other.Coordination.ReadyTimeout
	}

	// Watch.Enabled can be legitimately set to false, which mergeWith's
	// zero-value-means-unset convention can't distinguish from "unset" —
	// so a file layer can turn it on but never off. Only the env override
	// (CHUNKHOUND_WATCH_ENABLED, see applyEnvOverrides) can disable it.
	c.Watch.Enabled = other.Watch.Enabled || c.Watch.Enabled
}

// applyEnvOverrides applies the CHUNKHOUND_* environment variables, plus
// the legacy OPENAI_API_KEY/OPENAI_BASE_URL fallbacks.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHUNKHOUND_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CHUNKHOUND_MCP_MODE"); v != "" {
		c.Server.MCPMode = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CHUNKHOUND_WATCH_PATHS"); v != "" {
		c.Watch.Paths = strings.Split(v, ",")
	}
	if v := os.Getenv("CHUNKHOUND_WATCH_ENABLED"); v != "" {
		c.Watch.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.BatchSize = n
		}
	}

	// Legacy fallbacks, applied only if the CHUNKHOUND_EMBEDDING_* form
	// didn't already set them.
	if c.Embedding.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.Embedding.APIKey = v
		}
	}
	if c.Embedding.BaseURL == "" {
		if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
			c.Embedding.BaseURL = v
		}
	}

	if v := os.Getenv("CHUNKHOUND_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// FindProjectRoot walks up from startDir looking for a .git directory or
// a .chunkhound.* config file, returning startDir itself if neither is
// found before reaching the filesystem root.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		for _, name := range []string{".chunkhound.json", ".chunkhound.yaml", ".chunkhound.yml", ".chunkhound.toml"} {
			if fileExists(filepath.Join(currentDir, name)) {
				return currentDir, nil
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Validate checks the final configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	validTransports := map[string]bool{"stdio": true, "sse": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', 'sse', or 'http', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Watch.QueueSize < 0 {
		return fmt.Errorf("watch.queue_size must be non-negative, got %d", c.Watch.QueueSize)
	}
	if c.Embedding.BatchSize < 0 {
		return fmt.Errorf("embedding.batch_size must be non-negative, got %d", c.Embedding.BatchSize)
	}
	if c.Indexing.MaxFiles < 0 {
		return fmt.Errorf("indexing.max_files must be non-negative, got %d", c.Indexing.MaxFiles)
	}

	return nil
}

// WriteJSON writes the configuration to a JSON file.
func (c *Config) WriteJSON(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, returning (nil, nil)
// if it doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
