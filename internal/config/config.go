// Package config loads ragindex configuration.
//
// Values are layered in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/ragindex/config.yaml or ~/.config/ragindex/config.yaml)
//  3. Project config (.ragindex.yaml, .ragindex.yml or .ragindex.toml in the project root)
//  4. Environment variables (RAGINDEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DataDirName is the per-project directory holding indexes and state.
const DataDirName = ".ragindex"

// Config is the complete ragindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version" toml:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths" toml:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking" toml:"chunking"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing" toml:"indexing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings" toml:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store" toml:"store"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher" toml:"watcher"`
	Events     EventsConfig     `yaml:"events" json:"events" toml:"events"`
	Server     ServerConfig     `yaml:"server" json:"server" toml:"server"`
}

// PathsConfig selects the knowledge sources of a project.
type PathsConfig struct {
	// Folders are directory roots indexed recursively. Relative paths are
	// resolved against the project root; empty means the project root itself.
	Folders []string `yaml:"folders" json:"folders" toml:"folders"`
	// Files are individually selected files, filtered by Extensions.
	Files []string `yaml:"files" json:"files" toml:"files"`
	// URLs are fetched over HTTP and indexed as plain text.
	URLs []string `yaml:"urls" json:"urls" toml:"urls"`
	// Exclude holds user patterns for the custom pattern filter.
	Exclude []string `yaml:"exclude" json:"exclude" toml:"exclude"`
	// Extensions is the allow-list used for selected files.
	Extensions []string `yaml:"extensions" json:"extensions" toml:"extensions"`
}

// ChunkingConfig bounds chunk sizes derived from the model token limit.
type ChunkingConfig struct {
	MinChars      int     `yaml:"min_chars" json:"min_chars" toml:"min_chars"`
	MaxChars      int     `yaml:"max_chars" json:"max_chars" toml:"max_chars"`
	MaxOverlap    int     `yaml:"max_overlap" json:"max_overlap" toml:"max_overlap"`
	SafetyFactor  float64 `yaml:"safety_factor" json:"safety_factor" toml:"safety_factor"`
	CharsPerToken float64 `yaml:"chars_per_token" json:"chars_per_token" toml:"chars_per_token"`
}

// IndexingConfig tunes the indexing pipeline.
type IndexingConfig struct {
	Workers       int   `yaml:"workers" json:"workers" toml:"workers"`
	BatchSize     int   `yaml:"batch_size" json:"batch_size" toml:"batch_size"`
	ProgressEvery int   `yaml:"progress_every" json:"progress_every" toml:"progress_every"`
	MaxFileSize   int64 `yaml:"max_file_size" json:"max_file_size" toml:"max_file_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (offline hash embeddings) or "ollama".
	Provider   string `yaml:"provider" json:"provider" toml:"provider"`
	Model      string `yaml:"model" json:"model" toml:"model"`
	Host       string `yaml:"host" json:"host" toml:"host"`
	Dimensions int    `yaml:"dimensions" json:"dimensions" toml:"dimensions"`
	TokenLimit int    `yaml:"token_limit" json:"token_limit" toml:"token_limit"`
	// RateLimit caps embedding requests per second. 0 disables throttling.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" toml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst" toml:"rate_burst"`
	CacheSize int     `yaml:"cache_size" json:"cache_size" toml:"cache_size"`
	Timeout   string  `yaml:"timeout" json:"timeout" toml:"timeout"`
}

// StoreConfig selects storage backends.
type StoreConfig struct {
	// VectorBackend is "hnsw" (local) or "qdrant".
	VectorBackend string `yaml:"vector_backend" json:"vector_backend" toml:"vector_backend"`
	// KeywordBackend is "sqlite" (FTS5) or "bleve".
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend" toml:"keyword_backend"`
	// StateDriver is the database/sql driver for the state store:
	// "sqlite" (pure Go) or "sqlite3" (cgo).
	StateDriver      string `yaml:"state_driver" json:"state_driver" toml:"state_driver"`
	QdrantAddr       string `yaml:"qdrant_addr" json:"qdrant_addr" toml:"qdrant_addr"`
	QdrantCollection string `yaml:"qdrant_collection" json:"qdrant_collection" toml:"qdrant_collection"`
	// DataDir overrides <root>/.ragindex.
	DataDir string `yaml:"data_dir" json:"data_dir" toml:"data_dir"`
}

// WatcherConfig configures filesystem watching.
type WatcherConfig struct {
	Debounce     string `yaml:"debounce" json:"debounce" toml:"debounce"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`
}

// EventsConfig configures external progress publishing.
type EventsConfig struct {
	// NATSURL enables the NATS progress publisher when set.
	NATSURL string `yaml:"nats_url" json:"nats_url" toml:"nats_url"`
	Subject string `yaml:"subject" json:"subject" toml:"subject"`
}

// ServerConfig configures logging and the MCP server.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level" toml:"log_level"`
	// Transport is "stdio" or "http".
	Transport string `yaml:"transport" json:"transport" toml:"transport"`
	// Addr is the listen address of the http transport.
	Addr string `yaml:"addr" json:"addr" toml:"addr"`
}

// defaultExtensions is the selected-files allow-list.
var defaultExtensions = []string{
	".txt", ".md", ".markdown", ".rst", ".adoc",
	".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".kt", ".kts",
	".c", ".h", ".cc", ".cpp", ".hpp", ".cs", ".rs", ".rb", ".php", ".swift",
	".scala", ".sh", ".sql", ".json", ".yaml", ".yml", ".toml", ".xml",
	".html", ".css", ".csv",
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Extensions: append([]string(nil), defaultExtensions...),
		},
		Chunking: ChunkingConfig{
			MinChars:      200,
			MaxChars:      8000,
			MaxOverlap:    400,
			SafetyFactor:  0.3,
			CharsPerToken: 2,
		},
		Indexing: IndexingConfig{
			Workers:       runtime.NumCPU(),
			BatchSize:     100,
			ProgressEvery: 10,
			MaxFileSize:   10 * 1024 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Host:       "http://localhost:11434",
			Dimensions: 256,
			TokenLimit: 2048,
			RateLimit:  0,
			RateBurst:  1,
			CacheSize:  1000,
			Timeout:    "60s",
		},
		Store: StoreConfig{
			VectorBackend:    "hnsw",
			KeywordBackend:   "sqlite",
			StateDriver:      "sqlite",
			QdrantAddr:       "localhost:6334",
			QdrantCollection: "ragindex",
		},
		Watcher: WatcherConfig{
			Debounce:     "300ms",
			PollInterval: "5s",
		},
		Events: EventsConfig{
			Subject: "ragindex.progress",
		},
		Server: ServerConfig{
			LogLevel:  "info",
			Transport: "stdio",
			Addr:      "127.0.0.1:8765",
		},
	}
}

// GetUserConfigPath returns the user config file path, honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragindex", "config.yaml")
}

// Load builds the configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadFile(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := ProjectConfigPath(dir); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProjectConfigPath returns the first project config file present in dir, or "".
// .yaml wins over .yml, which wins over .toml.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".ragindex.yaml", ".ragindex.yml", ".ragindex.toml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// loadFile parses a YAML or TOML file (by extension) and merges it into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &parsed)
	} else {
		err = yaml.Unmarshal(data, &parsed)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c. Exclude patterns
// accumulate across layers; everything else replaces.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Folders) > 0 {
		c.Paths.Folders = other.Paths.Folders
	}
	if len(other.Paths.Files) > 0 {
		c.Paths.Files = other.Paths.Files
	}
	if len(other.Paths.URLs) > 0 {
		c.Paths.URLs = other.Paths.URLs
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if len(other.Paths.Extensions) > 0 {
		c.Paths.Extensions = other.Paths.Extensions
	}

	mergeInt(&c.Chunking.MinChars, other.Chunking.MinChars)
	mergeInt(&c.Chunking.MaxChars, other.Chunking.MaxChars)
	mergeInt(&c.Chunking.MaxOverlap, other.Chunking.MaxOverlap)
	mergeFloat(&c.Chunking.SafetyFactor, other.Chunking.SafetyFactor)
	mergeFloat(&c.Chunking.CharsPerToken, other.Chunking.CharsPerToken)

	mergeInt(&c.Indexing.Workers, other.Indexing.Workers)
	mergeInt(&c.Indexing.BatchSize, other.Indexing.BatchSize)
	mergeInt(&c.Indexing.ProgressEvery, other.Indexing.ProgressEvery)
	if other.Indexing.MaxFileSize != 0 {
		c.Indexing.MaxFileSize = other.Indexing.MaxFileSize
	}

	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeString(&c.Embeddings.Host, other.Embeddings.Host)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeInt(&c.Embeddings.TokenLimit, other.Embeddings.TokenLimit)
	mergeFloat(&c.Embeddings.RateLimit, other.Embeddings.RateLimit)
	mergeInt(&c.Embeddings.RateBurst, other.Embeddings.RateBurst)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	mergeString(&c.Embeddings.Timeout, other.Embeddings.Timeout)

	mergeString(&c.Store.VectorBackend, other.Store.VectorBackend)
	mergeString(&c.Store.KeywordBackend, other.Store.KeywordBackend)
	mergeString(&c.Store.StateDriver, other.Store.StateDriver)
	mergeString(&c.Store.QdrantAddr, other.Store.QdrantAddr)
	mergeString(&c.Store.QdrantCollection, other.Store.QdrantCollection)
	mergeString(&c.Store.DataDir, other.Store.DataDir)

	mergeString(&c.Watcher.Debounce, other.Watcher.Debounce)
	mergeString(&c.Watcher.PollInterval, other.Watcher.PollInterval)

	mergeString(&c.Events.NATSURL, other.Events.NATSURL)
	mergeString(&c.Events.Subject, other.Events.Subject)

	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
	mergeString(&c.Server.Transport, other.Server.Transport)
	mergeString(&c.Server.Addr, other.Server.Addr)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies RAGINDEX_* variables. Unparseable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGINDEX_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RAGINDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("RAGINDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("RAGINDEX_TOKEN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.TokenLimit = n
		}
	}
	if v := os.Getenv("RAGINDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Workers = n
		}
	}
	if v := os.Getenv("RAGINDEX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.BatchSize = n
		}
	}
	if v := os.Getenv("RAGINDEX_VECTOR_BACKEND"); v != "" {
		c.Store.VectorBackend = v
	}
	if v := os.Getenv("RAGINDEX_KEYWORD_BACKEND"); v != "" {
		c.Store.KeywordBackend = v
	}
	if v := os.Getenv("RAGINDEX_NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}
	if v := os.Getenv("RAGINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("RAGINDEX_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// DataDir returns the directory holding indexes and state for root.
func (c *Config) DataDir(root string) string {
	if c.Store.DataDir != "" {
		return c.Store.DataDir
	}
	return filepath.Join(root, DataDirName)
}

// DebounceDuration parses Watcher.Debounce, falling back to 300ms.
func (c *Config) DebounceDuration() time.Duration {
	return parseDurationOr(c.Watcher.Debounce, 300*time.Millisecond)
}

// PollIntervalDuration parses Watcher.PollInterval, falling back to 5s.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.Watcher.PollInterval, 5*time.Second)
}

// EmbedTimeout parses Embeddings.Timeout, falling back to 60s.
func (c *Config) EmbedTimeout() time.Duration {
	return parseDurationOr(c.Embeddings.Timeout, 60*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// WriteYAML writes c to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file. It returns the absolute startDir when neither exists.
func FindProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := abs
	for {
		if dirExists(filepath.Join(dir, ".git")) || ProjectConfigPath(dir) != "" {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
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
