// Package config provides configuration loading and structs for kinji.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
	Sessions  SessionsConfig  `yaml:"sessions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the raw input and the two build artifacts.
// RecordsPath and IndexPath are produced by the same build and must be treated as one unit.
type StorageConfig struct {
	RawDataPath string `yaml:"raw_data_path"`
	RecordsPath string `yaml:"records_path"`
	IndexPath   string `yaml:"index_path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider          string   `yaml:"provider"`
	Model             string   `yaml:"model"`
	ModelPath         string   `yaml:"model_path"`
	Dimensions        int      `yaml:"dimensions"`
	MaxTokens         int      `yaml:"max_tokens"`
	CacheSize         int      `yaml:"cache_size"`
	BatchSize         int      `yaml:"batch_size"`
	Workers           int      `yaml:"workers"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	QueryPrefix       string   `yaml:"query_prefix"`
	PassagePrefix     string   `yaml:"passage_prefix"`
	TextFields        []string `yaml:"text_fields"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Type        string `yaml:"type"`
	Metric      string `yaml:"metric"`
	Compression string `yaml:"compression"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// SessionsConfig bounds the selection sessions kept by the server.
type SessionsConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxSessions   int           `yaml:"max_sessions"`
}

// WatchConfig controls the artifact watcher.
type WatchConfig struct {
	Artifacts bool `yaml:"artifacts"`
}

// ClampK returns k bounded to [1, MaxK], using DefaultK when k <= 0.
func (s *SearchConfig) ClampK(k int) int {
	if k <= 0 {
		k = s.DefaultK
	}
	if s.MaxK > 0 && k > s.MaxK {
		k = s.MaxK
	}
	if k <= 0 {
		k = 1
	}
	return k
}

// Fingerprint identifies the heavyweight resources this config loads (artifacts, embedder, index).
// Two configs with the same fingerprint share one loaded snapshot.
func (c *Config) Fingerprint() string {
	key := struct {
		Storage   StorageConfig   `yaml:"storage"`
		Embedding EmbeddingConfig `yaml:"embedding"`
		Index     IndexConfig     `yaml:"index"`
	}{c.Storage, c.Embedding, c.Index}
	data, err := yaml.Marshal(key)
	if err != nil {
		data = []byte(fmt.Sprintf("%+v", key))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.RawDataPath = expandPath(cfg.Storage.RawDataPath, configDir)
	cfg.Storage.RecordsPath = expandPath(cfg.Storage.RecordsPath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "mock", "onnx", "openai":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx, openai)", c.Embedding.Provider)
	}
	switch c.Index.Compression {
	case "none", "zstd":
	default:
		return fmt.Errorf("unknown index compression: %s (supported: none, zstd)", c.Index.Compression)
	}
	if len(c.Embedding.TextFields) == 0 {
		return fmt.Errorf("embedding.text_fields cannot be empty")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
