package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.RawDataPath == "" {
		cfg.Storage.RawDataPath = "/usr/local/var/kinji/data/raw_records.json"
	}
	if cfg.Storage.RecordsPath == "" {
		cfg.Storage.RecordsPath = "/usr/local/var/kinji/data/records.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/kinji/data/index.knjv"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kinji/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if len(cfg.Embedding.TextFields) == 0 {
		cfg.Embedding.TextFields = []string{"title", "abstract"}
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "l2"
	}
	if cfg.Index.Compression == "" {
		cfg.Index.Compression = "none"
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 10
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 100
	}
	if cfg.Sessions.IdleTTL == 0 {
		cfg.Sessions.IdleTTL = 30 * time.Minute
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = time.Minute
	}
	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = 10000
	}
}
