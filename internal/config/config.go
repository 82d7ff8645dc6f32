// Package config provides configuration loading for complyd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete complyd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Generator  GeneratorConfig  `koanf:"generator"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Index      IndexConfig      `koanf:"index"`
	Memory     MemoryConfig     `koanf:"memory"`
	Profile    ProfileConfig    `koanf:"profile"`
	Workflow   WorkflowConfig   `koanf:"workflow"`
	Retry      RetryConfig      `koanf:"retry"`
	Validation ValidationConfig `koanf:"validation"`
	Events     EventsConfig     `koanf:"events"`
	Scrub      ScrubConfig      `koanf:"scrub"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig is the file-level view of the logger settings.
// cmd/ translates it into a logging.Config.
type LoggingConfig struct {
	Level  string         `koanf:"level"`
	Format string         `koanf:"format"`
	File   LogFileConfig  `koanf:"file"`
	OTEL   bool           `koanf:"otel"`
	Fields map[string]any `koanf:"fields"`
}

// LogFileConfig configures rotating file output.
type LogFileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	SampleRate     float64  `koanf:"sample_rate"`
	ServiceVersion string   `koanf:"service_version"`
	ExportInterval Duration `koanf:"export_interval"`
}

// GeneratorConfig configures the text generation backend.
type GeneratorConfig struct {
	Provider  string   `koanf:"provider"` // ollama | openai
	BaseURL   string   `koanf:"base_url"`
	Model     string   `koanf:"model"`
	APIKey    Secret   `koanf:"api_key"`
	RateLimit float64  `koanf:"rate_limit"` // requests per second
	Burst     int      `koanf:"burst"`
	Timeout   Duration `koanf:"timeout"`
	CacheTTL  Duration `koanf:"cache_ttl"` // 0 disables the response cache
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed | tei | openai
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// IndexConfig configures the compliance document index.
type IndexConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
	SourceDir  string `koanf:"source_dir"`
	ChunkSize  int    `koanf:"chunk_size"`
	Overlap    int    `koanf:"chunk_overlap"`
}

// MemoryConfig configures the memory subsystem.
type MemoryConfig struct {
	Backend       string       `koanf:"backend"` // local | remote
	LocalPath     string       `koanf:"local_path"`
	Collection    string       `koanf:"collection"`
	ShortTermSize int          `koanf:"short_term_size"`
	RecallK       int          `koanf:"recall_k"`
	SessionTTL    Duration     `koanf:"session_ttl"`
	Qdrant        QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig configures the remote memory backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// ProfileConfig configures the persisted user profile.
type ProfileConfig struct {
	Path string `koanf:"path"`
}

// WorkflowConfig configures the orchestration state machine.
type WorkflowConfig struct {
	MaxLoops    int             `koanf:"max_loops"`
	AutoApprove bool            `koanf:"auto_approve"`
	Retrieval   RetrievalConfig `koanf:"retrieval"`
}

// RetrievalConfig configures document retrieval.
type RetrievalConfig struct {
	K      int     `koanf:"k"`
	FetchK int     `koanf:"fetch_k"`
	Lambda float64 `koanf:"lambda"`
	Floor  float64 `koanf:"floor"`
}

// RetryConfig configures the retry policy for backend calls.
type RetryConfig struct {
	MaxAttempts    int      `koanf:"max_attempts"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
}

// ValidationConfig configures answer validation.
type ValidationConfig struct {
	JSONDetector JSONDetectorConfig `koanf:"json_detector"`
}

// JSONDetectorConfig configures detection of raw JSON answers.
type JSONDetectorConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Prefixes []string `koanf:"prefixes"`
	Markers  []string `koanf:"markers"`
}

// EventsConfig configures run event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ScrubConfig configures secret scrubbing before long-term storage.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{
		Workflow:   WorkflowConfig{AutoApprove: true},
		Validation: ValidationConfig{JSONDetector: JSONDetectorConfig{Enabled: true}},
		Scrub:      ScrubConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be 1-65535, got %d", c.Server.Port))
	}
	switch c.Generator.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("generator.provider must be ollama or openai, got %q", c.Generator.Provider))
	}
	if c.Generator.Provider == "openai" && !c.Generator.APIKey.IsSet() && c.Generator.BaseURL == "" {
		errs = append(errs, errors.New("generator.api_key is required for openai without a base_url"))
	}
	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be fastembed, tei or openai, got %q", c.Embeddings.Provider))
	}
	switch c.Memory.Backend {
	case "local":
	case "remote":
		if c.Memory.Qdrant.Host == "" {
			errs = append(errs, errors.New("memory.qdrant.host is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend must be local or remote, got %q", c.Memory.Backend))
	}
	if c.Memory.ShortTermSize < 1 {
		errs = append(errs, errors.New("memory.short_term_size must be positive"))
	}
	if c.Workflow.MaxLoops < 0 {
		errs = append(errs, errors.New("workflow.max_loops cannot be negative"))
	}
	r := c.Workflow.Retrieval
	if r.K < 1 || r.FetchK < r.K {
		errs = append(errs, fmt.Errorf("workflow.retrieval requires 1 <= k <= fetch_k, got k=%d fetch_k=%d", r.K, r.FetchK))
	}
	if r.Lambda < 0 || r.Lambda > 1 {
		errs = append(errs, fmt.Errorf("workflow.retrieval.lambda must be in [0,1], got %f", r.Lambda))
	}
	if r.Floor < 0 || r.Floor > 1 {
		errs = append(errs, fmt.Errorf("workflow.retrieval.floor must be in [0,1], got %f", r.Floor))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be in [0,1], got %f", c.Telemetry.SampleRate))
	}

	return errors.Join(errs...)
}

// applyDefaults fills zero values. Booleans are left alone: their defaults
// are seeded into koanf before the file is read.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.File.Path != "" {
		if cfg.Logging.File.MaxSizeMB == 0 {
			cfg.Logging.File.MaxSizeMB = 100
		}
		if cfg.Logging.File.MaxBackups == 0 {
			cfg.Logging.File.MaxBackups = 3
		}
		if cfg.Logging.File.MaxAgeDays == 0 {
			cfg.Logging.File.MaxAgeDays = 28
		}
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "0.1.0"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}

	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "ollama"
	}
	if cfg.Generator.BaseURL == "" && cfg.Generator.Provider == "ollama" {
		cfg.Generator.BaseURL = "http://localhost:11434"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "llama3.2:latest"
	}
	if cfg.Generator.RateLimit == 0 {
		cfg.Generator.RateLimit = 2
	}
	if cfg.Generator.Burst == 0 {
		cfg.Generator.Burst = 1
	}
	if cfg.Generator.Timeout == 0 {
		cfg.Generator.Timeout = Duration(120 * time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" && cfg.Embeddings.Provider == "tei" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.Index.Path == "" {
		cfg.Index.Path = "data/vector_store"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "compliance_docs"
	}
	if cfg.Index.SourceDir == "" {
		cfg.Index.SourceDir = "data/sources"
	}
	if cfg.Index.ChunkSize == 0 {
		cfg.Index.ChunkSize = 1000
	}
	if cfg.Index.Overlap == 0 {
		cfg.Index.Overlap = 200
	}

	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = "local"
	}
	if cfg.Memory.LocalPath == "" {
		cfg.Memory.LocalPath = "data/memory_store"
	}
	if cfg.Memory.Collection == "" {
		cfg.Memory.Collection = "conversations"
	}
	if cfg.Memory.ShortTermSize == 0 {
		cfg.Memory.ShortTermSize = 10
	}
	if cfg.Memory.RecallK == 0 {
		cfg.Memory.RecallK = 5
	}
	if cfg.Memory.SessionTTL == 0 {
		cfg.Memory.SessionTTL = Duration(24 * time.Hour)
	}
	if cfg.Memory.Qdrant.Port == 0 {
		cfg.Memory.Qdrant.Port = 6334
	}
	if cfg.Memory.Qdrant.Collection == "" {
		cfg.Memory.Qdrant.Collection = "complyd_memories"
	}
	if cfg.Memory.Qdrant.VectorSize == 0 {
		cfg.Memory.Qdrant.VectorSize = 384
	}

	if cfg.Profile.Path == "" {
		cfg.Profile.Path = "data/memory_store/user_profile.json"
	}

	if cfg.Workflow.MaxLoops == 0 {
		cfg.Workflow.MaxLoops = 2
	}
	if cfg.Workflow.Retrieval.K == 0 {
		cfg.Workflow.Retrieval.K = 12
	}
	if cfg.Workflow.Retrieval.FetchK == 0 {
		cfg.Workflow.Retrieval.FetchK = 40
	}
	if cfg.Workflow.Retrieval.Lambda == 0 {
		cfg.Workflow.Retrieval.Lambda = 0.6
	}
	if cfg.Workflow.Retrieval.Floor == 0 {
		cfg.Workflow.Retrieval.Floor = 0.3
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = Duration(time.Second)
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = Duration(10 * time.Second)
	}

	if len(cfg.Validation.JSONDetector.Prefixes) == 0 {
		cfg.Validation.JSONDetector.Prefixes = []string{"{"}
	}
	if len(cfg.Validation.JSONDetector.Markers) == 0 {
		cfg.Validation.JSONDetector.Markers = []string{`"title":`}
	}

	if cfg.Events.NATSURL == "" {
		cfg.Events.NATSURL = "nats://localhost:4222"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "complyd"
	}
}
