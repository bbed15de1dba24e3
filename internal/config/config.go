package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP query boundary.
type ServerConfig struct {
	Address string `yaml:"address"` // listen address, e.g. ":8080"
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"` // trace|debug|info|warn|error
}

// ChunkingConfig is the chunking policy. Sizes are in tokens.
type ChunkingConfig struct {
	TargetTokens   int `yaml:"targetTokens"`   // soft chunk size
	OverlapTokens  int `yaml:"overlapTokens"`  // overlap window between neighbours
	BoundaryTokens int `yaml:"boundaryTokens"` // tolerance for backing off to a sentence boundary
}

// RetrievalConfig tunes the retriever. The over-fetch factor and the
// dedup overlap fraction are deliberately configuration, not constants.
type RetrievalConfig struct {
	TopK                 int     `yaml:"topK"`
	MinScore             float32 `yaml:"minScore"`
	OverFetchFactor      int     `yaml:"overFetchFactor"`
	DedupOverlapFraction float64 `yaml:"dedupOverlapFraction"`
	MinEvidence          int     `yaml:"minEvidence"` // below this the result is flagged degraded
}

// AssemblyConfig bounds the prompt context. The budget is in tokens.
type AssemblyConfig struct {
	BudgetTokens int `yaml:"budgetTokens"`
}

// RetryConfig bounds retries against the model backends.
type RetryConfig struct {
	Attempts       int    `yaml:"attempts"`       // total attempts, including the first
	InitialBackoff string `yaml:"initialBackoff"` // doubled after each failure, e.g. "200ms"
}

// ModelConfig selects and configures a model backend. Provider is one of
// "ollama", "openai", "genai" (embeddings only) or "static".
type ModelConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"baseURL,omitempty"`
	APIKey    string `yaml:"apiKey,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"` // required for the static provider
	Timeout   string `yaml:"timeout"`             // per-call timeout, e.g. "30s"
}

// MilvusConfig configures the Milvus-backed vector index.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// VectorStoreConfig selects the vector index implementation.
type VectorStoreConfig struct {
	Provider     string       `yaml:"provider"` // "memory" or "milvus"
	SnapshotPath string       `yaml:"snapshotPath,omitempty"`
	Milvus       MilvusConfig `yaml:"milvus,omitempty"`
}

// MongoConfig configures the Mongo-backed chunk store.
type MongoConfig struct {
	Address    string `yaml:"address"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// DocStoreConfig selects the chunk store implementation.
type DocStoreConfig struct {
	Provider string      `yaml:"provider"` // "memory" or "mongo"
	Mongo    MongoConfig `yaml:"mongo,omitempty"`
}

// RedisConfig configures the optional embedding cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"` // e.g. "24h"; empty means no expiry
}

// KafkaConfig configures the optional document ingestion stream.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupID"`
}

// Config is the root configuration of the service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Assembly    AssemblyConfig    `yaml:"assembly"`
	Retry       RetryConfig       `yaml:"retry"`
	Embedding   ModelConfig       `yaml:"embedding"`
	Generation  ModelConfig       `yaml:"generation"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	DocStore    DocStoreConfig    `yaml:"docStore"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with working values for every tunable
// the pipeline contracts leave open.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: ":8080"},
		Log:    LogConfig{Level: "info"},
		Chunking: ChunkingConfig{
			TargetTokens:   360,
			OverlapTokens:  48,
			BoundaryTokens: 64,
		},
		Retrieval: RetrievalConfig{
			TopK:                 6,
			MinScore:             0.25,
			OverFetchFactor:      3,
			DedupOverlapFraction: 0.5,
			MinEvidence:          1,
		},
		Assembly: AssemblyConfig{BudgetTokens: 1800},
		Retry:    RetryConfig{Attempts: 3, InitialBackoff: "200ms"},
		Embedding: ModelConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Dimension: 768,
			Timeout:   "30s",
		},
		Generation: ModelConfig{
			Provider: "ollama",
			Model:    "llama3.1",
			Timeout:  "60s",
		},
		VectorStore: VectorStoreConfig{Provider: "memory"},
		DocStore:    DocStoreConfig{Provider: "memory"},
		Redis:       RedisConfig{Address: "localhost:6379", TTL: "24h"},
	}
}

// Validate checks cross-field consistency and duration syntax.
func (c *Config) Validate() error {
	if c.Chunking.TargetTokens <= 0 {
		return fmt.Errorf("chunking.targetTokens must be positive, got %d", c.Chunking.TargetTokens)
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("chunking.overlapTokens must be in [0, targetTokens), got %d", c.Chunking.OverlapTokens)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.topK must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.OverFetchFactor <= 0 {
		return fmt.Errorf("retrieval.overFetchFactor must be positive, got %d", c.Retrieval.OverFetchFactor)
	}
	if f := c.Retrieval.DedupOverlapFraction; f < 0 || f > 1 {
		return fmt.Errorf("retrieval.dedupOverlapFraction must be in [0, 1], got %v", f)
	}
	if c.Assembly.BudgetTokens <= 0 {
		return fmt.Errorf("assembly.budgetTokens must be positive, got %d", c.Assembly.BudgetTokens)
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be positive, got %d", c.Retry.Attempts)
	}
	if _, err := c.Retry.Backoff(); err != nil {
		return err
	}
	for _, m := range []struct {
		name string
		cfg  ModelConfig
	}{{"embedding", c.Embedding}, {"generation", c.Generation}} {
		if _, err := m.cfg.CallTimeout(); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	return nil
}

// Backoff parses the initial retry backoff.
func (r RetryConfig) Backoff() (time.Duration, error) {
	d, err := time.ParseDuration(r.InitialBackoff)
	if err != nil {
		return 0, fmt.Errorf("retry.initialBackoff %q is not a duration: %w", r.InitialBackoff, err)
	}
	return d, nil
}

// CallTimeout parses the per-call model timeout.
func (m ModelConfig) CallTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(m.Timeout)
	if err != nil {
		return 0, fmt.Errorf("model timeout %q is not a duration: %w", m.Timeout, err)
	}
	return d, nil
}

// CacheTTL parses the Redis cache TTL; empty means no expiry.
func (r RedisConfig) CacheTTL() (time.Duration, error) {
	if r.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0, fmt.Errorf("redis.ttl %q is not a duration: %w", r.TTL, err)
	}
	return d, nil
}
