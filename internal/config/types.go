package config

import "time"

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// DistanceMetric selects the similarity function used by the vector index.
type DistanceMetric string

const (
	MetricEuclidean    DistanceMetric = "euclidean"
	MetricInnerProduct DistanceMetric = "inner_product"
)

// Config is the top-level code-indexer configuration, corresponding to
// .code-indexer.yml.
type Config struct {
	Provider       ProviderType    `yaml:"provider" koanf:"provider"`
	EmbeddingModel string          `yaml:"embedding_model" koanf:"embedding_model"`
	VectorDim      int             `yaml:"vector_dim" koanf:"vector_dim"`
	Metric         DistanceMetric  `yaml:"distance_metric" koanf:"distance_metric"`
	OllamaBaseURL  string          `yaml:"ollama_base_url" koanf:"ollama_base_url"`
	IndexDir       string          `yaml:"index_dir" koanf:"index_dir"`
	Include        []string        `yaml:"include" koanf:"include"`
	Exclude        []string        `yaml:"exclude" koanf:"exclude"`
	Indexing       IndexingConfig  `yaml:"indexing" koanf:"indexing"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" koanf:"rate_limit"`
}

// IndexingConfig holds tuning knobs for the indexing pipeline.
type IndexingConfig struct {
	Threads         int           `yaml:"threads" koanf:"threads"`
	MaxSlots        int           `yaml:"max_slots" koanf:"max_slots"`
	MaxFileSize     int64         `yaml:"max_file_size" koanf:"max_file_size"`
	GitBatchSize    int           `yaml:"git_batch_size" koanf:"git_batch_size"`
	TmpStaleAfter   time.Duration `yaml:"tmp_stale_after" koanf:"tmp_stale_after"`
	RebuildInterval time.Duration `yaml:"rebuild_interval" koanf:"rebuild_interval"`
	InterruptGrace  time.Duration `yaml:"interrupt_grace" koanf:"interrupt_grace"`
	InterruptLimit  time.Duration `yaml:"interrupt_limit" koanf:"interrupt_limit"`
}

// RateLimitConfig bounds calls to the embedding provider. TokensPerMinute
// of zero disables the token dimension and gates on requests only.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute" koanf:"tokens_per_minute"`
}
