package config

import "time"

// DefaultExcludes are glob patterns excluded from indexing by default.
var DefaultExcludes = []string{
	"vendor/**",
	"node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
}

// defaultEmbeddingDims maps known embedding models to their output dimensions.
var defaultEmbeddingDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"nomic-embed-text":       768,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderOpenAI,
		EmbeddingModel: "text-embedding-3-small",
		VectorDim:      1536,
		Metric:         MetricEuclidean,
		IndexDir:       ".code-indexer",
		Include:        []string{"**"},
		Exclude:        DefaultExcludes,
		Indexing: IndexingConfig{
			Threads:         8,
			MaxSlots:        8,
			MaxFileSize:     1 << 20,
			GitBatchSize:    100,
			TmpStaleAfter:   time.Hour,
			RebuildInterval: 5 * time.Minute,
			InterruptGrace:  3 * time.Second,
			InterruptLimit:  2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			TokensPerMinute:   1_000_000,
		},
	}
}

// EmbeddingDimensions returns the vector dimension for the configured
// embedding model, preferring an explicit VectorDim override.
func (c *Config) EmbeddingDimensions() int {
	if c.VectorDim > 0 {
		return c.VectorDim
	}
	if d, ok := defaultEmbeddingDims[c.EmbeddingModel]; ok {
		return d
	}
	return 1536
}
