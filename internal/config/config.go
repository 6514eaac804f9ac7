package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CODE_INDEXER_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: CODE_INDEXER_PROVIDER -> provider,
	// CODE_INDEXER_RATE_LIMIT__REQUESTS_PER_MINUTE -> rate_limit.requests_per_minute.
	if err := k.Load(env.Provider("CODE_INDEXER_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "CODE_INDEXER_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// validMetrics is the set of recognized distance metric values.
var validMetrics = map[DistanceMetric]bool{
	MetricEuclidean:    true,
	MetricInnerProduct: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of openai, ollama", c.Provider)
	}

	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}

	if c.Metric != "" && !validMetrics[c.Metric] {
		return fmt.Errorf("invalid distance_metric %q: must be euclidean or inner_product", c.Metric)
	}

	if c.IndexDir == "" {
		return fmt.Errorf("index_dir is required")
	}

	if c.VectorDim < 0 {
		return fmt.Errorf("vector_dim must be non-negative")
	}

	if c.Indexing.Threads < 0 {
		return fmt.Errorf("indexing.threads must be non-negative")
	}
	if c.Indexing.MaxSlots < 0 {
		return fmt.Errorf("indexing.max_slots must be non-negative")
	}
	if c.Indexing.GitBatchSize < 0 {
		return fmt.Errorf("indexing.git_batch_size must be non-negative")
	}

	if c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute must be at least 1")
	}
	if c.RateLimit.TokensPerMinute < 0 {
		return fmt.Errorf("rate_limit.tokens_per_minute must be non-negative")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
