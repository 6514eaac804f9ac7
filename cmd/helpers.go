package cmd

import (
	"fmt"
	"os"

	"github.com/jsbattig/code-indexer-sub031/internal/config"
	"github.com/jsbattig/code-indexer-sub031/internal/embedder"
	"github.com/jsbattig/code-indexer-sub031/internal/gitresolver"
	"github.com/jsbattig/code-indexer-sub031/internal/pipeline"
)

// createEmbedderFromConfig creates an embedder.Embedder based on config.
// Shared by the index, resume, search, and watch commands.
func createEmbedderFromConfig(cfg *config.Config) (embedder.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embedder.NewOpenAIEmbedder(apiKey, embedder.OpenAIModel(cfg.EmbeddingModel)), nil
	case config.ProviderOllama:
		return embedder.NewOllamaEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimensions(), cfg.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// newPipeline wires a pipeline for the current working directory.
func newPipeline(temporal bool) (*pipeline.Pipeline, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	emb, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	root, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("getting working directory: %w", err)
	}

	kind := gitresolver.CollectionKindNormal
	if temporal {
		kind = gitresolver.CollectionKindTemporal
	}
	p, err := pipeline.New(cfg, root, emb, pipeline.Options{Kind: kind})
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `code-indexer init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}
