package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider %q, got %q", ProviderOpenAI, cfg.Provider)
	}
	if cfg.Metric != MetricEuclidean {
		t.Errorf("expected default metric %q, got %q", MetricEuclidean, cfg.Metric)
	}
	if cfg.IndexDir != ".code-indexer" {
		t.Errorf("expected default index_dir %q, got %q", ".code-indexer", cfg.IndexDir)
	}
	if cfg.Indexing.GitBatchSize != 100 {
		t.Errorf("expected default git_batch_size 100, got %d", cfg.Indexing.GitBatchSize)
	}
	if cfg.Indexing.TmpStaleAfter != time.Hour {
		t.Errorf("expected default tmp_stale_after 1h, got %v", cfg.Indexing.TmpStaleAfter)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.code-indexer.yml")

	original := DefaultConfig()
	original.Provider = ProviderOllama
	original.EmbeddingModel = "nomic-embed-text"
	original.VectorDim = 768
	original.Metric = MetricInnerProduct
	original.Include = []string{"**/*.go", "**/*.py"}
	original.Indexing.Threads = 3
	original.RateLimit.RequestsPerMinute = 60

	// Save.
	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load back.
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify round-trip.
	if loaded.Provider != original.Provider {
		t.Errorf("provider: got %q, want %q", loaded.Provider, original.Provider)
	}
	if loaded.EmbeddingModel != original.EmbeddingModel {
		t.Errorf("embedding_model: got %q, want %q", loaded.EmbeddingModel, original.EmbeddingModel)
	}
	if loaded.VectorDim != original.VectorDim {
		t.Errorf("vector_dim: got %d, want %d", loaded.VectorDim, original.VectorDim)
	}
	if loaded.Metric != original.Metric {
		t.Errorf("distance_metric: got %q, want %q", loaded.Metric, original.Metric)
	}
	if loaded.Indexing.Threads != original.Indexing.Threads {
		t.Errorf("indexing.threads: got %d, want %d", loaded.Indexing.Threads, original.Indexing.Threads)
	}
	if loaded.RateLimit.RequestsPerMinute != original.RateLimit.RequestsPerMinute {
		t.Errorf("rate_limit.requests_per_minute: got %d, want %d",
			loaded.RateLimit.RequestsPerMinute, original.RateLimit.RequestsPerMinute)
	}
	if len(loaded.Include) != len(original.Include) {
		t.Errorf("include length: got %d, want %d", len(loaded.Include), len(original.Include))
	}
	for i, v := range loaded.Include {
		if v != original.Include[i] {
			t.Errorf("include[%d]: got %q, want %q", i, v, original.Include[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Override provider via env var.
	os.Setenv("CODE_INDEXER_PROVIDER", "ollama")
	defer os.Unsetenv("CODE_INDEXER_PROVIDER")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider != ProviderOllama {
		t.Errorf("env override failed: got %q, want %q", loaded.Provider, ProviderOllama)
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateInvalidProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "invalid"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid provider")
	}
}

func TestValidateEmptyProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty provider")
	}
}

func TestValidateEmptyModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbeddingModel = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty embedding_model")
	}
}

func TestValidateInvalidMetric(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metric = "cosine"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unsupported metric")
	}
}

func TestValidateEmptyIndexDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IndexDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty index_dir")
	}
}

func TestValidateZeroRequestsPerMinute(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.RequestsPerMinute = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero requests_per_minute")
	}
}

func TestEmbeddingDimensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VectorDim = 0
	cfg.EmbeddingModel = "text-embedding-3-large"
	if got := cfg.EmbeddingDimensions(); got != 3072 {
		t.Errorf("expected 3072 dimensions, got %d", got)
	}

	cfg.VectorDim = 42
	if got := cfg.EmbeddingDimensions(); got != 42 {
		t.Errorf("explicit vector_dim should win, got %d", got)
	}
}
