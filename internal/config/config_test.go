package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"groundedqa/internal/apperr"
)

var envVars = []string{
	"CHUNK_SIZE", "CHUNK_OVERLAP", "RETRIEVAL_K", "MIN_SCORE",
	"EMBEDDER", "EMBEDDING_BASE_URL", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_DIMENSION",
	"EMBED_TIMEOUT", "EMBED_BATCH_SIZE", "EMBED_CONCURRENCY",
	"GENERATOR", "LLM_BASE_URL", "LLM_MODEL", "LLM_API_KEY", "GENERATION_TEMPERATURE", "GENERATION_TIMEOUT",
	"INDEX_PATH", "CORPUS_DIR", "CORPUS_EXTENSIONS", "INDEX_BACKEND", "QDRANT_URL", "QDRANT_COLLECTION",
	"API_PORT", "LOG_LEVEL", "LOG_FORMAT",
}

// cleanEnv unsets every config variable for the test and moves into an empty
// directory so no .env file is picked up.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		if value, ok := os.LookupEnv(key); ok {
			_ = os.Unsetenv(key)
			t.Cleanup(func() {
				_ = os.Setenv(key, value)
			})
		}
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 || cfg.RetrievalK != 3 {
		t.Errorf("chunking defaults = %d/%d/k=%d, want 500/100/k=3", cfg.ChunkSize, cfg.ChunkOverlap, cfg.RetrievalK)
	}
	if cfg.MinScore != 0 {
		t.Errorf("MinScore = %v, want 0 (disabled)", cfg.MinScore)
	}
	if cfg.Embedder != EmbedderOpenAI || cfg.EmbeddingModel != "all-MiniLM-L6-v2" || cfg.EmbeddingDimension != 384 {
		t.Errorf("embedding defaults = %s/%s/%d", cfg.Embedder, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	}
	if cfg.Generator != GeneratorOpenAI || cfg.LLMModel != "llama3.1:8b" {
		t.Errorf("generator defaults = %s/%s", cfg.Generator, cfg.LLMModel)
	}
	if cfg.GenerationTemperature != 0 {
		t.Errorf("GenerationTemperature = %v, want 0", cfg.GenerationTemperature)
	}
	if cfg.EmbedTimeout != 30*time.Second || cfg.GenerationTimeout != 60*time.Second {
		t.Errorf("timeouts = %s/%s, want 30s/60s", cfg.EmbedTimeout, cfg.GenerationTimeout)
	}
	if len(cfg.CorpusExtensions) != 2 || cfg.CorpusExtensions[0] != ".txt" || cfg.CorpusExtensions[1] != ".md" {
		t.Errorf("CorpusExtensions = %v, want [.txt .md]", cfg.CorpusExtensions)
	}
	if cfg.IndexBackend != BackendFile || cfg.QdrantURL != "" || cfg.QdrantCollection != "faq" {
		t.Errorf("index defaults = %s/%q/%s", cfg.IndexBackend, cfg.QdrantURL, cfg.QdrantCollection)
	}
	if cfg.APIPort != "9000" || cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "text" {
		t.Errorf("server defaults = %s/%s/%s", cfg.APIPort, cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("CHUNK_OVERLAP", "0")
	t.Setenv("EMBEDDER", "hash")
	t.Setenv("GENERATOR", "local")
	t.Setenv("EMBED_TIMEOUT", "5s")
	t.Setenv("CORPUS_EXTENSIONS", ".txt,.rst")
	t.Setenv("INDEX_BACKEND", "qdrant")
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("MIN_SCORE", "0.25")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 800 || cfg.ChunkOverlap != 0 {
		t.Errorf("chunking = %d/%d, want 800/0", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.Embedder != EmbedderHash || cfg.Generator != GeneratorLocal {
		t.Errorf("capabilities = %s/%s, want hash/local", cfg.Embedder, cfg.Generator)
	}
	if cfg.EmbedTimeout != 5*time.Second {
		t.Errorf("EmbedTimeout = %s, want 5s", cfg.EmbedTimeout)
	}
	if len(cfg.CorpusExtensions) != 2 || cfg.CorpusExtensions[1] != ".rst" {
		t.Errorf("CorpusExtensions = %v", cfg.CorpusExtensions)
	}
	if cfg.IndexBackend != BackendQdrant || cfg.QdrantURL != "http://qdrant:6333" {
		t.Errorf("backend = %s/%s", cfg.IndexBackend, cfg.QdrantURL)
	}
	if cfg.MinScore != 0.25 {
		t.Errorf("MinScore = %v, want 0.25", cfg.MinScore)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
		t.Errorf("logging = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Logger() == nil {
		t.Error("Logger() returned nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{name: "overlap equals size", env: map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"}, wantMsg: "CHUNK_OVERLAP"},
		{name: "negative overlap", env: map[string]string{"CHUNK_OVERLAP": "-1"}, wantMsg: "CHUNK_OVERLAP"},
		{name: "zero chunk size", env: map[string]string{"CHUNK_SIZE": "0", "CHUNK_OVERLAP": "0"}, wantMsg: "CHUNK_SIZE"},
		{name: "zero k", env: map[string]string{"RETRIEVAL_K": "0"}, wantMsg: "RETRIEVAL_K"},
		{name: "non-zero temperature", env: map[string]string{"GENERATION_TEMPERATURE": "0.7"}, wantMsg: "GENERATION_TEMPERATURE"},
		{name: "unknown embedder", env: map[string]string{"EMBEDDER": "bert"}, wantMsg: "EMBEDDER"},
		{name: "unknown generator", env: map[string]string{"GENERATOR": "gpt"}, wantMsg: "GENERATOR"},
		{name: "qdrant backend without url", env: map[string]string{"INDEX_BACKEND": "qdrant"}, wantMsg: "QDRANT_URL"},
		{name: "bad embedding url", env: map[string]string{"EMBEDDING_BASE_URL": "not a url"}, wantMsg: "EMBEDDING_BASE_URL"},
		{name: "min score out of range", env: map[string]string{"MIN_SCORE": "1.5"}, wantMsg: "MIN_SCORE"},
		{name: "unparsable integer", env: map[string]string{"CHUNK_SIZE": "lots"}, wantMsg: "CHUNK_SIZE"},
		{name: "unparsable duration", env: map[string]string{"EMBED_TIMEOUT": "soon"}, wantMsg: "EMBED_TIMEOUT"},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}, wantMsg: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() = %+v, want error", cfg)
			}
			if !errors.Is(err, apperr.ErrConfig) {
				t.Errorf("Load() error = %v, want ErrConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_DotEnvFromParent(t *testing.T) {
	cleanEnv(t)

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("RETRIEVAL_K=7\nLLM_MODEL=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "api")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	t.Chdir(nested)
	// Already-set variables win over .env values.
	t.Setenv("LLM_MODEL", "from-env")
	t.Cleanup(func() {
		_ = os.Unsetenv("RETRIEVAL_K")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalK != 7 {
		t.Errorf("RetrievalK = %d, want 7 from .env", cfg.RetrievalK)
	}
	if cfg.LLMModel != "from-env" {
		t.Errorf("LLMModel = %s, want from-env", cfg.LLMModel)
	}
}
