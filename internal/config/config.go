package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"groundedqa/internal/apperr"
)

// Embedder, generator and index backend choices.
const (
	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"

	GeneratorOpenAI = "openai"
	GeneratorLocal  = "local"

	BackendFile   = "file"
	BackendQdrant = "qdrant"
)

// Config holds all configuration for the application.
type Config struct {
	// Chunking and retrieval
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"500" validate:"gt=0"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"100" validate:"gte=0,ltfield=ChunkSize"`
	RetrievalK   int `envconfig:"RETRIEVAL_K" default:"3" validate:"gt=0"`
	// MinScore gates generation on the top similarity; 0 disables the gate.
	MinScore float64 `envconfig:"MIN_SCORE" default:"0" validate:"gte=-1,lte=1"`

	// Embeddings
	Embedder           string        `envconfig:"EMBEDDER" default:"openai" validate:"oneof=openai hash"`
	EmbeddingBaseURL   string        `envconfig:"EMBEDDING_BASE_URL" default:"http://localhost:11434" validate:"required_if=Embedder openai,omitempty,url"`
	EmbeddingModel     string        `envconfig:"EMBEDDING_MODEL" default:"all-MiniLM-L6-v2" validate:"required"`
	EmbeddingAPIKey    string        `envconfig:"EMBEDDING_API_KEY" default:"dummy-key"`
	EmbeddingDimension int           `envconfig:"EMBEDDING_DIMENSION" default:"384" validate:"gt=0"`
	EmbedTimeout       time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s" validate:"gt=0"`
	EmbedBatchSize     int           `envconfig:"EMBED_BATCH_SIZE" default:"32" validate:"gt=0"`
	EmbedConcurrency   int           `envconfig:"EMBED_CONCURRENCY" default:"4" validate:"gt=0"`

	// Generation
	Generator   string `envconfig:"GENERATOR" default:"openai" validate:"oneof=openai local"`
	LLMBaseURL  string `envconfig:"LLM_BASE_URL" default:"http://localhost:11434" validate:"required_if=Generator openai,omitempty,url"`
	LLMModel    string `envconfig:"LLM_MODEL" default:"llama3.1:8b" validate:"required_if=Generator openai"`
	LLMAPIKey   string `envconfig:"LLM_API_KEY" default:"dummy-key"`
	// Temperature is fixed at 0 so answers are reproducible.
	GenerationTemperature float64       `envconfig:"GENERATION_TEMPERATURE" default:"0" validate:"eq=0"`
	GenerationTimeout     time.Duration `envconfig:"GENERATION_TIMEOUT" default:"60s" validate:"gt=0"`

	// Storage
	IndexPath        string   `envconfig:"INDEX_PATH" default:"./data/faq.index" validate:"required"`
	CorpusDir        string   `envconfig:"CORPUS_DIR" default:"./data/corpus" validate:"required"`
	CorpusExtensions []string `envconfig:"CORPUS_EXTENSIONS" default:".txt,.md" validate:"min=1,dive,required"`
	IndexBackend     string   `envconfig:"INDEX_BACKEND" default:"file" validate:"oneof=file qdrant"`
	// QdrantURL enables mirroring at ingestion when set; required for the qdrant backend.
	QdrantURL        string `envconfig:"QDRANT_URL" validate:"required_if=IndexBackend qdrant,omitempty,url"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"faq" validate:"required"`

	// Server
	APIPort   string     `envconfig:"API_PORT" default:"9000" validate:"required,numeric"`
	LogLevel  slog.Level `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat string     `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// Load reads configuration from environment variables and returns a Config struct.
// If a .env file exists in the current directory or up to five parent
// directories, it is loaded first. Environment variables already set take
// precedence over .env file values. Invalid values yield apperr.ErrConfig.
func Load() (*Config, error) {
	loadDotEnv()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads the nearest .env file, walking up from the working directory.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 6; i++ { // Working directory plus five parents
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return // Reached filesystem root
		}
		dir = parent
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report environment variable names instead of Go field names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("envconfig"); name != "" {
			return name
		}
		return field.Name
	})
	return v
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", apperr.ErrConfig, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", apperr.ErrConfig, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "ltfield":
		return fmt.Sprintf("%s must be smaller than CHUNK_SIZE", fe.Field())
	case "eq":
		return fmt.Sprintf("%s must be %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("%s failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value())
	}
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
