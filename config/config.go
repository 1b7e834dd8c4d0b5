// Package config loads the indexing and retrieval settings. Defaults are
// overlaid by an optional YAML file and then by environment variables, which
// are read once at startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendTEI    = "tei"
	BackendOpenAI = "openai"
	BackendLocal  = "local"

	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Embedding Embedding `yaml:"embedding"`
	Store     Store     `yaml:"store"`
	Tracing   Tracing   `yaml:"tracing"`
	Release   Release   `yaml:"release"`
}

type Embedding struct {
	Backend   string `yaml:"backend"`
	BatchSize int    `yaml:"batch_size"`

	TEIBaseURL        string `yaml:"tei_base_url"`
	TEIAPIKey         string `yaml:"tei_api_key"`
	TEIModel          string `yaml:"tei_model"`
	TEIUseOpenAIRoute bool   `yaml:"tei_use_openai_route"`
	TEIRetries        uint   `yaml:"tei_retries"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`

	LocalModel string `yaml:"local_model"`
}

type Store struct {
	Backend        string `yaml:"backend"`
	Path           string `yaml:"path"`
	Collection     string `yaml:"collection"`
	RedisAddr      string `yaml:"redis_addr"`
	DistanceMetric string `yaml:"distance_metric"`
	Dimensions     int    `yaml:"dimensions"`
}

type Tracing struct {
	LangfusePublicKey string `yaml:"langfuse_public_key"`
	LangfuseSecretKey string `yaml:"langfuse_secret_key"`
	LangfuseHost      string `yaml:"langfuse_host"`
	Environment       string `yaml:"environment"`
}

type Release struct {
	GitHubToken string `yaml:"github_token"`
	Repository  string `yaml:"repository"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Embedding: Embedding{
			Backend:     BackendTEI,
			BatchSize:   64,
			TEIBaseURL:  "http://localhost:8080",
			OpenAIModel: "text-embedding-3-small",
			LocalModel:  "Qwen/Qwen3-Embedding-0.6B",
		},
		Store: Store{
			Backend:        StoreSQLite,
			Path:           "./chromadb_all_f.db",
			RedisAddr:      "localhost:6379",
			DistanceMetric: "COSINE",
		},
		Tracing: Tracing{
			LangfuseHost: "cloud.langfuse.com",
			Environment:  "development",
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.LogLevel, "LOG_LEVEL")

	e := &cfg.Embedding
	setString(&e.Backend, "EMBED_BACKEND")
	setString(&e.TEIBaseURL, "TEI_BASE_URL")
	setString(&e.TEIAPIKey, "TEI_API_KEY")
	setString(&e.TEIModel, "TEI_MODEL")
	if v, ok := os.LookupEnv("TEI_USE_OPENAI_ROUTE"); ok {
		e.TEIUseOpenAIRoute = ParseBool(v)
	}
	if v, ok := os.LookupEnv("EMBED_BATCH_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			e.BatchSize = n
		}
	}
	setString(&e.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&e.OpenAIBaseURL, "OPENAI_API_BASE")
	setString(&e.OpenAIModel, "OPENAI_EMBED_MODEL")
	setString(&e.LocalModel, "QWEN3_EMBED_MODEL")

	s := &cfg.Store
	setString(&s.Backend, "VECTOR_STORE")
	setString(&s.Path, "VECTOR_STORE_PATH")
	setString(&s.Collection, "VECTOR_COLLECTION")
	setString(&s.RedisAddr, "REDIS_ADDR")

	t := &cfg.Tracing
	setString(&t.LangfusePublicKey, "LANGFUSE_PUBLIC_KEY")
	setString(&t.LangfuseSecretKey, "LANGFUSE_SECRET_KEY")
	setString(&t.LangfuseHost, "LANGFUSE_HOST")

	r := &cfg.Release
	setString(&r.GitHubToken, "GITHUB_TOKEN")
	setString(&r.Repository, "GITHUB_REPOSITORY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c Config) Validate() error {
	switch c.Embedding.Backend {
	case BackendTEI, BackendOpenAI, BackendLocal:
	default:
		return fmt.Errorf("unknown embedding backend %q (want tei, openai or local)", c.Embedding.Backend)
	}

	switch c.Store.Backend {
	case StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown vector store %q (want sqlite or redis)", c.Store.Backend)
	}

	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize)
	}

	return nil
}

// ParseBool reads a flag the way the indexing scripts always have: anything
// except "", "0", "false" and "no" is true.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}

	return true
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// Collection returns the configured collection, or the one the given backend
// has always indexed into. Each model gets its own collection so vectors of
// different models never mix.
func (c Config) Collection() string {
	if c.Store.Collection != "" {
		return c.Store.Collection
	}

	switch c.Embedding.Backend {
	case BackendOpenAI:
		return "all_vn_laws"
	case BackendLocal:
		return "all_vn_laws_qwen3"
	default:
		return "all_vn_laws_tei"
	}
}

// BackendForCollection guesses which backend built a well-known collection.
func BackendForCollection(name string) (string, bool) {
	switch name {
	case "all_vn_laws":
		return BackendOpenAI, true
	case "all_vn_laws_qwen3":
		return BackendLocal, true
	case "all_vn_laws_tei":
		return BackendTEI, true
	}

	return "", false
}

// LoadEnv loads environment variables from a .env file, searching up the directory tree.
func LoadEnv() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return godotenv.Load(envPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// Not found is fine
	return nil
}
