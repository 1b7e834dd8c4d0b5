package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "EMBED_BACKEND", "TEI_BASE_URL", "TEI_API_KEY", "TEI_MODEL",
		"TEI_USE_OPENAI_ROUTE", "EMBED_BATCH_SIZE", "OPENAI_API_KEY", "OPENAI_API_BASE",
		"OPENAI_EMBED_MODEL", "QWEN3_EMBED_MODEL", "VECTOR_STORE", "VECTOR_STORE_PATH",
		"VECTOR_COLLECTION", "REDIS_ADDR", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY",
		"LANGFUSE_HOST", "GITHUB_TOKEN", "GITHUB_REPOSITORY",
	} {
		t.Setenv(key, "")
		// godotenv only fills variables that are absent, not empty ones.
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendTEI, cfg.Embedding.Backend)
	assert.Equal(t, "http://localhost:8080", cfg.Embedding.TEIBaseURL)
	assert.False(t, cfg.Embedding.TEIUseOpenAIRoute)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "all_vn_laws_tei", cfg.Collection())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "troly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
embedding:
  backend: openai
  openai_model: text-embedding-3-large
store:
  path: /tmp/laws.db
  collection: from_file
`), 0o600))

	t.Setenv("VECTOR_COLLECTION", "from_env")
	t.Setenv("TEI_USE_OPENAI_ROUTE", "yes")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendOpenAI, cfg.Embedding.Backend)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.OpenAIModel)
	assert.Equal(t, "/tmp/laws.db", cfg.Store.Path)
	assert.Equal(t, "from_env", cfg.Collection())
	assert.True(t, cfg.Embedding.TEIUseOpenAIRoute)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBED_BACKEND", "cohere")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cohere")
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"FALSE", false},
		{"no", false},
		{" No ", false},
		{"1", true},
		{"true", true},
		{"yes", true},
		{"on", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBool(tt.in), "ParseBool(%q)", tt.in)
	}
}

func TestCollectionPerBackend(t *testing.T) {
	cfg := Default()

	cfg.Embedding.Backend = BackendOpenAI
	assert.Equal(t, "all_vn_laws", cfg.Collection())

	cfg.Embedding.Backend = BackendLocal
	assert.Equal(t, "all_vn_laws_qwen3", cfg.Collection())

	backend, ok := BackendForCollection("all_vn_laws_qwen3")
	assert.True(t, ok)
	assert.Equal(t, BackendLocal, backend)

	_, ok = BackendForCollection("tei_demo")
	assert.False(t, ok)
}

func TestLoadEnvFindsParentDotEnv(t *testing.T) {
	clearEnv(t)

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("TEI_MODEL=bge-m3\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, LoadEnv())
	assert.Equal(t, "bge-m3", os.Getenv("TEI_MODEL"))
}

func TestLoadEnvKeepsExistingValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEI_MODEL", "from-shell")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TEI_MODEL=bge-m3\nTEI_API_KEY=secret\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, LoadEnv())
	assert.Equal(t, "from-shell", os.Getenv("TEI_MODEL"))
	assert.Equal(t, "secret", os.Getenv("TEI_API_KEY"))
}
