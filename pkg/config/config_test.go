package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/rag-vault/pkg/registry"
)

var envKeys = []string{
	"QDRANT_URL", "QDRANT_API_KEY", "OLLAMA_HOST", "RAG_TEXT_MODEL", "RAG_CAPTION_MODEL",
	"RAG_IMAGE_URL", "RAG_IMAGE_MODEL", "RAG_DEVICE", "LIACARA_ROOT", "RAG_TEXT_DIM", "RAG_IMAGE_DIM",
}

// clearEnv unsets every variable Load reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "localhost:6334", cfg.Qdrant.URL)
	assert.Equal(t, 384, cfg.Text.Dim)
	assert.Equal(t, 512, cfg.Image.Dim)
	assert.Equal(t, BatchConfig{Text: 256, Image: 64, Upsert: 256}, cfg.Batch)
	assert.Equal(t, "rag_text_chunks", cfg.Collections.Text)
	assert.Equal(t, "media_assets", cfg.Collections.Media)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "vault.toml")
	writeFile(t, tomlPath, `
device = "cpu"

[qdrant]
url = "qdrant.internal:6334"
timeout_seconds = 5

[text]
model = "nomic-embed-text"
dim = 768

[batch]
text = 32
`)
	envPath := filepath.Join(dir, ".env")
	writeFile(t, envPath, "QDRANT_URL=from-dotenv:6334\nRAG_IMAGE_MODEL=ViT-L-14\nRAG_IMAGE_DIM=768\n")
	t.Setenv("RAG_IMAGE_MODEL", "ViT-H-14")

	cfg, err := Load(tomlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, "from-dotenv:6334", cfg.Qdrant.URL, "dotenv beats the file")
	assert.Equal(t, "ViT-H-14", cfg.Image.Model, "process env beats dotenv")
	assert.Equal(t, 768, cfg.Image.Dim)
	assert.Equal(t, "nomic-embed-text", cfg.Text.Model)
	assert.Equal(t, 768, cfg.Text.Dim)
	assert.Equal(t, 32, cfg.Batch.Text)
	assert.Equal(t, 64, cfg.Batch.Image, "untouched keys keep defaults")
	assert.Equal(t, 5, cfg.Qdrant.TimeoutSeconds)
	assert.Equal(t, "5s", cfg.Qdrant.Timeout().String())
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"), "")
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "device = [")
	_, err = Load(bad, "")
	assert.ErrorContains(t, err, "parse config")

	t.Setenv("RAG_DEVICE", "tpu")
	_, err = Load("", filepath.Join(dir, "no.env"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("RAG_DEVICE", "cuda")
	t.Setenv("RAG_TEXT_DIM", "many")
	_, err = Load("", "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "LIACARA")
	require.NoError(t, os.MkdirAll(root, 0o755))

	cfg := Default()
	cfg.Root = root
	got, err := cfg.ResolveRoot()
	require.NoError(t, err)
	assert.Equal(t, root, got)

	cfg.Root = filepath.Join(base, "nope")
	_, err = cfg.ResolveRoot()
	assert.ErrorIs(t, err, registry.ErrRootNotFound)
}
