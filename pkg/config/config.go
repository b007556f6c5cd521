// Package config resolves settings for the vault tools from defaults, an optional
// TOML file, a .env file and the process environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/andrew/rag-vault/pkg/registry"
)

// ErrInvalidConfig is returned for settings that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Collection names written by the ingestion run.
const (
	TextCollection  = "rag_text_chunks"
	MediaCollection = "media_assets"
)

// Config holds every setting the commands need.
type Config struct {
	// Root is the vault root. Empty means discover it from the working directory.
	Root     string `toml:"root"`
	RootName string `toml:"root_name"`
	Device   string `toml:"device"`

	Qdrant      QdrantConfig      `toml:"qdrant"`
	Text        TextConfig        `toml:"text"`
	Image       ImageConfig       `toml:"image"`
	Batch       BatchConfig       `toml:"batch"`
	Collections CollectionsConfig `toml:"collections"`
}

// QdrantConfig is the vector store connection.
type QdrantConfig struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout is the per-request deadline, zero for none.
func (q QdrantConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutSeconds) * time.Second
}

// TextConfig is the Ollama text embedding model and optional vision captioner.
type TextConfig struct {
	OllamaHost   string `toml:"ollama_host"`
	Model        string `toml:"model"`
	Dim          int    `toml:"dim"`
	CaptionModel string `toml:"caption_model"`
}

// ImageConfig is the image embedding server.
type ImageConfig struct {
	URL   string `toml:"url"`
	Model string `toml:"model"`
	Dim   int    `toml:"dim"`
}

// BatchConfig bounds the work done per model or store call.
type BatchConfig struct {
	Text   int `toml:"text"`
	Image  int `toml:"image"`
	Upsert int `toml:"upsert"`
}

// CollectionsConfig names the target collections.
type CollectionsConfig struct {
	Text  string `toml:"text"`
	Media string `toml:"media"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		RootName: registry.DefaultRootName,
		Device:   "auto",
		Qdrant: QdrantConfig{
			URL:            "localhost:6334",
			TimeoutSeconds: 60,
		},
		Text: TextConfig{
			OllamaHost: "http://localhost:11434",
			Model:      "all-minilm",
			Dim:        384,
		},
		Image: ImageConfig{
			URL:   "http://localhost:8090",
			Model: "ViT-B-32",
			Dim:   512,
		},
		Batch: BatchConfig{
			Text:   256,
			Image:  64,
			Upsert: 256,
		},
		Collections: CollectionsConfig{
			Text:  TextCollection,
			Media: MediaCollection,
		},
	}
}

// Load builds a Config. path is an optional TOML file; an explicit path that does not
// exist is an error. envFile is an optional dotenv file; a missing one is ignored.
// Variables already set in the process environment win over the dotenv file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		if vals, err := godotenv.Read(envFile); err == nil {
			dotenv = vals
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"QDRANT_URL":        &c.Qdrant.URL,
		"QDRANT_API_KEY":    &c.Qdrant.APIKey,
		"OLLAMA_HOST":       &c.Text.OllamaHost,
		"RAG_TEXT_MODEL":    &c.Text.Model,
		"RAG_CAPTION_MODEL": &c.Text.CaptionModel,
		"RAG_IMAGE_URL":     &c.Image.URL,
		"RAG_IMAGE_MODEL":   &c.Image.Model,
		"RAG_DEVICE":        &c.Device,
		"LIACARA_ROOT":      &c.Root,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RAG_TEXT_DIM":  &c.Text.Dim,
		"RAG_IMAGE_DIM": &c.Image.Dim,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
		}
		*dst = n
	}
	return nil
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch c.Device {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("%w: device %q (choose auto, cuda or cpu)", ErrInvalidConfig, c.Device)
	}
	if c.Text.Dim <= 0 || c.Image.Dim <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive", ErrInvalidConfig)
	}
	if c.Batch.Text <= 0 || c.Batch.Image <= 0 || c.Batch.Upsert <= 0 {
		return fmt.Errorf("%w: batch sizes must be positive", ErrInvalidConfig)
	}
	return nil
}

// ResolveRoot returns the vault root: the configured one, which must exist, or the
// one discovered by walking up from the working directory.
func (c Config) ResolveRoot() (string, error) {
	if c.Root == "" {
		return registry.FindRoot("", c.RootName)
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", registry.ErrRootNotFound, abs)
	}
	return abs, nil
}
