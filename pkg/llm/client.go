package llm

import (
	"context"
)

// DefaultCaptionPrompt asks a vision model for a short, searchable caption.
const DefaultCaptionPrompt = "Describe this image in one or two factual sentences for a search index. " +
	"Mention visible text, chart types and subjects. Do not speculate."

// Captioner describes an image in natural language
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
	Close() error
}

// ModelConfig holds configuration parameters for model generation
type ModelConfig struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// DefaultModelConfig returns a default configuration tuned for short, stable captions
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   96,
	}
}

func (c ModelConfig) options() map[string]any {
	opts := map[string]any{}
	if c.Temperature > 0 {
		opts["temperature"] = c.Temperature
	}
	if c.TopP > 0 {
		opts["top_p"] = c.TopP
	}
	if c.MaxTokens > 0 {
		opts["num_predict"] = c.MaxTokens
	}
	return opts
}
