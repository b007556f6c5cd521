package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaClient captions images with an Ollama vision model (llava, llama3.2-vision, ...)
type OllamaClient struct {
	client    *api.Client
	modelName string
	config    ModelConfig
	prompt    string
}

// NewOllamaClient creates a new client for a local Ollama server
func NewOllamaClient(modelName string, baseURL string) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL %q: %w", baseURL, err)
	}

	httpClient := &http.Client{
		Timeout: time.Minute * 5, // vision models are slow to load on first use
	}

	return &OllamaClient{
		client:    api.NewClient(u, httpClient),
		modelName: modelName,
		config:    DefaultModelConfig(),
		prompt:    DefaultCaptionPrompt,
	}, nil
}

// WithPrompt replaces the caption prompt
func (c *OllamaClient) WithPrompt(prompt string) *OllamaClient {
	c.prompt = prompt
	return c
}

// WithConfig replaces the generation parameters
func (c *OllamaClient) WithConfig(config ModelConfig) *OllamaClient {
	c.config = config
	return c
}

// Caption sends one image with the caption prompt and returns the trimmed reply
func (c *OllamaClient) Caption(ctx context.Context, image []byte) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   c.modelName,
		Prompt:  c.prompt,
		Images:  []api.ImageData{image},
		Stream:  &stream,
		Options: c.config.options(),
	}

	var reply strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		reply.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("caption with %s: %w", c.modelName, err)
	}
	return strings.TrimSpace(reply.String()), nil
}

// Close cleans up any resources
func (c *OllamaClient) Close() error {
	// No cleanup needed for HTTP client
	return nil
}
