package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaHost is used when no host is configured.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaText embeds texts with an Ollama embedding model through the batch embed API.
type OllamaText struct {
	client  *api.Client
	model   string
	dim     int
	options map[string]any
}

// NewOllamaText connects to an Ollama server. A device of "cpu" keeps the model off
// the GPU; any other value lets Ollama decide.
func NewOllamaText(host, model string, dim int, device string) (*OllamaText, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 5 * time.Minute,
	}

	return &OllamaText{
		client:  api.NewClient(u, httpClient),
		model:   model,
		dim:     dim,
		options: DeviceOptions(device),
	}, nil
}

// DeviceOptions maps a device name to Ollama runtime options.
func DeviceOptions(device string) map[string]any {
	if device == "cpu" {
		return map[string]any{"num_gpu": 0}
	}
	return nil
}

// Ping checks that the server is reachable.
func (o *OllamaText) Ping(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}

// Embed implements TextModel.
func (o *OllamaText) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := &api.EmbedRequest{
		Model:   o.model,
		Input:   texts,
		Options: o.options,
	}
	resp, err := o.client.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed with %s: %w", o.model, err)
	}
	return resp.Embeddings, nil
}

// Dim implements TextModel.
func (o *OllamaText) Dim() int {
	return o.dim
}
