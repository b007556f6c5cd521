package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultCLIPURL is the default address of the image embedding server.
const DefaultCLIPURL = "http://localhost:8090"

// CLIPClient talks to an HTTP image embedding server (an open_clip style model behind
// a small JSON API).
type CLIPClient struct {
	baseURL    string
	httpClient *http.Client
	model      string
	device     string
	dim        int
}

// clipRequest is the body of POST /embed/image
type clipRequest struct {
	Model  string   `json:"model"`
	Device string   `json:"device,omitempty"`
	Images []string `json:"images"`
}

// clipResponse is the reply of POST /embed/image
type clipResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewCLIPClient creates a client for the image embedding server.
func NewCLIPClient(baseURL, model string, dim int, device string) *CLIPClient {
	if baseURL == "" {
		baseURL = DefaultCLIPURL
	}
	return &CLIPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		model:  model,
		device: device,
		dim:    dim,
	}
}

// Embed implements ImageModel. Images are sent base64-encoded.
func (c *CLIPClient) Embed(ctx context.Context, images [][]byte) ([][]float32, error) {
	req := clipRequest{
		Model:  c.model,
		Device: c.device,
		Images: make([]string, len(images)),
	}
	for i, img := range images {
		req.Images[i] = base64.StdEncoding.EncodeToString(img)
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/image", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("image embedding API error (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out clipResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse image embedding response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("image embedding API error: %s", out.Error)
	}
	return out.Embeddings, nil
}

// Dim implements ImageModel.
func (c *CLIPClient) Dim() int {
	return c.dim
}
