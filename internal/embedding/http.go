package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEmbedder calls an OpenAI-compatible `/embeddings` endpoint, the shape
// exposed by both hosted providers and self-hosted servers (e.g. Text
// Embeddings Inference) serving sentence-transformer models such as the
// default all-MiniLM-L6-v2. Grounded on the teacher's http.Client+timeout
// wiring in its (now-retired) placeholder Anthropic embedder.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewHTTPEmbedder builds an embedder against baseURL (no trailing slash
// required). apiKey may be empty for an unauthenticated self-hosted server.
func NewHTTPEmbedder(baseURL, apiKey, model string, dimensions int) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("cannot embed empty batch")
	}
	for _, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("cannot embed empty text")
		}
	}

	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("embedding API error: status %d", resp.StatusCode)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	out := make([]*Embedding, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		out[d.Index] = &Embedding{
			Text:   texts[d.Index],
			Vector: Vector(d.Embedding),
			Model:  e.model,
		}
	}
	return out, nil
}

func (e *HTTPEmbedder) Dimensions() int { return e.dimensions }

func (e *HTTPEmbedder) Model() string { return e.model }

// HTTPProvider implements Provider for HTTPEmbedder.
type HTTPProvider struct{}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) Create(config map[string]interface{}) (Embedder, error) {
	baseURL, _ := config["base_url"].(string)
	if baseURL == "" {
		return nil, fmt.Errorf("base_url is required for http provider")
	}

	apiKey, _ := config["api_key"].(string)

	model, _ := config["model"].(string)
	if model == "" {
		model = "all-MiniLM-L6-v2"
	}

	dimensions := 384
	if dim, ok := config["dimensions"].(int); ok {
		dimensions = dim
	} else if dim, ok := config["dimensions"].(float64); ok {
		dimensions = int(dim)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}

	return NewHTTPEmbedder(baseURL, apiKey, model, dimensions), nil
}

func init() {
	if err := Register(&HTTPProvider{}); err != nil {
		panic(fmt.Sprintf("failed to register http provider: %v", err))
	}
}
