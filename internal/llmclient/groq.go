package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GroqBaseURL is Groq's OpenAI-compatible chat completions endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is used when the caller doesn't name one.
const DefaultModel = "llama-3.3-70b-versatile"

// requestTimeout bounds a single completion call (spec §5: every LLM call is
// a suspension point with an explicit timeout).
const requestTimeout = 30 * time.Second

// GroqClient is an OpenAI-compatible chat client configured for Groq,
// grounded on the pack's openAICompatClient pattern (bbiangul-go-reason/llm).
type GroqClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGroqClient builds a client. baseURL defaults to GroqBaseURL when empty,
// model to DefaultModel when empty.
func NewGroqClient(baseURL, apiKey, model string) *GroqClient {
	if baseURL == "" {
		baseURL = GroqBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &GroqClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GroqClient) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	wireMessages := make([]wireMessage, len(messages))
	for i, m := range messages {
		wireMessages[i] = wireMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(chatCompletionRequest{Model: c.model, Messages: wireMessages})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("llm API error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("llm API error: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm API returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
