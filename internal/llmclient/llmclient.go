// Package llmclient talks to a chat-completion LLM provider. It is
// deliberately narrow — one request shape in, one text response out — since
// the answer composer is the only caller and it never needs multi-turn
// history or function calling.
package llmclient

import "context"

// Message is one turn of a chat completion request.
type Message struct {
	Role    string // "system" or "user"
	Content string
}

// Client sends a chat completion request and returns the model's text.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
