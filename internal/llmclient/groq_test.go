package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroqClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"the answer is 42"}}]}`)
	}))
	defer server.Close()

	client := NewGroqClient(server.URL, "test-key", "llama-3.3-70b-versatile")
	out, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "answer only from context"},
		{Role: "user", Content: "what is the answer?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", out)
}

func TestGroqClient_DefaultsBaseURLAndModel(t *testing.T) {
	client := NewGroqClient("", "key", "")
	assert.Equal(t, GroqBaseURL, client.baseURL)
	assert.Equal(t, DefaultModel, client.model)
}

func TestGroqClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	client := NewGroqClient(server.URL, "key", "model")
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGroqClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	client := NewGroqClient(server.URL, "key", "model")
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
}

func TestMockClient_Chat(t *testing.T) {
	mock := &MockClient{Response: "mocked answer"}
	out, err := mock.Chat(context.Background(), []Message{{Role: "user", Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "mocked answer", out)
	assert.Len(t, mock.Received, 1)
}

func TestMockClient_ImplementsClient(t *testing.T) {
	var _ Client = &MockClient{}
	var _ Client = &GroqClient{}
}
