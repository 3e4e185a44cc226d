package llmclient

import "context"

// MockClient returns a canned response for tests. Responses, if non-empty,
// is consumed one entry per call (useful for composers that make more than
// one Chat call per operation); Response is used once Responses is
// exhausted or when it's unset.
type MockClient struct {
	Response  string
	Responses []string
	Err       error
	// Received captures the most recent call's messages for assertions.
	Received []Message
	// Calls captures every call's messages, in order.
	Calls [][]Message
}

func (m *MockClient) Chat(ctx context.Context, messages []Message) (string, error) {
	m.Received = messages
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp, nil
	}
	return m.Response, nil
}
