package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// MockChatClient is a test double for ChatClient. Configure Response or Err
// before use; calls are recorded for assertions.
type MockChatClient struct {
	mu sync.Mutex

	Response string
	Err      error

	Calls []MockCall
}

// MockCall records one Chat invocation.
type MockCall struct {
	Messages []Message
	Opts     ChatOptions
}

// Chat returns the configured response or error and records the call.
func (m *MockChatClient) Chat(_ context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Messages: messages, Opts: opts})

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Response == "" {
		return nil, ClassifyError(ErrEmptyResponse)
	}
	return &ChatResult{Content: m.Response}, nil
}

// Provider returns a fixed provider for tests.
func (m *MockChatClient) Provider() models.Provider {
	return models.ProviderOpenAI
}

// Model returns a fixed model name for tests.
func (m *MockChatClient) Model() string {
	return "mock-model"
}

// CallCount returns how many Chat calls were made.
func (m *MockChatClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ ChatClient = (*MockChatClient)(nil)

// MockStreamingChatClient is a MockChatClient that also advertises the
// streaming capability. Deltas are emitted word by word.
type MockStreamingChatClient struct {
	MockChatClient

	StreamCalls int
}

// ChatStream returns the configured response through onDelta fragments and
// records the call separately from Chat.
func (m *MockStreamingChatClient) ChatStream(_ context.Context, messages []Message, opts ChatOptions, onDelta func(text string) error) (*ChatResult, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.Calls = append(m.Calls, MockCall{Messages: messages, Opts: opts})
	response, err := m.Response, m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if onDelta != nil {
		for _, word := range strings.SplitAfter(response, " ") {
			if err := onDelta(word); err != nil {
				return nil, err
			}
		}
	}
	return &ChatResult{Content: response}, nil
}

var _ ChatStreamer = (*MockStreamingChatClient)(nil)

// MockClientFactory returns a fixed client from CreateForSettings.
type MockClientFactory struct {
	Client ChatClient
	Err    error
}

// CreateForSettings returns the configured client or error.
func (f *MockClientFactory) CreateForSettings(_ *models.AISettings) (ChatClient, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Client, nil
}

var _ ClientFactory = (*MockClientFactory)(nil)
