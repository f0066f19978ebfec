package services

import (
	"context"
	"sync"

	"github.com/talekeeper/npc-agent/pkg/chat"
)

// MockLLMService is a mock implementation of LLMService for testing
type MockLLMService struct {
	mu sync.Mutex

	// InitModelFunc allows customizing InitModel behavior
	InitModelFunc func(ctx context.Context, modelName string) error

	// ChatFunc allows customizing Chat behavior
	ChatFunc func(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// InsightFunc allows customizing Insight behavior
	InsightFunc func(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// Call tracking
	InitModelCalls []string
	ChatCalls      [][]chat.ChatMessage
	InsightCalls   [][]chat.ChatMessage
}

// NewMockLLMService creates a new mock LLM service
func NewMockLLMService() *MockLLMService {
	return &MockLLMService{}
}

func (m *MockLLMService) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	m.InitModelCalls = append(m.InitModelCalls, modelName)
	m.mu.Unlock()

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx, modelName)
	}
	return nil
}

func (m *MockLLMService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, messages)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages)
	}
	return "The innkeeper nods slowly.", nil
}

func (m *MockLLMService) Insight(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	m.mu.Lock()
	m.InsightCalls = append(m.InsightCalls, messages)
	m.mu.Unlock()

	if m.InsightFunc != nil {
		return m.InsightFunc(ctx, messages)
	}
	return "The character is hiding something.", nil
}

// ChatCallCount returns the number of Chat calls made
func (m *MockLLMService) ChatCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ChatCalls)
}

// InsightCallCount returns the number of Insight calls made
func (m *MockLLMService) InsightCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InsightCalls)
}
