package services

import (
	"context"
	"sync"
)

// MockTTSCall records one Synthesize invocation.
type MockTTSCall struct {
	Text    string
	VoiceID string
}

// MockTTSService is a mock implementation of TTSService for testing
type MockTTSService struct {
	mu sync.Mutex

	// SynthesizeFunc allows customizing Synthesize behavior
	SynthesizeFunc func(ctx context.Context, text string, voiceID string) ([]byte, error)

	// Call tracking
	SynthesizeCalls []MockTTSCall
}

// NewMockTTSService creates a new mock speech-synthesis service
func NewMockTTSService() *MockTTSService {
	return &MockTTSService{}
}

func (m *MockTTSService) Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error) {
	m.mu.Lock()
	m.SynthesizeCalls = append(m.SynthesizeCalls, MockTTSCall{Text: text, VoiceID: voiceID})
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, voiceID)
	}
	return []byte("mp3-bytes"), nil
}

// SynthesizeCallCount returns the number of Synthesize calls made
func (m *MockTTSService) SynthesizeCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SynthesizeCalls)
}
