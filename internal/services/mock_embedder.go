package services

import (
	"context"
	"sync"
)

// MockEmbedder is a mock implementation of Embedder for testing. By default
// it returns a small deterministic vector per input so that identical inputs
// embed identically.
type MockEmbedder struct {
	mu sync.Mutex

	// EmbedFunc allows customizing Embed behavior
	EmbedFunc func(ctx context.Context, inputs []string) ([][]float32, error)

	// Call tracking
	EmbedCalls [][]string
}

// NewMockEmbedder creates a new mock embedder
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

func (m *MockEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	m.mu.Lock()
	m.EmbedCalls = append(m.EmbedCalls, inputs)
	m.mu.Unlock()

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, inputs)
	}

	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		var h uint32 = 2166136261
		for _, c := range []byte(in) {
			h ^= uint32(c)
			h *= 16777619
		}
		// Three non-degenerate components derived from the content hash.
		out[i] = []float32{
			float32(h%1000)/1000 + 0.001,
			float32((h>>10)%1000)/1000 + 0.001,
			float32((h>>20)%1000)/1000 + 0.001,
		}
	}
	return out, nil
}

// EmbedCallCount returns the number of Embed calls made
func (m *MockEmbedder) EmbedCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EmbedCalls)
}
