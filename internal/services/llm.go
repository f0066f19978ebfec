package services

import (
	"context"
	"errors"

	"github.com/talekeeper/npc-agent/pkg/chat"
)

// ErrUpstreamRateLimited marks a generation failure caused by the provider's
// own rate or quota limits, distinguishable from other upstream failures.
var ErrUpstreamRateLimited = errors.New("upstream rate limited")

// LLMService defines the interface for the text-generation backend.
type LLMService interface {
	// InitModel initializes the model on startup
	InitModel(ctx context.Context, modelName string) error

	// Chat generates the in-character reply for a turn
	Chat(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// Insight generates the short third-person director's note
	Insight(ctx context.Context, messages []chat.ChatMessage) (string, error)
}

// TTSService defines the interface for the speech-synthesis backend.
type TTSService interface {
	// Synthesize renders text as mp3 audio using the given voice
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}

// Embedder defines the interface for the embedding backend used by lore
// indexing and knowledge search.
type Embedder interface {
	// Embed returns one embedding vector per input, in input order
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
