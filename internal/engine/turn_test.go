package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talekeeper/npc-agent/internal/knowledge"
	"github.com/talekeeper/npc-agent/internal/quota"
	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/chat"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

// memCounter is an in-memory counter store that never expires windows.
type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounter() *memCounter {
	return &memCounter{counts: make(map[string]int64)}
}

func (m *memCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], 30 * time.Second, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(ctx context.Context, characterID uuid.UUID, question string, k int) ([]character.KnowledgeFragment, error) {
	return nil, nil
}

type engineFixture struct {
	engine *Engine
	store  *storage.MockStorage
	llm    *services.MockLLMService
	tts    *services.MockTTSService
	user   *services.UserProfile
	char   *character.Character
}

func newFixture(t *testing.T, userTier tier.Tier) *engineFixture {
	t.Helper()
	logger := testLogger()
	store := storage.NewMockStorage()

	user := &services.UserProfile{ID: uuid.New(), Tier: userTier}
	c := &character.Character{
		ID:         uuid.New(),
		UserID:     user.ID,
		CampaignID: uuid.New(),
		Name:       "Greta",
		Race:       "dwarf",
		Facade:     "socialite",
		Essence:    "survivor",
		VoiceID:    "voice-123",
		Inventory:  []string{"iron key"},
	}
	require.NoError(t, store.SaveCharacter(context.Background(), c))

	llm := services.NewMockLLMService()
	tts := services.NewMockTTSService()
	governor := quota.NewGovernor(newMemCounter(), store, tier.Default(), logger)
	aggregator := knowledge.NewAggregator(store, stubSearcher{}, logger)

	return &engineFixture{
		engine: NewEngine(store, governor, aggregator, llm, tts, 20, logger),
		store:  store,
		llm:    llm,
		tts:    tts,
		user:   user,
		char:   c,
	}
}

func turnRequest(f *engineFixture) *chat.TurnRequest {
	return &chat.TurnRequest{
		CharacterID: f.char.ID,
		Question:    "Who rules this town?",
	}
}

func TestRunTextTurn(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.llm.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "The guild does, stranger.", nil
	}
	f.llm.InsightFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "She is testing the player's loyalties.", nil
	}

	result, err := f.engine.Run(context.Background(), f.user, turnRequest(f))
	require.NoError(t, err)

	assert.Equal(t, "The guild does, stranger.", result.Text)
	assert.Equal(t, "She is testing the player's loyalties.", result.Insight)
	assert.False(t, result.InventoryChanged)
	assert.Empty(t, result.Audio)
	assert.Empty(t, result.VoiceDenied)
	assert.Equal(t, 1, f.llm.ChatCallCount())
	assert.Equal(t, 1, f.llm.InsightCallCount())
	assert.Equal(t, 0, f.tts.SynthesizeCallCount())

	// The system payload reaches the model; the insight call sees the reply.
	firstChat := f.llm.ChatCalls[0]
	assert.Equal(t, chat.ChatRoleSystem, firstChat[0].Role)
	assert.Contains(t, f.llm.InsightCalls[0][0].Content, "The guild does, stranger.")
}

func TestRunValidation(t *testing.T) {
	f := newFixture(t, tier.Explorer)

	_, err := f.engine.Run(context.Background(), f.user, &chat.TurnRequest{CharacterID: f.char.ID})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "question")
	assert.Equal(t, 0, f.llm.ChatCallCount())
}

func TestRunRateLimited(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.engine.Run(ctx, f.user, turnRequest(f))
		require.NoError(t, err)
	}

	_, err := f.engine.Run(ctx, f.user, turnRequest(f))
	var aErr *AdmissionError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, ReasonRateLimited, aErr.Reason)
	assert.Greater(t, aErr.RetryAfter, time.Duration(0))
	// Nothing was generated for the denied request.
	assert.Equal(t, 10, f.llm.ChatCallCount())
}

func TestRunCharacterOwnership(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	stranger := &services.UserProfile{ID: uuid.New(), Tier: tier.Explorer}

	_, err := f.engine.Run(context.Background(), stranger, turnRequest(f))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "character not found")
}

func TestRunUnknownCharacter(t *testing.T) {
	f := newFixture(t, tier.Explorer)

	_, err := f.engine.Run(context.Background(), f.user, &chat.TurnRequest{
		CharacterID: uuid.New(),
		Question:    "Hello?",
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestRunChatFailureAborts(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.llm.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "", errors.New("model overloaded")
	}

	_, err := f.engine.Run(context.Background(), f.user, turnRequest(f))
	var uErr *UpstreamError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, "generation", uErr.Step)
	assert.Equal(t, 0, f.llm.InsightCallCount())
}

func TestRunInsightFailureDegrades(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.llm.InsightFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "", errors.New("model overloaded")
	}

	result, err := f.engine.Run(context.Background(), f.user, turnRequest(f))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Text)
	assert.Empty(t, result.Insight)
}

func TestRunInventoryCommand(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.llm.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return `Take this. [INVENTORY_UPDATE: ADD "healing potion"]`, nil
	}

	result, err := f.engine.Run(context.Background(), f.user, turnRequest(f))
	require.NoError(t, err)

	assert.Equal(t, "Take this.", result.Text)
	assert.True(t, result.InventoryChanged)
	assert.Equal(t, []string{"iron key", "healing potion"}, result.Inventory)

	// The tag never leaks into the insight call.
	assert.NotContains(t, f.llm.InsightCalls[0][0].Content, "INVENTORY_UPDATE")

	stored, err := f.store.GetCharacter(context.Background(), f.char.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"iron key", "healing potion"}, stored.Inventory)
	assert.Equal(t, int64(1), stored.Version)
}

func TestRunInventoryConflictRetries(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.llm.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return `Take this. [INVENTORY_UPDATE: ADD "healing potion"]`, nil
	}

	calls := 0
	f.store.UpdateInventoryFunc = func(ctx context.Context, id uuid.UUID, expectedVersion int64, inventory []string) (*character.Character, error) {
		calls++
		if calls == 1 {
			return nil, storage.ErrVersionConflict
		}
		f.store.UpdateInventoryFunc = nil
		return f.store.UpdateInventory(ctx, id, expectedVersion, inventory)
	}

	result, err := f.engine.Run(context.Background(), f.user, turnRequest(f))
	require.NoError(t, err)
	assert.True(t, result.InventoryChanged)
	assert.Equal(t, 2, calls)
}

func TestRunInventoryPersistentConflictDropsCommand(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.llm.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return `Take this. [INVENTORY_UPDATE: ADD "healing potion"]`, nil
	}
	f.store.UpdateInventoryFunc = func(ctx context.Context, id uuid.UUID, expectedVersion int64, inventory []string) (*character.Character, error) {
		return nil, storage.ErrVersionConflict
	}

	result, err := f.engine.Run(context.Background(), f.user, turnRequest(f))
	require.NoError(t, err)
	assert.False(t, result.InventoryChanged)
	assert.Equal(t, []string{"iron key"}, result.Inventory)
}

func TestRunVoiceTurn(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.llm.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "The guild does, stranger.", nil
	}

	req := turnRequest(f)
	req.AudioEnabled = true

	result, err := f.engine.Run(context.Background(), f.user, req)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Audio)
	assert.Empty(t, result.VoiceDenied)
	require.Equal(t, 1, f.tts.SynthesizeCallCount())
	assert.Equal(t, "voice-123", f.tts.SynthesizeCalls[0].VoiceID)
	assert.Equal(t, "The guild does, stranger.", f.tts.SynthesizeCalls[0].Text)
}

func TestRunVoicePremiumGate(t *testing.T) {
	f := newFixture(t, tier.Scribe)
	req := turnRequest(f)
	req.AudioEnabled = true

	result, err := f.engine.Run(context.Background(), f.user, req)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Text)
	assert.Empty(t, result.Audio)
	assert.Equal(t, ReasonPremiumFeatureRequired, result.VoiceDenied)
	assert.Equal(t, 0, f.tts.SynthesizeCallCount())
}

func TestRunVoiceBudgetExceeded(t *testing.T) {
	// The fallback tier has voice enabled with a zero budget.
	f := newFixture(t, tier.Tier("platinum"))
	req := turnRequest(f)
	req.AudioEnabled = true

	result, err := f.engine.Run(context.Background(), f.user, req)
	require.NoError(t, err)

	assert.Empty(t, result.Audio)
	assert.Equal(t, ReasonVoiceBudgetExceeded, result.VoiceDenied)
	assert.Equal(t, 0, f.tts.SynthesizeCallCount())
}

func TestRunVoiceSynthesisFailureDegrades(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.tts.SynthesizeFunc = func(ctx context.Context, text string, voiceID string) ([]byte, error) {
		return nil, errors.New("synthesis backend down")
	}
	req := turnRequest(f)
	req.AudioEnabled = true

	result, err := f.engine.Run(context.Background(), f.user, req)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Text)
	assert.Empty(t, result.Audio)
	assert.Equal(t, ReasonUpstreamFailure, result.VoiceDenied)
}

func TestRunVoiceWithoutVoiceID(t *testing.T) {
	f := newFixture(t, tier.Explorer)
	f.char.VoiceID = ""
	require.NoError(t, f.store.SaveCharacter(context.Background(), f.char))

	req := turnRequest(f)
	req.AudioEnabled = true

	result, err := f.engine.Run(context.Background(), f.user, req)
	require.NoError(t, err)

	assert.Empty(t, result.Audio)
	assert.Equal(t, ReasonVoiceUnavailable, result.VoiceDenied)
	assert.Equal(t, 0, f.tts.SynthesizeCallCount())
}

func TestRunVoiceNotRequested(t *testing.T) {
	f := newFixture(t, tier.Explorer)

	result, err := f.engine.Run(context.Background(), f.user, turnRequest(f))
	require.NoError(t, err)
	assert.Empty(t, result.Audio)
	assert.Empty(t, result.VoiceDenied)

	// Text-only turns never touch the voice budget.
	if strings.TrimSpace(result.Text) != "" {
		assert.Equal(t, 0, f.tts.SynthesizeCallCount())
	}
}
