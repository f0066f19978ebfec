package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

type stubSearcher struct {
	fragments []character.KnowledgeFragment
	err       error
	lastK     int
}

func (s *stubSearcher) Search(ctx context.Context, characterID uuid.UUID, question string, k int) ([]character.KnowledgeFragment, error) {
	s.lastK = k
	return s.fragments, s.err
}

func seededCharacter(t *testing.T, store *storage.MockStorage) *character.Character {
	t.Helper()
	c := &character.Character{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		CampaignID: uuid.New(),
		Name:       "Greta",
		Race:       "dwarf",
		Facade:     "socialite",
		Essence:    "survivor",
		Inventory:  []string{"iron key"},
	}
	require.NoError(t, store.SaveCharacter(context.Background(), c))
	return c
}

func TestGatherFullBundle(t *testing.T) {
	store := storage.NewMockStorage()
	c := seededCharacter(t, store)
	ctx := context.Background()

	require.NoError(t, store.SaveLoreLock(ctx, &character.LoreLock{
		ID: uuid.New(), UserID: c.UserID, CampaignID: c.CampaignID,
		Content: "The king is dead.",
	}))
	require.NoError(t, store.SaveLoreLock(ctx, &character.LoreLock{
		ID: uuid.New(), UserID: c.UserID, CampaignID: c.CampaignID, CharacterID: &c.ID,
		Content: "Greta has never left the valley.",
	}))
	require.NoError(t, store.SaveMemory(ctx, &character.Memory{
		ID: uuid.New(), UserID: c.UserID, CharacterID: c.ID,
		Content: "The player paid in gold.",
	}))

	searcher := &stubSearcher{fragments: []character.KnowledgeFragment{
		{Content: "The collapse was no accident.", Similarity: 0.8},
	}}
	agg := NewAggregator(store, searcher, testLogger())

	bundle := agg.Gather(ctx, c, "what happened to the mine")

	assert.Equal(t, TopFragments, searcher.lastK)
	require.Len(t, bundle.Fragments, 1)
	assert.Equal(t, "The collapse was no accident.", bundle.Fragments[0].Content)
	assert.Equal(t, []string{"iron key"}, bundle.Inventory)
	require.Len(t, bundle.CampaignLocks, 1)
	assert.Equal(t, "The king is dead.", bundle.CampaignLocks[0].Content)
	require.Len(t, bundle.CharacterLocks, 1)
	require.Len(t, bundle.Memories, 1)
}

func TestGatherSearchFailureIsNotFatal(t *testing.T) {
	store := storage.NewMockStorage()
	c := seededCharacter(t, store)

	searcher := &stubSearcher{err: errors.New("embedding service down")}
	agg := NewAggregator(store, searcher, testLogger())

	bundle := agg.Gather(context.Background(), c, "hello")

	assert.Empty(t, bundle.Fragments)
	assert.Equal(t, []string{"iron key"}, bundle.Inventory)
}

func TestGatherEmptySources(t *testing.T) {
	store := storage.NewMockStorage()
	c := seededCharacter(t, store)

	agg := NewAggregator(store, &stubSearcher{}, testLogger())
	bundle := agg.Gather(context.Background(), c, "hello")

	assert.Empty(t, bundle.Fragments)
	assert.Empty(t, bundle.CampaignLocks)
	assert.Empty(t, bundle.CharacterLocks)
	assert.Empty(t, bundle.Memories)
}
