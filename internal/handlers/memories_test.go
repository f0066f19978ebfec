package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talekeeper/npc-agent/internal/quota"
	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

type memoryFixture struct {
	store   *storage.MockStorage
	handler *MemoryHandler
	user    *services.UserProfile
	char    *character.Character
}

func newMemoryFixture(t *testing.T, userTier tier.Tier) *memoryFixture {
	t.Helper()
	store := storage.NewMockStorage()
	governor := quota.NewGovernor(newMemCounter(), store, tier.Default(), testLogger())
	user := &services.UserProfile{ID: uuid.New(), Tier: userTier}

	c := &character.Character{
		ID:         uuid.New(),
		UserID:     user.ID,
		CampaignID: uuid.New(),
		Name:       "Greta",
		Race:       "dwarf",
		Facade:     "socialite",
		Essence:    "survivor",
	}
	require.NoError(t, store.SaveCharacter(context.Background(), c))

	return &memoryFixture{
		store:   store,
		handler: NewMemoryHandler(store, governor, testLogger()),
		user:    user,
		char:    c,
	}
}

func TestMemoryHandlerCreateAndList(t *testing.T) {
	f := newMemoryFixture(t, tier.Explorer)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/memories", MemoryRequest{
		CharacterID: f.char.ID,
		Content:     "The player paid in gold.",
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	var created character.Memory
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, f.char.ID, created.CharacterID)
	assert.Equal(t, f.char.CampaignID, created.CampaignID)

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodGet, "/v1/memories?character_id="+f.char.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var memories []character.Memory
	require.NoError(t, json.NewDecoder(w.Body).Decode(&memories))
	require.Len(t, memories, 1)
	assert.Equal(t, "The player paid in gold.", memories[0].Content)
}

func TestMemoryHandlerCapEnforced(t *testing.T) {
	// Explorer keeps at most 5 memories per character. Seed the store
	// directly so the route limiter is not consumed getting there.
	f := newMemoryFixture(t, tier.Explorer)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.store.SaveMemory(context.Background(), &character.Memory{
			ID:          uuid.New(),
			UserID:      f.user.ID,
			CampaignID:  f.char.CampaignID,
			CharacterID: f.char.ID,
			Content:     "memory",
		}))
	}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/memories", MemoryRequest{
		CharacterID: f.char.ID,
		Content:     "one too many",
	}))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "memory_cap_reached")
}

func TestMemoryHandlerRateLimited(t *testing.T) {
	f := newMemoryFixture(t, tier.Explorer)
	target := "/v1/memories?character_id=" + f.char.ID.String()

	// Explorer gets 5 memory-route requests per window.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodGet, target, nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestMemoryHandlerOwnership(t *testing.T) {
	f := newMemoryFixture(t, tier.Explorer)
	stranger := &services.UserProfile{ID: uuid.New(), Tier: tier.Explorer}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, stranger, http.MethodPost, "/v1/memories", MemoryRequest{
		CharacterID: f.char.ID,
		Content:     "should not land",
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemoryHandlerValidation(t *testing.T) {
	f := newMemoryFixture(t, tier.Explorer)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/memories", MemoryRequest{
		CharacterID: f.char.ID,
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodGet, "/v1/memories", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
