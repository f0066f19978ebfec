package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talekeeper/npc-agent/internal/quota"
	"github.com/talekeeper/npc-agent/internal/search"
	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

type loreFixture struct {
	store    *storage.MockStorage
	searcher *search.Store
	handler  *LoreHandler
	user     *services.UserProfile
	char     *character.Character
}

func newLoreFixture(t *testing.T, userTier tier.Tier) *loreFixture {
	t.Helper()
	store := storage.NewMockStorage()
	searcher := search.NewStore(services.NewMockEmbedder(), testLogger())
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

	return &loreFixture{
		store:    store,
		searcher: searcher,
		handler:  NewLoreHandler(store, searcher, governor, testLogger()),
		user:     user,
		char:     c,
	}
}

func TestLoreHandlerIngest(t *testing.T) {
	f := newLoreFixture(t, tier.Narrator)

	content := strings.Repeat("The mine collapsed in winter. ", 80) // ~2400 chars
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/lore", LoreRequest{
		CharacterID: f.char.ID,
		Content:     content,
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp LoreResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 3, resp.ChunksIndexed)
	assert.Equal(t, int64(1), resp.DocumentsUsed)

	// Indexed lore is searchable for this character.
	fragments, err := f.searcher.Search(context.Background(), f.char.ID, "the mine", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, fragments)
}

func TestLoreHandlerDocCap(t *testing.T) {
	// Explorer may ingest a single lore document.
	f := newLoreFixture(t, tier.Explorer)

	body := LoreRequest{CharacterID: f.char.ID, Content: "A short fact."}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/lore", body))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/lore", body))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "lore_doc_cap_reached")
}

func TestLoreHandlerLockOption(t *testing.T) {
	f := newLoreFixture(t, tier.Narrator)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/lore", LoreRequest{
		CharacterID: f.char.ID,
		Content:     "Greta has never left the valley.",
		Lock:        true,
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	locks, err := f.store.ListCharacterLocks(context.Background(), f.user.ID, f.char.ID)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "Greta has never left the valley.", locks[0].Content)
}

func TestLoreHandlerOwnership(t *testing.T) {
	f := newLoreFixture(t, tier.Narrator)
	stranger := &services.UserProfile{ID: uuid.New(), Tier: tier.Narrator}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, stranger, http.MethodPost, "/v1/lore", LoreRequest{
		CharacterID: f.char.ID,
		Content:     "should not index",
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoreHandlerValidation(t *testing.T) {
	f := newLoreFixture(t, tier.Narrator)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodPost, "/v1/lore", LoreRequest{
		CharacterID: f.char.ID,
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, authedRequest(t, f.user, http.MethodGet, "/v1/lore", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, ChunkText("", 1000))
	assert.Equal(t, []string{"short"}, ChunkText("short", 1000))

	long := strings.Repeat("word ", 500) // 2500 chars
	chunks := ChunkText(long, 1000)
	assert.GreaterOrEqual(t, len(chunks), 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 1000)
	}
	// Nothing is lost in the split.
	assert.Equal(t, long, strings.Join(chunks, ""))
}
