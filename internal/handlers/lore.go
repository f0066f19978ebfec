package handlers

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/talekeeper/npc-agent/internal/engine"
	"github.com/talekeeper/npc-agent/internal/middleware"
	"github.com/talekeeper/npc-agent/internal/quota"
	"github.com/talekeeper/npc-agent/internal/search"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/chat"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

// LoreChunkSize is the maximum size of one indexed lore chunk, in runes.
const LoreChunkSize = 1000

// LoreRequest is the payload for ingesting one lore document.
type LoreRequest struct {
	CharacterID uuid.UUID `json:"character_id"`
	Content     string    `json:"content"`
	// Lock, when true, also records the full content as a character-scoped
	// lore lock.
	Lock bool `json:"lock,omitempty"`
}

// LoreResponse reports the outcome of a lore ingestion.
type LoreResponse struct {
	ChunksIndexed int   `json:"chunks_indexed"`
	DocumentsUsed int64 `json:"documents_used"`
}

// LoreHandler handles lore document ingestion
type LoreHandler struct {
	store    storage.Storage
	searcher *search.Store
	governor *quota.Governor
	logger   *slog.Logger
}

// NewLoreHandler creates a new lore handler
func NewLoreHandler(store storage.Storage, searcher *search.Store, governor *quota.Governor, logger *slog.Logger) *LoreHandler {
	return &LoreHandler{
		store:    store,
		searcher: searcher,
		governor: governor,
		logger:   logger,
	}
}

// ServeHTTP handles POST /v1/lore: chunk, embed and index one document
// against a character, within the tier's document cap.
func (h *LoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.", "")
		return
	}

	user := middleware.UserFrom(r.Context())
	if user == nil {
		writeError(w, h.logger, http.StatusUnauthorized, "authentication required", engine.ReasonAuthenticationRequired)
		return
	}

	decision := h.governor.Admit(r.Context(), user.ID, user.Tier, tier.RouteLore)
	if !decision.Allowed {
		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		writeJSON(w, h.logger, http.StatusTooManyRequests, chat.ErrorResponse{
			Error:             "Too many requests. Slow down and try again.",
			Reason:            engine.ReasonRateLimited,
			RetryAfterSeconds: retryAfter,
		})
		return
	}

	var req LoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.", engine.ReasonValidationFailed)
		return
	}
	if req.CharacterID == uuid.Nil || req.Content == "" {
		writeError(w, h.logger, http.StatusBadRequest, "character_id and content are required.", engine.ReasonValidationFailed)
		return
	}

	c, err := h.store.GetCharacter(r.Context(), req.CharacterID)
	if err != nil {
		h.logger.Error("Error fetching character", "character_id", req.CharacterID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to fetch character.", engine.ReasonUpstreamFailure)
		return
	}
	if c == nil || c.UserID != user.ID {
		writeError(w, h.logger, http.StatusNotFound, "Character not found.", "")
		return
	}

	used, err := h.store.LoreDocCount(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Error counting lore documents", "user_id", user.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to ingest lore.", engine.ReasonUpstreamFailure)
		return
	}
	docCap := h.governor.Limits(user.Tier).LoreDocCap
	if used >= int64(docCap) {
		writeError(w, h.logger, http.StatusForbidden, "Lore document limit reached for your subscription.", "lore_doc_cap_reached")
		return
	}

	chunks := ChunkText(req.Content, LoreChunkSize)
	if err := h.searcher.Index(r.Context(), c.ID, chunks); err != nil {
		h.logger.Error("Error indexing lore", "character_id", c.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to ingest lore.", engine.ReasonUpstreamFailure)
		return
	}

	used, err = h.store.IncrLoreDocCount(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Error incrementing lore document count", "user_id", user.ID, "error", err)
		used = 0
	}

	if req.Lock {
		charID := c.ID
		lock := &character.LoreLock{
			ID:          uuid.New(),
			UserID:      user.ID,
			CampaignID:  c.CampaignID,
			CharacterID: &charID,
			Content:     req.Content,
			CreatedAt:   time.Now().UTC(),
		}
		if err := h.store.SaveLoreLock(r.Context(), lock); err != nil {
			h.logger.Warn("Error saving lore lock alongside document", "character_id", c.ID, "error", err)
		}
	}

	h.logger.Info("Lore document indexed",
		"character_id", c.ID,
		"chunks", len(chunks),
		"documents_used", used)
	writeJSON(w, h.logger, http.StatusCreated, LoreResponse{
		ChunksIndexed: len(chunks),
		DocumentsUsed: used,
	})
}

// ChunkText splits text into chunks of at most size runes, preferring word
// boundaries. Chunk order follows document order.
func ChunkText(text string, size int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, string(runes))
			break
		}
		cut := size
		for i := size; i > size/2; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
