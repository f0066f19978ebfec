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
	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/chat"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

// MemoryRequest is the payload for appending a memory to a character.
type MemoryRequest struct {
	CharacterID uuid.UUID `json:"character_id"`
	Content     string    `json:"content"`
}

// MemoryHandler handles memory ledger requests
type MemoryHandler struct {
	store    storage.Storage
	governor *quota.Governor
	logger   *slog.Logger
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(store storage.Storage, governor *quota.Governor, logger *slog.Logger) *MemoryHandler {
	return &MemoryHandler{
		store:    store,
		governor: governor,
		logger:   logger,
	}
}

// ServeHTTP routes memory requests: GET lists a character's ledger oldest
// first, POST appends within the tier's cap.
func (h *MemoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	if user == nil {
		writeError(w, h.logger, http.StatusUnauthorized, "authentication required", engine.ReasonAuthenticationRequired)
		return
	}

	decision := h.governor.Admit(r.Context(), user.ID, user.Tier, tier.RouteMemory)
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

	switch r.Method {
	case http.MethodGet:
		h.list(w, r, user)
	case http.MethodPost:
		h.create(w, r, user)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed.", "")
	}
}

// ownedCharacter loads a character and verifies ownership, writing the error
// response itself when the character is unavailable.
func (h *MemoryHandler) ownedCharacter(w http.ResponseWriter, r *http.Request, user *services.UserProfile, id uuid.UUID) *character.Character {
	c, err := h.store.GetCharacter(r.Context(), id)
	if err != nil {
		h.logger.Error("Error fetching character", "character_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to fetch character.", engine.ReasonUpstreamFailure)
		return nil
	}
	if c == nil || c.UserID != user.ID {
		writeError(w, h.logger, http.StatusNotFound, "Character not found.", "")
		return nil
	}
	return c
}

func (h *MemoryHandler) list(w http.ResponseWriter, r *http.Request, user *services.UserProfile) {
	characterID, err := uuid.Parse(r.URL.Query().Get("character_id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "character_id query parameter is required.", engine.ReasonValidationFailed)
		return
	}

	if h.ownedCharacter(w, r, user, characterID) == nil {
		return
	}

	memories, err := h.store.ListMemories(r.Context(), characterID)
	if err != nil {
		h.logger.Error("Error listing memories", "character_id", characterID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list memories.", engine.ReasonUpstreamFailure)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, memories)
}

func (h *MemoryHandler) create(w http.ResponseWriter, r *http.Request, user *services.UserProfile) {
	var req MemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.", engine.ReasonValidationFailed)
		return
	}
	if req.CharacterID == uuid.Nil || req.Content == "" {
		writeError(w, h.logger, http.StatusBadRequest, "character_id and content are required.", engine.ReasonValidationFailed)
		return
	}

	c := h.ownedCharacter(w, r, user, req.CharacterID)
	if c == nil {
		return
	}

	count, err := h.store.CountMemories(r.Context(), req.CharacterID)
	if err != nil {
		h.logger.Error("Error counting memories", "character_id", req.CharacterID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save memory.", engine.ReasonUpstreamFailure)
		return
	}

	memoryCap := h.governor.Limits(user.Tier).MemoryCap
	if count >= int64(memoryCap) {
		writeError(w, h.logger, http.StatusForbidden, "Memory ledger is full for this character.", "memory_cap_reached")
		return
	}

	memory := &character.Memory{
		ID:          uuid.New(),
		UserID:      user.ID,
		CampaignID:  c.CampaignID,
		CharacterID: c.ID,
		Content:     req.Content,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.SaveMemory(r.Context(), memory); err != nil {
		h.logger.Error("Error saving memory", "character_id", c.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save memory.", engine.ReasonUpstreamFailure)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, memory)
}
