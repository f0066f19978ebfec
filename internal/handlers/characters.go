package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talekeeper/npc-agent/internal/engine"
	"github.com/talekeeper/npc-agent/internal/middleware"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
)

// CharacterHandler handles character creation and retrieval
type CharacterHandler struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewCharacterHandler creates a new character handler
func NewCharacterHandler(store storage.Storage, logger *slog.Logger) *CharacterHandler {
	return &CharacterHandler{
		store:  store,
		logger: logger,
	}
}

// ServeHTTP routes character requests: POST /v1/characters creates, GET
// /v1/characters/{id} retrieves.
func (h *CharacterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	if user == nil {
		writeError(w, h.logger, http.StatusUnauthorized, "authentication required", engine.ReasonAuthenticationRequired)
		return
	}

	suffix := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/characters"), "/")

	switch {
	case r.Method == http.MethodPost && suffix == "":
		h.create(w, r, user.ID)
	case r.Method == http.MethodGet && suffix != "":
		h.get(w, r, user.ID, suffix)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed.", "")
	}
}

func (h *CharacterHandler) create(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var c character.Character
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.logger.Warn("Invalid character request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.", engine.ReasonValidationFailed)
		return
	}

	c.ID = uuid.New()
	c.UserID = userID
	c.Inventory = character.NormalizeInventory(c.Inventory)
	c.Version = 0
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := c.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error(), engine.ReasonValidationFailed)
		return
	}

	if err := h.store.SaveCharacter(r.Context(), &c); err != nil {
		h.logger.Error("Error saving character", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save character.", engine.ReasonUpstreamFailure)
		return
	}

	h.logger.Info("Character created", "character_id", c.ID, "name", c.Name)
	writeJSON(w, h.logger, http.StatusCreated, c)
}

func (h *CharacterHandler) get(w http.ResponseWriter, r *http.Request, userID uuid.UUID, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid character id.", engine.ReasonValidationFailed)
		return
	}

	c, err := h.store.GetCharacter(r.Context(), id)
	if err != nil {
		h.logger.Error("Error fetching character", "character_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to fetch character.", engine.ReasonUpstreamFailure)
		return
	}
	if c == nil || c.UserID != userID {
		writeError(w, h.logger, http.StatusNotFound, "Character not found.", "")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, c)
}
