package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/talekeeper/npc-agent/internal/engine"
	"github.com/talekeeper/npc-agent/internal/middleware"
	"github.com/talekeeper/npc-agent/pkg/chat"
)

const msgUpstreamFailure = "The NPC fumbled and could not respond."

// TurnHandler handles interaction turn requests
type TurnHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewTurnHandler creates a new turn handler
func NewTurnHandler(eng *engine.Engine, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{
		engine: eng,
		logger: logger,
	}
}

// ServeHTTP handles HTTP requests for interaction turns
func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.", "")
		return
	}

	user := middleware.UserFrom(r.Context())
	if user == nil {
		writeError(w, h.logger, http.StatusUnauthorized, "authentication required", engine.ReasonAuthenticationRequired)
		return
	}

	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid turn request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.", engine.ReasonValidationFailed)
		return
	}

	result, err := h.engine.Run(r.Context(), user, &req)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}

	if len(result.Audio) > 0 {
		h.writeAudio(w, result)
		return
	}

	resp := chat.TurnResponse{
		Text:        result.Text,
		DMInsight:   result.Insight,
		VoiceDenied: result.VoiceDenied,
	}
	if result.InventoryChanged {
		resp.Inventory = result.Inventory
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *TurnHandler) writeTurnError(w http.ResponseWriter, err error) {
	var vErr *engine.ValidationError
	var aErr *engine.AdmissionError
	var uErr *engine.UpstreamError

	switch {
	case errors.As(err, &vErr):
		writeError(w, h.logger, http.StatusBadRequest, vErr.Message, engine.ReasonValidationFailed)
	case errors.As(err, &aErr):
		retryAfter := int(math.Ceil(aErr.RetryAfter.Seconds()))
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		writeJSON(w, h.logger, http.StatusTooManyRequests, chat.ErrorResponse{
			Error:             "Too many requests. Slow down and try again.",
			Reason:            aErr.Reason,
			RetryAfterSeconds: retryAfter,
		})
	case errors.As(err, &uErr):
		h.logger.Error("Turn failed upstream", "step", uErr.Step, "error", uErr.Err)
		writeError(w, h.logger, http.StatusBadGateway, msgUpstreamFailure, engine.ReasonUpstreamFailure)
	default:
		h.logger.Error("Turn failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, msgUpstreamFailure, engine.ReasonUpstreamFailure)
	}
}

// writeAudio streams the synthesized reply. The textual fields travel as
// URL-escaped headers so a single response carries both the mp3 and the
// transcript.
func (h *TurnHandler) writeAudio(w http.ResponseWriter, result *engine.TurnResult) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("X-Npc-Text", url.QueryEscape(result.Text))
	w.Header().Set("X-Dm-Insight", url.QueryEscape(result.Insight))
	if result.InventoryChanged {
		inv, err := json.Marshal(result.Inventory)
		if err == nil {
			w.Header().Set("X-Npc-Inventory", url.QueryEscape(string(inv)))
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Audio); err != nil {
		h.logger.Error("Error writing audio response", "error", err)
	}
}
