package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/talekeeper/npc-agent/pkg/chat"
)

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg, reason string) {
	writeJSON(w, logger, status, chat.ErrorResponse{Error: msg, Reason: reason})
}
