package chat

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	ChatRoleUser   = "user"      // The player
	ChatRoleAgent  = "assistant" // The NPC
	ChatRoleSystem = "system"    // Instruction payload
)

// ChatMessage represents a single chat message in the conversation,
// structured the way OpenAI-compatible chat APIs expect.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// TurnRequest is one question from the player to a character.
type TurnRequest struct {
	CharacterID  uuid.UUID     `json:"character_id"`
	Question     string        `json:"question"`
	History      []ChatMessage `json:"history,omitempty"`
	AudioEnabled bool          `json:"audio_enabled"`
}

func (tr *TurnRequest) Validate() error {
	if tr.CharacterID == uuid.Nil {
		return fmt.Errorf("character_id is required")
	}
	if tr.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	for i, m := range tr.History {
		switch m.Role {
		case ChatRoleUser, ChatRoleAgent:
		default:
			return fmt.Errorf("history[%d]: invalid role %q", i, m.Role)
		}
	}
	return nil
}

// TurnResponse is the JSON envelope for a text-only turn. When audio is
// produced the same fields travel as X-Npc-* headers alongside the mp3 body.
type TurnResponse struct {
	Text        string   `json:"text"`
	DMInsight   string   `json:"dm_insight,omitempty"`
	Inventory   []string `json:"inventory,omitempty"` // present only when the turn changed it
	VoiceDenied string   `json:"voice_denied,omitempty"`
}

// ErrorResponse is returned for any terminal turn failure or denial.
type ErrorResponse struct {
	Error             string `json:"error"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// WindowHistory returns at most the last limit messages.
func WindowHistory(history []ChatMessage, limit int) []ChatMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
