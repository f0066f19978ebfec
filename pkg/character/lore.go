package character

import (
	"time"

	"github.com/google/uuid"
)

// LoreLock is an immutable-truth statement the character must never
// contradict. A lock with no CharacterID applies to every character in its
// campaign; otherwise it binds one character only.
type LoreLock struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	CampaignID  uuid.UUID  `json:"campaign_id"`
	CharacterID *uuid.UUID `json:"character_id,omitempty"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CampaignScoped reports whether the lock applies campaign-wide.
func (l LoreLock) CampaignScoped() bool {
	return l.CharacterID == nil
}

// Memory is a timestamped fact one character remembers about the player,
// produced by a separate summarization flow and included oldest-first in
// prompts.
type Memory struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	CampaignID  uuid.UUID `json:"campaign_id"`
	CharacterID uuid.UUID `json:"character_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// KnowledgeFragment is a ranked snippet of character-specific document text
// returned by similarity search for the current question.
type KnowledgeFragment struct {
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}
