package character

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Character is an AI-portrayed NPC. Identity, personality, directives and
// inventory all feed the instruction payload for each turn. Only the
// inventory is mutated by the turn pipeline; everything else is managed
// externally.
type Character struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	CampaignID uuid.UUID `json:"campaign_id"`

	Name         string `json:"name"`
	Race         string `json:"race"`
	History      string `json:"history"`
	WorldContext string `json:"world_context"`

	Facade  string `json:"facade"`  // public persona archetype key
	Essence string `json:"essence"` // hidden true-self archetype key

	Goals           string `json:"goals"`
	CommonKnowledge string `json:"common_knowledge"`
	GuardedSecrets  string `json:"guarded_secrets"`

	VoiceID string `json:"voice_id,omitempty"`

	// Inventory holds distinct item names, case-insensitive equality,
	// insertion order preserved.
	Inventory []string `json:"inventory"`

	// Version is bumped on every persisted mutation; inventory updates are
	// conditional on the expected version.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Character) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Race == "" {
		return fmt.Errorf("race is required")
	}
	if c.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if c.CampaignID == uuid.Nil {
		return fmt.Errorf("campaign_id is required")
	}
	if _, err := Archetype(c.Facade); err != nil {
		return fmt.Errorf("facade: %w", err)
	}
	if _, err := Archetype(c.Essence); err != nil {
		return fmt.Errorf("essence: %w", err)
	}
	return nil
}

// ContainsItem reports whether the inventory holds an item equal to name
// under case-insensitive comparison.
func ContainsItem(inventory []string, name string) bool {
	for _, item := range inventory {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}

// AddItem returns a copy of the inventory with name appended, unless an item
// case-insensitive-equal to name is already present (no-op).
func AddItem(inventory []string, name string) []string {
	out := append([]string(nil), inventory...)
	if ContainsItem(inventory, name) {
		return out
	}
	return append(out, name)
}

// RemoveItem returns a copy of the inventory with the first case-insensitive
// match of name removed. No match is a no-op.
func RemoveItem(inventory []string, name string) []string {
	out := make([]string, 0, len(inventory))
	removed := false
	for _, item := range inventory {
		if !removed && strings.EqualFold(item, name) {
			removed = true
			continue
		}
		out = append(out, item)
	}
	return out
}

// NormalizeInventory trims entries, drops empties, and removes
// case-insensitive duplicates while preserving first-seen order.
func NormalizeInventory(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || ContainsItem(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// EqualInventories reports whether two inventories are identical in order
// and exact spelling.
func EqualInventories(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
