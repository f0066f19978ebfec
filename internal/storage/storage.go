package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/talekeeper/npc-agent/pkg/character"
)

// ErrVersionConflict is returned when a conditional inventory write loses a
// race with a concurrent update. Callers may refetch and retry.
var ErrVersionConflict = errors.New("character version conflict")

// ErrVoiceBudgetExceeded is returned when a voice reservation would push the
// user's monthly character usage over their budget. Nothing is written.
var ErrVoiceBudgetExceeded = errors.New("voice budget exceeded")

// VoiceUsage tracks a user's speech-synthesis character consumption for one
// calendar month.
type VoiceUsage struct {
	CharsUsed   int64 `json:"chars_used"`
	PeriodYear  int   `json:"period_year"`
	PeriodMonth int   `json:"period_month"`
}

// SamePeriod reports whether the usage record belongs to the calendar month
// containing now.
func (u VoiceUsage) SamePeriod(now time.Time) bool {
	return u.PeriodYear == now.UTC().Year() && u.PeriodMonth == int(now.UTC().Month())
}

// Storage defines the persistence interface for characters, lore locks,
// memories, and usage accounting.
type Storage interface {
	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close closes the connection
	Close() error

	// SaveCharacter persists a character profile
	SaveCharacter(ctx context.Context, c *character.Character) error

	// GetCharacter retrieves a character by ID, returning nil if not found
	GetCharacter(ctx context.Context, id uuid.UUID) (*character.Character, error)

	// UpdateInventory replaces a character's inventory only if the stored
	// version still equals expectedVersion, returning the updated character
	// or ErrVersionConflict
	UpdateInventory(ctx context.Context, id uuid.UUID, expectedVersion int64, inventory []string) (*character.Character, error)

	// SaveLoreLock persists a lore lock in its campaign or character scope
	SaveLoreLock(ctx context.Context, lock *character.LoreLock) error

	// ListLoreLocks returns the campaign-wide locks for a campaign owned by
	// the given user, oldest first
	ListLoreLocks(ctx context.Context, userID, campaignID uuid.UUID) ([]character.LoreLock, error)

	// ListCharacterLocks returns the locks bound to one character owned by
	// the given user, oldest first
	ListCharacterLocks(ctx context.Context, userID, characterID uuid.UUID) ([]character.LoreLock, error)

	// SaveMemory appends a memory to a character's ledger
	SaveMemory(ctx context.Context, m *character.Memory) error

	// ListMemories returns a character's memories oldest first
	ListMemories(ctx context.Context, characterID uuid.UUID) ([]character.Memory, error)

	// CountMemories returns the number of memories on a character's ledger
	CountMemories(ctx context.Context, characterID uuid.UUID) (int64, error)

	// LoreDocCount returns the number of lore documents a user has ingested
	LoreDocCount(ctx context.Context, userID uuid.UUID) (int64, error)

	// IncrLoreDocCount increments a user's lore document count
	IncrLoreDocCount(ctx context.Context, userID uuid.UUID) (int64, error)

	// ReserveVoiceChars atomically adds chars to the user's monthly voice
	// usage if the result stays within budget, rolling the period over on a
	// calendar-month change. On ErrVoiceBudgetExceeded nothing is written.
	ReserveVoiceChars(ctx context.Context, userID uuid.UUID, chars int64, budget int64, now time.Time) (*VoiceUsage, error)

	// VoiceUsage returns the user's current voice usage record, zero-valued
	// for the current period if none exists
	VoiceUsage(ctx context.Context, userID uuid.UUID, now time.Time) (*VoiceUsage, error)
}
