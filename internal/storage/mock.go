package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talekeeper/npc-agent/pkg/character"
)

// MockStorage is an in-memory implementation of Storage for testing
type MockStorage struct {
	mu sync.Mutex

	characters map[uuid.UUID]*character.Character
	locks      []character.LoreLock
	memories   map[uuid.UUID][]character.Memory
	loreDocs   map[uuid.UUID]int64
	voiceUsage map[uuid.UUID]*VoiceUsage

	// Optional overrides
	PingFunc              func(ctx context.Context) error
	GetCharacterFunc      func(ctx context.Context, id uuid.UUID) (*character.Character, error)
	UpdateInventoryFunc   func(ctx context.Context, id uuid.UUID, expectedVersion int64, inventory []string) (*character.Character, error)
	ReserveVoiceCharsFunc func(ctx context.Context, userID uuid.UUID, chars int64, budget int64, now time.Time) (*VoiceUsage, error)
}

// NewMockStorage creates a new in-memory storage instance
func NewMockStorage() *MockStorage {
	return &MockStorage{
		characters: make(map[uuid.UUID]*character.Character),
		memories:   make(map[uuid.UUID][]character.Memory),
		loreDocs:   make(map[uuid.UUID]int64),
		voiceUsage: make(map[uuid.UUID]*VoiceUsage),
	}
}

func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
func (m *MockStorage) Close() error { return nil }

func (m *MockStorage) SaveCharacter(ctx context.Context, c *character.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.characters[c.ID] = &cp
	return nil
}

func (m *MockStorage) GetCharacter(ctx context.Context, id uuid.UUID) (*character.Character, error) {
	if m.GetCharacterFunc != nil {
		return m.GetCharacterFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.characters[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MockStorage) UpdateInventory(ctx context.Context, id uuid.UUID, expectedVersion int64, inventory []string) (*character.Character, error) {
	if m.UpdateInventoryFunc != nil {
		return m.UpdateInventoryFunc(ctx, id, expectedVersion, inventory)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.characters[id]
	if !ok {
		return nil, fmt.Errorf("character not found")
	}
	if c.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	c.Inventory = character.NormalizeInventory(inventory)
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (m *MockStorage) SaveLoreLock(ctx context.Context, lock *character.LoreLock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = append(m.locks, *lock)
	return nil
}

func (m *MockStorage) ListLoreLocks(ctx context.Context, userID, campaignID uuid.UUID) ([]character.LoreLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []character.LoreLock
	for _, l := range m.locks {
		if l.CampaignScoped() && l.UserID == userID && l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MockStorage) ListCharacterLocks(ctx context.Context, userID, characterID uuid.UUID) ([]character.LoreLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []character.LoreLock
	for _, l := range m.locks {
		if !l.CampaignScoped() && l.UserID == userID && *l.CharacterID == characterID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MockStorage) SaveMemory(ctx context.Context, mem *character.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memories[mem.CharacterID] = append(m.memories[mem.CharacterID], *mem)
	return nil
}

func (m *MockStorage) ListMemories(ctx context.Context, characterID uuid.UUID) ([]character.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]character.Memory(nil), m.memories[characterID]...), nil
}

func (m *MockStorage) CountMemories(ctx context.Context, characterID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.memories[characterID])), nil
}

func (m *MockStorage) LoreDocCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loreDocs[userID], nil
}

func (m *MockStorage) IncrLoreDocCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loreDocs[userID]++
	return m.loreDocs[userID], nil
}

func (m *MockStorage) ReserveVoiceChars(ctx context.Context, userID uuid.UUID, chars int64, budget int64, now time.Time) (*VoiceUsage, error) {
	if m.ReserveVoiceCharsFunc != nil {
		return m.ReserveVoiceCharsFunc(ctx, userID, chars, budget, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	usage, ok := m.voiceUsage[userID]
	if !ok || !usage.SamePeriod(now) {
		usage = freshVoiceUsage(now)
	}
	if usage.CharsUsed+chars > budget {
		return nil, ErrVoiceBudgetExceeded
	}
	usage.CharsUsed += chars
	m.voiceUsage[userID] = usage
	cp := *usage
	return &cp, nil
}

func (m *MockStorage) VoiceUsage(ctx context.Context, userID uuid.UUID, now time.Time) (*VoiceUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	usage, ok := m.voiceUsage[userID]
	if !ok || !usage.SamePeriod(now) {
		return freshVoiceUsage(now), nil
	}
	cp := *usage
	return &cp, nil
}
