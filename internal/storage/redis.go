package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/talekeeper/npc-agent/pkg/character"
)

const (
	characterKeyPrefix     = "character:"
	campaignLocksKeyPrefix = "locks:campaign:"
	charLocksKeyPrefix     = "locks:character:"
	memoriesKeyPrefix      = "memories:"
	loreDocsKeyPrefix      = "loredocs:"
	voiceUsageKeyPrefix    = "voiceusage:"

	maxTxRetries = 3
)

// RedisStorage implements Storage using Redis
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &RedisStorage{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// NewRedisStorageWithClient wraps an existing client (used in tests).
func NewRedisStorageWithClient(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{client: client, logger: logger}
}

// Ping checks Redis connectivity
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func characterKey(id uuid.UUID) string {
	return characterKeyPrefix + id.String()
}

// SaveCharacter persists a character profile
func (r *RedisStorage) SaveCharacter(ctx context.Context, c *character.Character) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal character: %w", err)
	}
	if err := r.client.Set(ctx, characterKey(c.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save character: %w", err)
	}
	return nil
}

// GetCharacter retrieves a character by ID, returning nil if not found
func (r *RedisStorage) GetCharacter(ctx context.Context, id uuid.UUID) (*character.Character, error) {
	data, err := r.client.Get(ctx, characterKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}

	var c character.Character
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal character: %w", err)
	}
	return &c, nil
}

// UpdateInventory replaces a character's inventory under optimistic
// concurrency control. The write commits only if the stored version still
// equals expectedVersion and no concurrent write touched the key.
func (r *RedisStorage) UpdateInventory(ctx context.Context, id uuid.UUID, expectedVersion int64, inventory []string) (*character.Character, error) {
	key := characterKey(id)
	var updated *character.Character

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return fmt.Errorf("character not found")
		}
		if err != nil {
			return fmt.Errorf("failed to get character: %w", err)
		}

		var c character.Character
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return fmt.Errorf("failed to unmarshal character: %w", err)
		}
		if c.Version != expectedVersion {
			return ErrVersionConflict
		}

		c.Inventory = character.NormalizeInventory(inventory)
		c.Version++
		c.UpdatedAt = time.Now().UTC()

		newData, err := json.Marshal(&c)
		if err != nil {
			return fmt.Errorf("failed to marshal character: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &c
		return nil
	}, key)

	if err == redis.TxFailedErr {
		// A concurrent write bumped the version under us.
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SaveLoreLock persists a lore lock in its campaign or character scope
func (r *RedisStorage) SaveLoreLock(ctx context.Context, lock *character.LoreLock) error {
	data, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to marshal lore lock: %w", err)
	}

	key := campaignLocksKeyPrefix + lock.CampaignID.String()
	if !lock.CampaignScoped() {
		key = charLocksKeyPrefix + lock.CharacterID.String()
	}
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to save lore lock: %w", err)
	}
	return nil
}

func (r *RedisStorage) listLocks(ctx context.Context, key string, userID uuid.UUID) ([]character.LoreLock, error) {
	items, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list lore locks: %w", err)
	}

	locks := make([]character.LoreLock, 0, len(items))
	for _, item := range items {
		var lock character.LoreLock
		if err := json.Unmarshal([]byte(item), &lock); err != nil {
			r.logger.Warn("Skipping malformed lore lock entry", "key", key, "error", err)
			continue
		}
		if lock.UserID != userID {
			continue
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

// ListLoreLocks returns the campaign-wide locks for a campaign, oldest first
func (r *RedisStorage) ListLoreLocks(ctx context.Context, userID, campaignID uuid.UUID) ([]character.LoreLock, error) {
	return r.listLocks(ctx, campaignLocksKeyPrefix+campaignID.String(), userID)
}

// ListCharacterLocks returns the locks bound to one character, oldest first
func (r *RedisStorage) ListCharacterLocks(ctx context.Context, userID, characterID uuid.UUID) ([]character.LoreLock, error) {
	return r.listLocks(ctx, charLocksKeyPrefix+characterID.String(), userID)
}

// SaveMemory appends a memory to a character's ledger
func (r *RedisStorage) SaveMemory(ctx context.Context, m *character.Memory) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}
	if err := r.client.RPush(ctx, memoriesKeyPrefix+m.CharacterID.String(), data).Err(); err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

// ListMemories returns a character's memories oldest first
func (r *RedisStorage) ListMemories(ctx context.Context, characterID uuid.UUID) ([]character.Memory, error) {
	items, err := r.client.LRange(ctx, memoriesKeyPrefix+characterID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}

	memories := make([]character.Memory, 0, len(items))
	for _, item := range items {
		var m character.Memory
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			r.logger.Warn("Skipping malformed memory entry", "character_id", characterID, "error", err)
			continue
		}
		memories = append(memories, m)
	}
	return memories, nil
}

// CountMemories returns the number of memories on a character's ledger
func (r *RedisStorage) CountMemories(ctx context.Context, characterID uuid.UUID) (int64, error) {
	n, err := r.client.LLen(ctx, memoriesKeyPrefix+characterID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

// LoreDocCount returns the number of lore documents a user has ingested
func (r *RedisStorage) LoreDocCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := r.client.Get(ctx, loreDocsKeyPrefix+userID.String()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get lore doc count: %w", err)
	}
	return n, nil
}

// IncrLoreDocCount increments a user's lore document count
func (r *RedisStorage) IncrLoreDocCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := r.client.Incr(ctx, loreDocsKeyPrefix+userID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment lore doc count: %w", err)
	}
	return n, nil
}

// ReserveVoiceChars atomically adds chars to the user's monthly voice usage.
// The read, rollover check, budget check, and write happen under WATCH so
// concurrent reservations cannot oversubscribe the budget. A denial writes
// nothing.
func (r *RedisStorage) ReserveVoiceChars(ctx context.Context, userID uuid.UUID, chars int64, budget int64, now time.Time) (*VoiceUsage, error) {
	key := voiceUsageKeyPrefix + userID.String()
	var reserved *VoiceUsage

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			usage, err := readVoiceUsage(ctx, tx, key, now)
			if err != nil {
				return err
			}
			if usage.CharsUsed+chars > budget {
				return ErrVoiceBudgetExceeded
			}
			usage.CharsUsed += chars

			data, err := json.Marshal(usage)
			if err != nil {
				return fmt.Errorf("failed to marshal voice usage: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			if err != nil {
				return err
			}
			reserved = usage
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return reserved, nil
	}
	return nil, fmt.Errorf("voice reservation contended after %d attempts", maxTxRetries)
}

// VoiceUsage returns the user's current-period voice usage record
func (r *RedisStorage) VoiceUsage(ctx context.Context, userID uuid.UUID, now time.Time) (*VoiceUsage, error) {
	key := voiceUsageKeyPrefix + userID.String()
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return freshVoiceUsage(now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice usage: %w", err)
	}

	var usage VoiceUsage
	if err := json.Unmarshal([]byte(data), &usage); err != nil {
		return nil, fmt.Errorf("failed to unmarshal voice usage: %w", err)
	}
	if !usage.SamePeriod(now) {
		return freshVoiceUsage(now), nil
	}
	return &usage, nil
}

func freshVoiceUsage(now time.Time) *VoiceUsage {
	return &VoiceUsage{
		CharsUsed:   0,
		PeriodYear:  now.UTC().Year(),
		PeriodMonth: int(now.UTC().Month()),
	}
}

func readVoiceUsage(ctx context.Context, tx *redis.Tx, key string, now time.Time) (*VoiceUsage, error) {
	data, err := tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return freshVoiceUsage(now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice usage: %w", err)
	}

	var usage VoiceUsage
	if err := json.Unmarshal([]byte(data), &usage); err != nil {
		return nil, fmt.Errorf("failed to unmarshal voice usage: %w", err)
	}
	if !usage.SamePeriod(now) {
		// Calendar month changed since the last reservation.
		return freshVoiceUsage(now), nil
	}
	return &usage, nil
}
