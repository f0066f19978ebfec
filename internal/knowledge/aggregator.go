// Package knowledge gathers everything a character knows that is relevant to
// one turn: similarity-searched lore fragments, the live inventory, lore
// locks in both scopes, and the memory ledger.
package knowledge

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
)

// TopFragments is the number of lore fragments retrieved per turn.
const TopFragments = 3

// Searcher answers top-k lore similarity queries for one character.
type Searcher interface {
	Search(ctx context.Context, characterID uuid.UUID, question string, k int) ([]character.KnowledgeFragment, error)
}

// Bundle is the knowledge gathered for one turn. Any field may be empty; an
// enrichment source that fails leaves its field empty rather than failing the
// turn.
type Bundle struct {
	Fragments      []character.KnowledgeFragment
	Inventory      []string
	CampaignLocks  []character.LoreLock
	CharacterLocks []character.LoreLock
	Memories       []character.Memory
}

// Aggregator fans out to the knowledge sources in parallel and assembles the
// turn bundle.
type Aggregator struct {
	store    storage.Storage
	searcher Searcher
	logger   *slog.Logger
}

// NewAggregator creates a new knowledge aggregator
func NewAggregator(store storage.Storage, searcher Searcher, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		searcher: searcher,
		logger:   logger,
	}
}

// Gather collects the knowledge bundle for a turn. Every source is optional
// enrichment: a failure is logged and its section left empty, never an error.
// The inventory is taken from the already-loaded character rather than
// refetched.
func (a *Aggregator) Gather(ctx context.Context, c *character.Character, question string) *Bundle {
	bundle := &Bundle{
		Inventory: c.Inventory,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fragments, err := a.searcher.Search(gctx, c.ID, question, TopFragments)
		if err != nil {
			a.logger.Warn("Lore search failed, continuing without fragments",
				"character_id", c.ID, "error", err)
			return nil
		}
		bundle.Fragments = fragments
		return nil
	})

	g.Go(func() error {
		locks, err := a.store.ListLoreLocks(gctx, c.UserID, c.CampaignID)
		if err != nil {
			a.logger.Warn("Campaign lock fetch failed, continuing without locks",
				"campaign_id", c.CampaignID, "error", err)
			return nil
		}
		bundle.CampaignLocks = locks
		return nil
	})

	g.Go(func() error {
		locks, err := a.store.ListCharacterLocks(gctx, c.UserID, c.ID)
		if err != nil {
			a.logger.Warn("Character lock fetch failed, continuing without locks",
				"character_id", c.ID, "error", err)
			return nil
		}
		bundle.CharacterLocks = locks
		return nil
	})

	g.Go(func() error {
		memories, err := a.store.ListMemories(gctx, c.ID)
		if err != nil {
			a.logger.Warn("Memory fetch failed, continuing without memories",
				"character_id", c.ID, "error", err)
			return nil
		}
		bundle.Memories = memories
		return nil
	})

	// The goroutines swallow their own errors, so Wait only synchronizes.
	_ = g.Wait()

	return bundle
}
