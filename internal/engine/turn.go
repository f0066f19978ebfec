// Package engine orchestrates a complete interaction turn: admission,
// knowledge gathering, generation, command execution, and speech synthesis.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/talekeeper/npc-agent/internal/knowledge"
	"github.com/talekeeper/npc-agent/internal/quota"
	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/chat"
	"github.com/talekeeper/npc-agent/pkg/command"
	"github.com/talekeeper/npc-agent/pkg/prompts"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

// TurnResult is the outcome of a successful turn. A turn can succeed while
// degrading: a missing insight or a denied voice reservation still yields the
// character's reply.
type TurnResult struct {
	Text             string
	Insight          string
	Inventory        []string
	InventoryChanged bool
	Audio            []byte
	VoiceDenied      string // reason, empty when audio was produced or not requested
}

// Engine runs interaction turns.
type Engine struct {
	store        storage.Storage
	governor     *quota.Governor
	aggregator   *knowledge.Aggregator
	llm          services.LLMService
	tts          services.TTSService
	historyLimit int
	logger       *slog.Logger
}

// NewEngine creates a new turn engine
func NewEngine(store storage.Storage, governor *quota.Governor, aggregator *knowledge.Aggregator, llm services.LLMService, tts services.TTSService, historyLimit int, logger *slog.Logger) *Engine {
	return &Engine{
		store:        store,
		governor:     governor,
		aggregator:   aggregator,
		llm:          llm,
		tts:          tts,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Run executes one turn for an authenticated user. Terminal failures return
// AdmissionError, ValidationError or UpstreamError; degraded enrichment is
// reported inside the result instead.
func (e *Engine) Run(ctx context.Context, user *services.UserProfile, req *chat.TurnRequest) (*TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	decision := e.governor.Admit(ctx, user.ID, user.Tier, tier.RouteTurn)
	if !decision.Allowed {
		return nil, &AdmissionError{Reason: ReasonRateLimited, RetryAfter: decision.RetryAfter}
	}

	c, err := e.store.GetCharacter(ctx, req.CharacterID)
	if err != nil {
		return nil, &UpstreamError{Step: "character lookup", Err: err}
	}
	if c == nil || c.UserID != user.ID {
		// Another user's character looks identical to a missing one.
		return nil, &ValidationError{Message: "character not found"}
	}

	bundle := e.aggregator.Gather(ctx, c, req.Question)

	builder := prompts.New().
		WithFragments(bundle.Fragments).
		WithInventory(bundle.Inventory).
		WithMemories(bundle.Memories).
		WithLocks(bundle.CampaignLocks, bundle.CharacterLocks)

	messages, err := prompts.BuildMessages(c, builder, req.History, req.Question, e.historyLimit)
	if err != nil {
		return nil, &UpstreamError{Step: "context assembly", Err: err}
	}

	raw, err := e.llm.Chat(ctx, messages)
	if err != nil {
		return nil, &UpstreamError{Step: "generation", Err: err}
	}

	display, directive := command.Extract(raw)

	result := &TurnResult{
		Text:      display,
		Inventory: c.Inventory,
	}

	// The insight is enrichment: its failure never costs the player the
	// reply they already earned.
	insight, err := e.llm.Insight(ctx, prompts.InsightMessages(c, display))
	if err != nil {
		e.logger.Warn("Insight generation failed, continuing without it",
			"character_id", c.ID, "error", err)
	} else {
		result.Insight = insight
	}

	if directive.Present() {
		result.Inventory, result.InventoryChanged = e.applyDirective(ctx, c, directive)
	}

	if req.AudioEnabled {
		result.Audio, result.VoiceDenied = e.synthesize(ctx, user, c, display)
	}

	return result, nil
}

// applyDirective executes an inventory command under optimistic concurrency,
// retrying once against a fresh copy on conflict. A write that cannot land is
// treated as if the command never happened.
func (e *Engine) applyDirective(ctx context.Context, c *character.Character, d command.Directive) ([]string, bool) {
	next, changed := d.Apply(c.Inventory)
	if !changed {
		return c.Inventory, false
	}

	updated, err := e.store.UpdateInventory(ctx, c.ID, c.Version, next)
	if errors.Is(err, storage.ErrVersionConflict) {
		fresh, ferr := e.store.GetCharacter(ctx, c.ID)
		if ferr != nil || fresh == nil {
			e.logger.Warn("Inventory refetch after conflict failed, dropping command",
				"character_id", c.ID, "error", ferr)
			return c.Inventory, false
		}
		next, changed = d.Apply(fresh.Inventory)
		if !changed {
			return fresh.Inventory, false
		}
		updated, err = e.store.UpdateInventory(ctx, fresh.ID, fresh.Version, next)
	}
	if err != nil {
		e.logger.Warn("Inventory update failed, dropping command",
			"character_id", c.ID, "action", d.Action, "item", d.Item, "error", err)
		return c.Inventory, false
	}

	e.logger.Info("Inventory updated",
		"character_id", c.ID, "action", d.Action, "item", d.Item)
	return updated.Inventory, true
}

// synthesize reserves voice budget and renders the reply as audio. Any denial
// or failure degrades the turn to text-only with a reason; a reservation is
// never refunded on synthesis failure.
func (e *Engine) synthesize(ctx context.Context, user *services.UserProfile, c *character.Character, text string) ([]byte, string) {
	if c.VoiceID == "" {
		return nil, ReasonVoiceUnavailable
	}

	chars := int64(utf8.RuneCountInString(text))
	if _, err := e.governor.ReserveVoiceBudget(ctx, user.ID, user.Tier, chars); err != nil {
		switch {
		case errors.Is(err, quota.ErrPremiumFeatureRequired):
			return nil, ReasonPremiumFeatureRequired
		case errors.Is(err, storage.ErrVoiceBudgetExceeded):
			return nil, ReasonVoiceBudgetExceeded
		default:
			e.logger.Warn("Voice reservation failed, degrading to text",
				"user_id", user.ID, "error", err)
			return nil, ReasonUpstreamFailure
		}
	}

	audio, err := e.tts.Synthesize(ctx, text, c.VoiceID)
	if err != nil {
		e.logger.Warn("Speech synthesis failed, degrading to text",
			"character_id", c.ID, "error", err)
		return nil, ReasonUpstreamFailure
	}
	return audio, ""
}
