package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/chat"
)

// Builder composes the per-turn instruction payload using a fluent
// interface. Section order is fixed; sections whose source data is absent
// are omitted entirely. Later sections are lower priority and would be the
// first truncation candidates if a payload ceiling were ever imposed.
type Builder struct {
	char           *character.Character
	fragments      []character.KnowledgeFragment
	inventory      []string
	memories       []character.Memory
	campaignLocks  []character.LoreLock
	characterLocks []character.LoreLock
}

// New creates a new payload builder.
func New() *Builder {
	return &Builder{}
}

// WithCharacter sets the character whose identity, personality and
// directives anchor the payload.
func (b *Builder) WithCharacter(c *character.Character) *Builder {
	b.char = c
	return b
}

// WithFragments sets ranked knowledge fragments for the current question.
func (b *Builder) WithFragments(fragments []character.KnowledgeFragment) *Builder {
	b.fragments = fragments
	return b
}

// WithInventory overrides the inventory section source (normally the
// character's own inventory, but aggregation may supply a fresher copy).
func (b *Builder) WithInventory(items []string) *Builder {
	b.inventory = items
	return b
}

// WithMemories sets the character's memories, oldest first.
func (b *Builder) WithMemories(memories []character.Memory) *Builder {
	b.memories = memories
	return b
}

// WithLocks sets campaign-scoped and character-scoped lore locks. Campaign
// locks are always rendered before character locks.
func (b *Builder) WithLocks(campaign, char []character.LoreLock) *Builder {
	b.campaignLocks = campaign
	b.characterLocks = char
	return b
}

// Build renders the full instruction payload.
func (b *Builder) Build() (string, error) {
	if b.char == nil {
		return "", fmt.Errorf("character is required")
	}

	facadeDesc, err := character.Archetype(b.char.Facade)
	if err != nil {
		return "", fmt.Errorf("facade: %w", err)
	}
	essenceDesc, err := character.Archetype(b.char.Essence)
	if err != nil {
		return "", fmt.Errorf("essence: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(BasePrompt)

	// 1. Character core identity. Always present.
	sb.WriteString("\n\n" + HeaderCharacterCore + "\n")
	fmt.Fprintf(&sb, "-   **Name:** %s\n", b.char.Name)
	fmt.Fprintf(&sb, "-   **Race:** %s\n", b.char.Race)
	fmt.Fprintf(&sb, "-   **History:** %s\n", b.char.History)
	fmt.Fprintf(&sb, "-   **Your World (Absolute Truth):** Your entire reality is defined by this context: %q", b.char.WorldContext)

	// 2. Knowledge, descending relevance.
	if len(b.fragments) > 0 {
		ranked := append([]character.KnowledgeFragment(nil), b.fragments...)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Similarity > ranked[j].Similarity
		})
		sb.WriteString("\n\n" + HeaderKnowledge + "\n" + KnowledgeLead)
		for _, f := range ranked {
			sb.WriteString("\n- " + f.Content)
		}
	}

	// 3. Inventory, storage order preserved.
	inventory := b.inventory
	if inventory == nil {
		inventory = b.char.Inventory
	}
	if len(inventory) > 0 {
		sb.WriteString("\n\n" + HeaderInventory + "\n" + InventoryLead)
		for _, item := range inventory {
			sb.WriteString("\n- " + item)
		}
	}

	// 4. Past memories, oldest first.
	if len(b.memories) > 0 {
		sb.WriteString("\n\n" + HeaderMemories + "\n" + MemoriesLead)
		for _, m := range b.memories {
			sb.WriteString("\n- " + m.Content)
		}
	}

	// 5. Lore locks, campaign-scoped before character-scoped.
	if len(b.campaignLocks) > 0 || len(b.characterLocks) > 0 {
		sb.WriteString("\n\n" + HeaderLoreLocks + "\n" + LoreLocksLead)
		for _, l := range b.campaignLocks {
			sb.WriteString("\n- " + l.Content)
		}
		for _, l := range b.characterLocks {
			sb.WriteString("\n- " + l.Content)
		}
	}

	// 6. Personality engine. Always present; unknown archetypes already
	// failed closed above.
	sb.WriteString("\n\n" + HeaderPersonality + "\n")
	fmt.Fprintf(&sb, "-   **YOUR FACADE (SOCIAL MASK):** This is how you MUST act and speak publicly. Your Facade is **%s**: %q\n",
		character.ArchetypeDisplayName(b.char.Facade), facadeDesc)
	fmt.Fprintf(&sb, "-   **YOUR ESSENCE (TRUE SELF):** This is your hidden inner nature. It MUST subtly influence your word choice and the subtext of your speech. Your Essence is **%s**: %q",
		character.ArchetypeDisplayName(b.char.Essence), essenceDesc)

	// 7. Actionable directives. Always present.
	sb.WriteString("\n\n" + HeaderDirectives + "\n")
	fmt.Fprintf(&sb, "-   **YOUR ULTIMATE GOAL:** Your absolute primary motivation is: %q. You will pursue this goal above all else.\n", b.char.Goals)
	sb.WriteString("-   **YOUR KNOWLEDGE & SECRETS (Suspicion Protocol):**\n")
	fmt.Fprintf(&sb, "    -   You can share your **Common Knowledge** (%q).\n", b.char.CommonKnowledge)
	fmt.Fprintf(&sb, "    -   You must protect your **Guarded Secrets** (%q). When asked about them, your first response MUST be to deny, evade, or lie. Maintain your facade. Reveal them ONLY if the user is extremely persuasive or if revealing them serves your ULTIMATE GOAL.\n", b.char.GuardedSecrets)
	sb.WriteString("    -   **Important items in your inventory are also considered Guarded Secrets.**")

	// 8. Inventory-mutation protocol. Static.
	sb.WriteString("\n\n" + HeaderProtocol + "\n" + ProtocolSection)

	// 9. Conduct rules. Static.
	sb.WriteString("\n\n" + HeaderConduct + "\n" + ConductSection)

	return sb.String(), nil
}

// BuildMessages composes the full message list for the primary generation
// call: instruction payload, windowed history, then the user's question.
func BuildMessages(c *character.Character, b *Builder, history []chat.ChatMessage, question string, historyLimit int) ([]chat.ChatMessage, error) {
	payload, err := b.WithCharacter(c).Build()
	if err != nil {
		return nil, err
	}

	messages := make([]chat.ChatMessage, 0, len(history)+2)
	messages = append(messages, chat.ChatMessage{Role: chat.ChatRoleSystem, Content: payload})
	messages = append(messages, chat.WindowHistory(history, historyLimit)...)
	messages = append(messages, chat.ChatMessage{Role: chat.ChatRoleUser, Content: question})
	return messages, nil
}

// InsightMessages composes the message list for the director's-insight
// call. It deliberately uses only the reply, the goal and the essence, not
// the full instruction payload.
func InsightMessages(c *character.Character, reply string) []chat.ChatMessage {
	content := fmt.Sprintf(InsightPrompt, c.Name, c.Goals, c.Essence, reply)
	return []chat.ChatMessage{{Role: chat.ChatRoleSystem, Content: content}}
}
