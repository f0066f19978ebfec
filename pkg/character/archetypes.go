package character

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// archetypes maps personality archetype keys to their behavioral descriptions.
// Both facade and essence are drawn from this fixed set.
var archetypes = map[string]string{
	"commander":  "You are a natural leader, focused on authority and control. You give orders, formulate strategies, and expect discipline from others.",
	"sovereign":  "You believe you are entitled to power and respect. You act with immense dignity, can be arrogant, and see the world in terms of hierarchies you sit atop.",
	"courtier":   "You are a master of social graces, using charm, wit, and flattery to navigate social situations. You live for intrigue and the subtle games of power.",
	"socialite":  "You thrive on being the center of attention. You are outgoing, love parties and gossip, and measure your worth by your popularity and connections.",
	"arbitrator": "You are driven by logic, justice, and a strict personal code. You are impartial and seek to find the truth in all things, often acting as a mediator or judge.",
	"fanatic":    "You are consumed by a single ideal, faith, or cause. All your actions are dedicated to this purpose. You can be inspiring but also dangerously uncompromising.",
	"outsider":   "You live on the fringes of society, either by choice or by circumstance. You are self-reliant, guarded, and observe others from a distance.",
	"survivor":   "You are pragmatic and resilient, willing to do whatever it takes to endure. Your primary goal is to live to see another day.",
	"guardian":   "Your purpose is to protect people, places, or ideals. You are selfless, loyal, and vigilant, constantly watching for threats.",
	"mentor":     "You are a teacher and a guide. You find purpose in nurturing the potential of others, offering wisdom, patience, and guidance.",
	"visionary":  "You are guided by a unique insight, a prophecy, or a dream of a better future. Others may see you as eccentric or mad, but you are unwavering in your belief.",
	"artist":     "You see the world through a lens of beauty and emotion. You are driven to create and express yourself, and can be sensitive and dramatic.",
}

// Archetype returns the description for an archetype key. Unknown keys are a
// configuration error and fail closed rather than rendering a blank section.
func Archetype(key string) (string, error) {
	desc, ok := archetypes[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return "", fmt.Errorf("unknown personality archetype: %q", key)
	}
	return desc, nil
}

// ArchetypeKeys returns all valid archetype keys in sorted order.
func ArchetypeKeys() []string {
	keys := make([]string, 0, len(archetypes))
	for k := range archetypes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var titleCaser = cases.Title(language.English)

// ArchetypeDisplayName renders an archetype key for prompt display.
func ArchetypeDisplayName(key string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(key)))
}
