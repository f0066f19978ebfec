// Package tier holds the process-wide subscription tier configuration: one
// immutable table mapping tier to request quotas, voice budget and content
// caps, with an explicit fallback entry for unknown tiers.
package tier

import (
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	Scribe       Tier = "scribe" // text-only tier; voice is a premium gate
	Explorer     Tier = "explorer"
	Narrator     Tier = "narrator"
	Worldbuilder Tier = "worldbuilder"

	// Fallback is applied to any tier not present in the table. It is
	// deliberately conservative: minimal request quotas and a zero voice
	// budget, never an unlimited default.
	Fallback Tier = "fallback"
)

type Route string

const (
	RouteTurn   Route = "turn"
	RouteMemory Route = "memory"
	RouteLore   Route = "lore"
)

// DefaultRouteQuota is the per-window request quota for routes missing from
// a tier's request map.
const DefaultRouteQuota = 5

// Limits describes everything a tier is entitled to.
type Limits struct {
	Requests           map[Route]int // per-route requests per window
	Window             time.Duration
	VoiceEnabled       bool  // false means voice is premium-gated for this tier
	VoiceCharsPerMonth int64 // monthly speech-synthesis character budget
	MemoryCap          int   // stored memories per character
	LoreDocCap         int   // lore documents per user
}

// RouteQuota returns the request quota for a route, falling back to
// DefaultRouteQuota for routes the table does not mention.
func (l Limits) RouteQuota(r Route) int {
	if q, ok := l.Requests[r]; ok {
		return q
	}
	return DefaultRouteQuota
}

// Table maps tiers to their limits. Immutable after startup.
type Table map[Tier]Limits

// Default returns the production tier table.
func Default() Table {
	return Table{
		Scribe: {
			Requests:     map[Route]int{RouteTurn: 10, RouteMemory: 5, RouteLore: 5},
			Window:       time.Minute,
			VoiceEnabled: false,
			MemoryCap:    5,
			LoreDocCap:   1,
		},
		Explorer: {
			Requests:           map[Route]int{RouteTurn: 10, RouteMemory: 5, RouteLore: 5},
			Window:             time.Minute,
			VoiceEnabled:       true,
			VoiceCharsPerMonth: 10000,
			MemoryCap:          5,
			LoreDocCap:         1,
		},
		Narrator: {
			Requests:           map[Route]int{RouteTurn: 30, RouteMemory: 15, RouteLore: 15},
			Window:             time.Minute,
			VoiceEnabled:       true,
			VoiceCharsPerMonth: 50000,
			MemoryCap:          25,
			LoreDocCap:         5,
		},
		Worldbuilder: {
			Requests:           map[Route]int{RouteTurn: 60, RouteMemory: 30, RouteLore: 30},
			Window:             time.Minute,
			VoiceEnabled:       true,
			VoiceCharsPerMonth: 250000,
			MemoryCap:          50,
			LoreDocCap:         10,
		},
		Fallback: {
			Requests:           map[Route]int{RouteTurn: 5, RouteMemory: 5, RouteLore: 5},
			Window:             time.Minute,
			VoiceEnabled:       true,
			VoiceCharsPerMonth: 0, // always exceeded
			MemoryCap:          5,
			LoreDocCap:         1,
		},
	}
}

// Lookup returns the limits for a tier, or the fallback entry when the tier
// is unknown.
func (t Table) Lookup(tr Tier) Limits {
	if l, ok := t[tr]; ok {
		return l
	}
	return t[Fallback]
}

// Validate checks the table once at startup. A missing fallback entry or a
// malformed entry is a configuration-loading failure, not a runtime surprise.
func (t Table) Validate() error {
	if _, ok := t[Fallback]; !ok {
		return fmt.Errorf("tier table is missing the fallback entry")
	}
	for name, l := range t {
		if l.Window <= 0 {
			return fmt.Errorf("tier %q: window must be positive", name)
		}
		if len(l.Requests) == 0 {
			return fmt.Errorf("tier %q: no route quotas defined", name)
		}
		for route, q := range l.Requests {
			if q <= 0 {
				return fmt.Errorf("tier %q: route %q quota must be positive", name, route)
			}
		}
		if l.VoiceCharsPerMonth < 0 {
			return fmt.Errorf("tier %q: negative voice budget", name)
		}
	}
	return nil
}

// Parse normalizes a stored subscription tier string. Unknown values are
// returned as-is and resolve to the fallback entry at lookup time.
func Parse(s string) Tier {
	return Tier(strings.ToLower(strings.TrimSpace(s)))
}
