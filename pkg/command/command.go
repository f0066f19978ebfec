// Package command implements the embedded inventory-mutation protocol.
// Generated text may end with at most one command tag of the form
//
//	[INVENTORY_UPDATE: ADD "healing potion"]
//	[INVENTORY_UPDATE: REMOVE "silver locket"]
//
// The tag is parsed into a Directive before any mutation logic runs, and is
// always stripped from user-visible text.
package command

import (
	"regexp"
	"strings"

	"github.com/talekeeper/npc-agent/pkg/character"
)

type Action string

const (
	ActionNone   Action = ""
	ActionAdd    Action = "ADD"
	ActionRemove Action = "REMOVE"
)

// Directive is the parsed form of an embedded command.
type Directive struct {
	Action Action
	Item   string
}

// Present reports whether a command tag was found at all.
func (d Directive) Present() bool {
	return d.Action != ActionNone
}

var tagPattern = regexp.MustCompile(`(?i)\[INVENTORY_UPDATE:\s*(ADD|REMOVE)\s*"([^"]+)"\]`)

// Extract scans raw generated text for the first command tag. It returns the
// display text with the tag removed and surrounding whitespace trimmed, plus
// the parsed directive. Only the first tag instance is honored; any further
// instances are left untouched in the display text.
func Extract(raw string) (string, Directive) {
	loc := tagPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return raw, Directive{}
	}

	action := Action(strings.ToUpper(raw[loc[2]:loc[3]]))
	item := strings.TrimSpace(raw[loc[4]:loc[5]])
	display := strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])

	return display, Directive{Action: action, Item: item}
}

// Apply evaluates the directive against an inventory and returns the new
// inventory plus whether it differs from the input. The input slice is never
// modified. ADD of an already-present item and REMOVE of an absent item are
// no-ops.
func (d Directive) Apply(inventory []string) ([]string, bool) {
	switch d.Action {
	case ActionAdd:
		next := character.AddItem(inventory, d.Item)
		return next, !character.EqualInventories(inventory, next)
	case ActionRemove:
		next := character.RemoveItem(inventory, d.Item)
		return next, !character.EqualInventories(inventory, next)
	default:
		return append([]string(nil), inventory...), false
	}
}
