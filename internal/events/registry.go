package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// game definitions
	"game.created":  {},
	"game.read":     {},
	"game.deleted":  {},
	"game.imported": {},

	// player accounts
	"player.created":       {},
	"player.authenticated": {},
	"player.deleted":       {},

	// playthrough
	"player.joined":       {},
	"player.left":         {},
	"player.moved":        {},
	"player.illegal_move": {},
	"player.finished":     {},

	// dialog
	"interaction.unlocked": {},
	"interaction.answered": {},

	// instances
	"instance.saved":  {},
	"instance.loaded": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate returns an error for event names outside the registry.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
