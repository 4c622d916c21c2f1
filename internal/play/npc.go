package play

import (
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/game"
)

// DialogStep is one entry of an NPC dialog cursor.
type DialogStep struct {
	At          time.Time
	Interaction *game.Interaction
}

// NpcState tracks, per player, how far a conversation with one NPC has
// progressed.
type NpcState struct {
	NPC *game.NonPlayableCharacter

	paths    map[uuid.UUID][]DialogStep
	instance *GameInstance
}

func newNpcState(gi *GameInstance, npc *game.NonPlayableCharacter) *NpcState {
	return &NpcState{
		NPC:      npc,
		paths:    make(map[uuid.UUID][]DialogStep),
		instance: gi,
	}
}

// AddPlayer starts (or restarts) the conversation for ps at the dialog
// start.
func (n *NpcState) AddPlayer(ps *PlayerState) {
	n.paths[ps.ID] = []DialogStep{{At: n.instance.Now(), Interaction: n.NPC.Dialog.Start()}}
}

// RemovePlayer drops the cursor of ps.
func (n *NpcState) RemovePlayer(ps *PlayerState) {
	delete(n.paths, ps.ID)
}

// SetPlayerDialog replaces the cursor of a player state. Used when restoring
// a saved instance.
func (n *NpcState) SetPlayerDialog(stateID uuid.UUID, steps []DialogStep) {
	n.paths[stateID] = steps
}

// PlayerDialog returns the cursor of ps, oldest first.
func (n *NpcState) PlayerDialog(ps *PlayerState) []DialogStep {
	return n.paths[ps.ID]
}

// Players returns the ids of every player state with a cursor.
func (n *NpcState) Players() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(n.paths))
	for id := range n.paths {
		out = append(out, id)
	}
	return out
}

// Reached reports whether the conversation with ps has passed through the
// interaction.
func (n *NpcState) Reached(ps *PlayerState, interaction uuid.UUID) bool {
	for _, step := range n.paths[ps.ID] {
		if step.Interaction != nil && step.Interaction.ID == interaction {
			return true
		}
	}
	return false
}

// AvailableInteraction returns the first follow up of the player's current
// interaction that is scoped to the player's waypoint, whose gates hold
// (time measured from the current interaction) and whose task, if any, the
// answer solves. It returns nil when none qualifies.
func (n *NpcState) AvailableInteraction(ps *PlayerState, answer any) (*game.Interaction, error) {
	steps := n.paths[ps.ID]
	if len(steps) == 0 {
		return nil, &PlayerStateError{Player: ps.Name(), Msg: "no dialog with " + n.NPC.FullName(), Err: ErrNotJoined}
	}
	last := steps[len(steps)-1]
	if last.Interaction == nil {
		return nil, &PlayerStateError{Player: ps.Name(), Msg: "dialog position with " + n.NPC.FullName(), Err: ErrPosition}
	}
	current, ok := n.NPC.Dialog.Interaction(last.Interaction.ID)
	if !ok {
		return nil, &PlayerStateError{Player: ps.Name(), Msg: "dialog position with " + n.NPC.FullName(), Err: ErrPosition}
	}
	here := ps.CurrentPosition()
	if here == nil {
		return nil, &PlayerStateError{Player: ps.Name(), Msg: "empty path", Err: ErrPosition}
	}

	now := n.instance.Now()
	for _, next := range current.Successors() {
		if !next.AvailableAt(here.ID) {
			continue
		}
		if !gateOpen(next.TimeLimit, next.MoneyLimit, last.At, now, ps.Budget) {
			continue
		}
		if next.Task != nil {
			solved, err := n.instance.solver.Solve(next.Task, answer)
			if err != nil {
				return nil, err
			}
			if !solved {
				continue
			}
		}
		return next, nil
	}
	return nil, nil
}

// UpdatePlayerDialog advances the conversation of ps to chosen, which must
// be the interaction currently available for the response. The player
// receives the interaction's items and, when the response solves its task,
// the task's items; the response is recorded in the player's transcript.
func (n *NpcState) UpdatePlayerDialog(ps *PlayerState, chosen *game.Interaction, response any) error {
	available, err := n.AvailableInteraction(ps, response)
	if err != nil {
		return err
	}
	if chosen == nil || available == nil || available.ID != chosen.ID {
		to := "<nil>"
		if chosen != nil {
			to = chosen.String()
		}
		from := n.paths[ps.ID][len(n.paths[ps.ID])-1].Interaction.String()
		return &PlayerIllegalMoveError{Player: ps.Name(), From: from, To: to}
	}

	now := n.instance.Now()
	n.paths[ps.ID] = append(n.paths[ps.ID], DialogStep{At: now, Interaction: available})
	for _, item := range available.Items {
		ps.addStuff(available.ID, item, now)
	}
	if t := available.Task; t != nil {
		solved, err := n.instance.solver.Solve(t, response)
		if err != nil {
			return err
		}
		if solved {
			for _, item := range t.Items {
				ps.addStuff(t.ID, item, now)
			}
		}
	}
	ps.addDialogResponse(n.NPC.FullName(), available, response, now)

	events.Emit("info", "interaction.answered", "", map[string]interface{}{
		"state":       ps.ID.String(),
		"npc":         n.NPC.FullName(),
		"interaction": available.ID.String(),
	})
	return nil
}
