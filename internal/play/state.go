package play

import (
	"iter"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/player"
)

// Step is one entry of a player's path.
type Step struct {
	At       time.Time
	Waypoint *game.Waypoint
}

// Holding is an inventory item and the id of the node that granted it.
type Holding struct {
	Source uuid.UUID
	Item   string
}

// Response is one transcript entry of a conversation with an NPC.
type Response struct {
	At          time.Time
	Interaction *game.Interaction
	Response    any
}

// PlayerState is a player's persona, position and resources in one
// instance.
type PlayerState struct {
	ID        uuid.UUID
	Player    *player.Player
	FirstName string
	LastName  string

	// Path is append-only: Path[0] is the game start, the last entry is the
	// current position.
	Path []Step

	Budget float64
	// Energy is nil when the game does not track energy.
	Energy *float64

	Inventory map[time.Time][]Holding
	// Dialogs is the transcript per NPC full name.
	Dialogs map[string][]Response

	instance *GameInstance
}

func newPlayerState(gi *GameInstance, p *player.Player, firstName, lastName string) *PlayerState {
	ps := &PlayerState{
		ID:        uuid.New(),
		Player:    p,
		FirstName: firstName,
		LastName:  lastName,
		Budget:    gi.InitialBudget,
		Inventory: make(map[time.Time][]Holding),
		Dialogs:   make(map[string][]Response),
		instance:  gi,
	}
	if gi.Game.Energy != nil {
		e := *gi.Game.Energy
		ps.Energy = &e
	}
	ps.Path = []Step{{At: gi.Now(), Waypoint: gi.Game.Start()}}
	return ps
}

// Instance returns the instance the state belongs to.
func (ps *PlayerState) Instance() *GameInstance {
	return ps.instance
}

// Name is the pseudonym of the player.
func (ps *PlayerState) Name() string {
	return ps.FirstName + " " + ps.LastName
}

// CurrentPosition returns the waypoint of the last path entry.
func (ps *PlayerState) CurrentPosition() *game.Waypoint {
	if len(ps.Path) == 0 {
		return nil
	}
	return ps.Path[len(ps.Path)-1].Waypoint
}

// current resolves the current position through the game arena.
func (ps *PlayerState) current() (*game.Waypoint, time.Time, error) {
	last := ps.CurrentPosition()
	if last == nil {
		return nil, time.Time{}, &PlayerStateError{Player: ps.Name(), Msg: "empty path", Err: ErrPosition}
	}
	w, ok := ps.instance.Game.Waypoint(last.ID)
	if !ok {
		return nil, time.Time{}, &PlayerStateError{
			Player: ps.Name(),
			Msg:    "could not determine current position in " + ps.instance.Game.Title,
			Err:    ErrPosition,
		}
	}
	return w, ps.Path[len(ps.Path)-1].At, nil
}

// AvailableMoves returns the waypoints the player may move to next, keyed
// by id. The answer is offered to every task of the current waypoint. The
// result is a set: callers must not rely on any order.
func (ps *PlayerState) AvailableMoves(answer any) (map[uuid.UUID]*game.Waypoint, error) {
	current, since, err := ps.current()
	if err != nil {
		return nil, err
	}
	g := ps.instance.Game
	now := ps.instance.Now()
	moves := make(map[uuid.UUID]*game.Waypoint)
	covered := make(map[uuid.UUID]struct{})

	offer := func(dest uuid.UUID) {
		w, ok := g.Waypoint(dest)
		if !ok || !ps.canAfford(current.ID, dest) {
			return
		}
		if _, ok := g.Edge(current.ID, dest); !ok {
			return
		}
		moves[dest] = w
	}

	for _, t := range current.Tasks {
		if !t.HasDestination() {
			continue
		}
		covered[t.Destination] = struct{}{}
		if !gateOpen(t.TimeLimit, t.MoneyLimit, since, now, ps.Budget) {
			continue
		}
		solved, err := ps.instance.solver.Solve(t, answer)
		if err != nil {
			return nil, err
		}
		if solved {
			offer(t.Destination)
		}
	}

	for _, id := range current.Interactions {
		i, ok := g.Interaction(id)
		if !ok || !i.HasDestination() {
			continue
		}
		covered[i.Destination] = struct{}{}
		for _, npc := range ps.instance.NPCs {
			if npc.Reached(ps, id) {
				offer(i.Destination)
				break
			}
		}
	}

	for _, next := range current.Destinations() {
		if _, ok := covered[next.ID]; ok {
			continue
		}
		if !gateOpen(next.TimeLimit, next.MoneyLimit, since, now, ps.Budget) {
			continue
		}
		offer(next.ID)
	}
	return moves, nil
}

// canAfford reports whether the remaining energy covers the edge weight.
func (ps *PlayerState) canAfford(from, to uuid.UUID) bool {
	if ps.Energy == nil {
		return true
	}
	e, ok := ps.instance.Game.Edge(from, to)
	if !ok || e.Weight == nil {
		return true
	}
	return *ps.Energy-*e.Weight >= 0
}

// MoveTo moves the player to target and returns, per NPC full name, the
// interaction that became available (nil when none did).
//
// Arrival grants the target's items, the items and budget delta of each of
// its tasks the answer solves, and the target's own budget delta. Energy is
// debited by the edge weight.
func (ps *PlayerState) MoveTo(target *game.Waypoint, answer any) (map[string]*game.Interaction, error) {
	now := ps.instance.Now()
	if err := ps.instance.checkWindow(ps, now); err != nil {
		return nil, err
	}
	moves, err := ps.AvailableMoves(answer)
	if err != nil {
		return nil, err
	}
	from := ps.CurrentPosition()
	if target == nil {
		return nil, &PlayerIllegalMoveError{Player: ps.Name(), From: from.Title, To: "<nil>"}
	}
	if _, ok := moves[target.ID]; !ok {
		events.Emit("warning", "player.illegal_move", "", map[string]interface{}{
			"state": ps.ID.String(),
			"from":  from.Title,
			"to":    target.Title,
		})
		return nil, &PlayerIllegalMoveError{Player: ps.Name(), From: from.Title, To: target.Title}
	}
	target = moves[target.ID]

	solved := make([]bool, len(target.Tasks))
	for n, t := range target.Tasks {
		ok, err := ps.instance.solver.Solve(t, answer)
		if err != nil {
			return nil, err
		}
		solved[n] = ok
	}

	for _, item := range target.Items {
		ps.addStuff(target.ID, item, now)
	}
	for n, t := range target.Tasks {
		if !solved[n] {
			continue
		}
		ps.Budget += t.BudgetModification
		for _, item := range t.Items {
			ps.addStuff(t.ID, item, now)
		}
	}
	ps.Budget += target.BudgetModification

	if ps.Energy != nil {
		if e, ok := ps.instance.Game.Edge(from.ID, target.ID); ok && e.Weight != nil {
			*ps.Energy -= *e.Weight
		}
	}
	ps.Path = append(ps.Path, Step{At: now, Waypoint: target})

	events.Emit("info", "player.moved", "", map[string]interface{}{
		"state": ps.ID.String(),
		"from":  from.Title,
		"to":    target.Title,
	})

	unlocked := make(map[string]*game.Interaction, len(ps.instance.NPCs))
	var firstErr error
	for _, npc := range ps.instance.NPCs {
		i, err := npc.AvailableInteraction(ps, answer)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		unlocked[npc.NPC.FullName()] = i
		if i != nil {
			events.Emit("info", "interaction.unlocked", "", map[string]interface{}{
				"state":       ps.ID.String(),
				"npc":         npc.NPC.FullName(),
				"interaction": i.ID.String(),
			})
		}
	}

	if ps.IsFinished() {
		events.Emit("info", "player.finished", "", map[string]interface{}{
			"state": ps.ID.String(),
			"at":    target.Title,
		})
	}
	return unlocked, firstErr
}

// IsFinished reports whether the current position is a finish.
func (ps *PlayerState) IsFinished() bool {
	w := ps.CurrentPosition()
	return w != nil && w.IsFinish()
}

// AvailablePath yields every waypoint reachable from the current position.
func (ps *PlayerState) AvailablePath() (iter.Seq[*game.Waypoint], error) {
	current, _, err := ps.current()
	if err != nil {
		return nil, err
	}
	return current.AllPathNodes(), nil
}

func (ps *PlayerState) addStuff(source uuid.UUID, item string, at time.Time) {
	ps.Inventory[at] = append(ps.Inventory[at], Holding{Source: source, Item: item})
}

// Items lists inventory items in acquisition order.
func (ps *PlayerState) Items() []string {
	stamps := make([]time.Time, 0, len(ps.Inventory))
	for at := range ps.Inventory {
		stamps = append(stamps, at)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	var out []string
	for _, at := range stamps {
		for _, h := range ps.Inventory[at] {
			out = append(out, h.Item)
		}
	}
	return out
}

// HasItem reports whether item is in the inventory.
func (ps *PlayerState) HasItem(item string) bool {
	return slices.Contains(ps.Items(), item)
}

// addDialogResponse records a response and applies the interaction's budget
// delta.
func (ps *PlayerState) addDialogResponse(npc string, i *game.Interaction, response any, at time.Time) {
	ps.Budget += i.BudgetModification
	ps.Dialogs[npc] = append(ps.Dialogs[npc], Response{At: at, Interaction: i, Response: response})
}
