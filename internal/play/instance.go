// Package play runs playthroughs of a game: a GameInstance binds players
// and NPC dialog cursors to one Game, and the move-legality engine decides
// which waypoints and interactions a player can reach next.
//
// Nothing in this package is synchronized. Callers serialize access to a
// PlayerState, one in-flight move per player.
package play

import (
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/task"
)

// GameInstance is one live or scheduled playthrough of a game.
type GameInstance struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Game      *game.Game

	// Multiplayer instances carry a name, a host and a play window. A zero
	// StartsAt or EndsAt leaves that side of the window open.
	Name     string
	Host     *player.Player
	StartsAt time.Time
	EndsAt   time.Time

	// InitialBudget is given to every player on join.
	InitialBudget float64

	Players []*PlayerState
	NPCs    []*NpcState

	now    func() time.Time
	solver task.Solver
}

// Option configures a GameInstance.
type Option func(*GameInstance)

// WithName names a multiplayer instance.
func WithName(name string) Option {
	return func(gi *GameInstance) { gi.Name = name }
}

// WithHost sets the game master.
func WithHost(p *player.Player) Option {
	return func(gi *GameInstance) { gi.Host = p }
}

// WithWindow limits moves to [startsAt, endsAt].
func WithWindow(startsAt, endsAt time.Time) Option {
	return func(gi *GameInstance) {
		gi.StartsAt = startsAt.UTC()
		gi.EndsAt = endsAt.UTC()
	}
}

// WithInitialBudget sets the budget each player starts with.
func WithInitialBudget(budget float64) Option {
	return func(gi *GameInstance) { gi.InitialBudget = budget }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(gi *GameInstance) { gi.now = now }
}

// WithSolver replaces the answer solver.
func WithSolver(s task.Solver) Option {
	return func(gi *GameInstance) { gi.solver = s }
}

// NewInstance binds g to a new playthrough with one fresh state per NPC.
func NewInstance(g *game.Game, opts ...Option) (*GameInstance, error) {
	if g == nil || !g.StartIsSet() {
		title := ""
		if g != nil {
			title = g.Title
		}
		return nil, game.StateError("new instance", game.ErrNoStart, "game %s", title)
	}
	gi := &GameInstance{
		ID:     uuid.New(),
		Game:   g,
		now:    func() time.Time { return time.Now().UTC() },
		solver: task.DefaultSolver,
	}
	for _, opt := range opts {
		opt(gi)
	}
	gi.CreatedAt = gi.Now()
	for _, npc := range g.NPCs {
		gi.NPCs = append(gi.NPCs, newNpcState(gi, npc))
	}
	return gi, nil
}

// NewSinglePlayer creates an instance with one joined player.
func NewSinglePlayer(g *game.Game, p *player.Player, firstName, lastName string, opts ...Option) (*GameInstance, *PlayerState, error) {
	gi, err := NewInstance(g, opts...)
	if err != nil {
		return nil, nil, err
	}
	return gi, gi.Join(p, firstName, lastName), nil
}

// Now returns the instance clock reading in UTC.
func (gi *GameInstance) Now() time.Time {
	return gi.now().UTC()
}

// SetClock replaces the instance clock. Used after loading an instance.
func (gi *GameInstance) SetClock(now func() time.Time) {
	gi.now = now
}

// Solver returns the solver used for answers.
func (gi *GameInstance) Solver() task.Solver {
	return gi.solver
}

// Join creates a player state at the start of the game under the given
// pseudonym and starts every NPC dialog for it.
func (gi *GameInstance) Join(p *player.Player, firstName, lastName string) *PlayerState {
	ps := newPlayerState(gi, p, firstName, lastName)
	gi.Players = append(gi.Players, ps)
	for _, npc := range gi.NPCs {
		npc.AddPlayer(ps)
	}
	events.Emit("info", "player.joined", "", map[string]interface{}{
		"instance": gi.ID.String(),
		"state":    ps.ID.String(),
		"name":     ps.Name(),
	})
	return ps
}

// Leave removes every state of p and their NPC dialog cursors. It reports
// whether anything was removed.
func (gi *GameInstance) Leave(p *player.Player) bool {
	kept := gi.Players[:0]
	removed := false
	for _, ps := range gi.Players {
		if ps.Player != nil && p != nil && ps.Player.ID == p.ID {
			for _, npc := range gi.NPCs {
				npc.RemovePlayer(ps)
			}
			events.Emit("info", "player.left", "", map[string]interface{}{
				"instance": gi.ID.String(),
				"state":    ps.ID.String(),
			})
			removed = true
			continue
		}
		kept = append(kept, ps)
	}
	gi.Players = kept
	return removed
}

// State returns the first state of p. A nil player has no state.
func (gi *GameInstance) State(p *player.Player) (*PlayerState, bool) {
	if p == nil {
		return nil, false
	}
	for _, ps := range gi.Players {
		if ps.Player != nil && ps.Player.ID == p.ID {
			return ps, true
		}
	}
	return nil, false
}

// NPC returns the state of the named NPC.
func (gi *GameInstance) NPC(fullName string) (*NpcState, bool) {
	for _, npc := range gi.NPCs {
		if npc.NPC.FullName() == fullName {
			return npc, true
		}
	}
	return nil, false
}

// IsMultiplayer reports whether the instance is hosted.
func (gi *GameInstance) IsMultiplayer() bool {
	return gi.Host != nil
}

// Attach adds a restored player state, e.g. when loading a saved instance.
func (gi *GameInstance) Attach(ps *PlayerState) {
	ps.instance = gi
	gi.Players = append(gi.Players, ps)
}

func (gi *GameInstance) checkWindow(ps *PlayerState, now time.Time) error {
	if !gi.StartsAt.IsZero() && now.Before(gi.StartsAt) {
		return &PlayerStateError{Player: ps.Name(), Msg: "wait till " + gi.StartsAt.Format(time.RFC3339), Err: ErrNotStarted}
	}
	if !gi.EndsAt.IsZero() && now.After(gi.EndsAt) {
		return &PlayerStateError{Player: ps.Name(), Err: ErrEnded}
	}
	return nil
}

// gateOpen applies the time and money gates of a node: a non-zero time limit
// closes the gate once that many seconds have passed since the reference
// move; a non-zero money limit requires at least that budget.
func gateOpen(timeLimit, moneyLimit float64, since, now time.Time, budget float64) bool {
	if timeLimit > 0 && now.After(since.Add(seconds(timeLimit))) {
		return false
	}
	if moneyLimit > 0 && budget < moneyLimit {
		return false
	}
	return true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
