// Package game models branching narratives: a Game is a DAG of Waypoints and
// each NonPlayableCharacter carries a Dialog, a DAG of Interactions.
//
// Nodes are stored in per-graph arenas keyed by id. References between nodes
// (task and interaction destinations, interaction scoping, waypoint
// interaction requirements) are ids resolved through the owning Game.
package game

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/graph"
	"github.com/AaronLay10/storygraph/internal/task"
)

// Game is a directed acyclic graph of waypoints with a single start.
type Game struct {
	ID    uuid.UUID
	Title string
	Image []byte

	// Energy is the pool consumed by weighted edges; nil disables energy
	// tracking.
	Energy *float64

	// Creator is the player who stored the game.
	Creator uuid.UUID

	NPCs []*NonPlayableCharacter

	graph *graph.Graph[*Waypoint]
	start uuid.UUID
}

// NewGame creates an empty game.
func NewGame(title string) *Game {
	return &Game{
		ID:    uuid.New(),
		Title: title,
		graph: graph.New[*Waypoint](),
	}
}

// SetEnergy enables energy tracking with the given pool.
func (g *Game) SetEnergy(energy float64) {
	g.Energy = &energy
}

// TracksEnergy reports whether moves consume energy.
func (g *Game) TracksEnergy() bool {
	return g.Energy != nil
}

// NewWaypoint creates a waypoint and attaches it to g.
func (g *Game) NewWaypoint(title string, opts ...WaypointOption) *Waypoint {
	w := &Waypoint{ID: uuid.New(), Title: title}
	for _, opt := range opts {
		opt(w)
	}
	g.Add(w)
	return w
}

// Add attaches a waypoint built elsewhere, keeping its id.
func (g *Game) Add(w *Waypoint) {
	w.game = g
	g.graph.AddNode(w)
}

// SetStart marks w as the start of the game.
func (g *Game) SetStart(w *Waypoint) error {
	if w == nil {
		return StateError("set start", ErrNoStart, "game %s", g.Title)
	}
	if !g.graph.HasNode(w.ID) {
		return StateError("set start", ErrDangling, "waypoint %s is not part of game %s", w.Title, g.Title)
	}
	g.start = w.ID
	return nil
}

// Start returns the start waypoint or nil.
func (g *Game) Start() *Waypoint {
	w, _ := g.graph.Node(g.start)
	return w
}

// StartIsSet reports whether a start waypoint is set.
func (g *Game) StartIsSet() bool {
	return g.start != uuid.Nil && g.graph.HasNode(g.start)
}

// IsAcyclic reports whether the waypoint graph has no cycle.
func (g *Game) IsAcyclic() bool {
	return g.graph.IsAcyclic()
}

// Waypoint looks up a waypoint by id.
func (g *Game) Waypoint(id uuid.UUID) (*Waypoint, bool) {
	return g.graph.Node(id)
}

// Waypoints returns every waypoint in insertion order.
func (g *Game) Waypoints() []*Waypoint {
	return g.graph.Nodes()
}

// Edge returns the edge from->to.
func (g *Game) Edge(from, to uuid.UUID) (graph.Edge, bool) {
	return g.graph.Edge(from, to)
}

// Edges returns every edge in insertion order.
func (g *Game) Edges() []graph.Edge {
	return g.graph.Edges()
}

// Len returns the number of waypoints.
func (g *Game) Len() int {
	return g.graph.Len()
}

// AddNPC adds a character to the roster. Characters are identified by their
// full name.
func (g *Game) AddNPC(npc *NonPlayableCharacter) error {
	if _, ok := g.NPC(npc.FullName()); ok {
		return StateError("add npc", ErrDuplicate, "npc %s in game %s", npc.FullName(), g.Title)
	}
	g.NPCs = append(g.NPCs, npc)
	return nil
}

// NPC looks up a character by full name.
func (g *Game) NPC(fullName string) (*NonPlayableCharacter, bool) {
	for _, npc := range g.NPCs {
		if npc.FullName() == fullName {
			return npc, true
		}
	}
	return nil, false
}

// Interaction looks up an interaction in any NPC dialog.
func (g *Game) Interaction(id uuid.UUID) (*Interaction, bool) {
	for _, npc := range g.NPCs {
		if i, ok := npc.Dialog.Interaction(id); ok {
			return i, true
		}
	}
	return nil, false
}

// Validate checks every structural invariant: both graph kinds are acyclic
// with a start, no dialog or interaction belongs to two characters, and every
// id reference resolves inside this game. References held by nodes reachable
// from a start must point at nodes reachable from a start as well, since only
// those are stored.
func (g *Game) Validate() error {
	if !g.IsAcyclic() {
		return StateError("validate", ErrNotAcyclic, "game %s", g.Title)
	}
	if !g.StartIsSet() {
		return StateError("validate", ErrNoStart, "game %s", g.Title)
	}

	dialogs := make(map[uuid.UUID]string, len(g.NPCs))
	owners := make(map[uuid.UUID]string)
	talk := make(map[uuid.UUID]struct{})
	for _, npc := range g.NPCs {
		if err := npc.Dialog.Validate(); err != nil {
			return err
		}
		if other, ok := dialogs[npc.Dialog.ID]; ok {
			return StateError("validate", ErrDuplicate, "dialog %s shared by %s and %s", npc.Dialog.ID, other, npc.FullName())
		}
		dialogs[npc.Dialog.ID] = npc.FullName()
		for _, i := range npc.Dialog.Interactions() {
			if other, ok := owners[i.ID]; ok {
				return StateError("validate", ErrDuplicate, "interaction %s shared by %s and %s", i.ID, other, npc.FullName())
			}
			owners[i.ID] = npc.FullName()
		}
		for i := range npc.Dialog.Start().AllPathNodes() {
			talk[i.ID] = struct{}{}
		}
	}
	stored := make(map[uuid.UUID]struct{}, g.Len())
	for w := range g.Start().AllPathNodes() {
		stored[w.ID] = struct{}{}
	}
	r := refs{g: g, stored: stored}

	for _, npc := range g.NPCs {
		for _, i := range npc.Dialog.Interactions() {
			_, live := talk[i.ID]
			if err := r.interaction(i, live); err != nil {
				return err
			}
		}
	}
	for _, w := range g.Waypoints() {
		_, live := stored[w.ID]
		for _, t := range w.Tasks {
			if err := r.task(t, live); err != nil {
				return err
			}
		}
		for _, id := range w.Interactions {
			if _, ok := g.Interaction(id); !ok {
				return StateError("validate", ErrDangling, "waypoint %s interaction %s", w.Title, id)
			}
			if _, ok := talk[id]; live && !ok {
				return StateError("validate", ErrDangling, "waypoint %s interaction %s is not reachable in its dialog", w.Title, id)
			}
		}
	}
	return nil
}

// refs resolves waypoint references. live marks a referrer that gets
// stored; its targets must be stored too.
type refs struct {
	g      *Game
	stored map[uuid.UUID]struct{}
}

func (r refs) waypoint(id uuid.UUID, live bool, what string, args ...any) error {
	if _, ok := r.g.Waypoint(id); !ok {
		return StateError("validate", ErrDangling, what, args...)
	}
	if _, ok := r.stored[id]; live && !ok {
		return StateError("validate", ErrDangling, what+" is not reachable from the start", args...)
	}
	return nil
}

func (r refs) task(t *task.Task, live bool) error {
	if !t.HasDestination() {
		return nil
	}
	return r.waypoint(t.Destination, live, "task %s destination %s", t.ID, t.Destination)
}

func (r refs) interaction(i *Interaction, live bool) error {
	if i.HasDestination() {
		if err := r.waypoint(i.Destination, live, "interaction %s destination %s", i.ID, i.Destination); err != nil {
			return err
		}
	}
	for _, id := range i.Waypoints {
		if err := r.waypoint(id, live, "interaction %s waypoint %s", i.ID, id); err != nil {
			return err
		}
	}
	if i.Task != nil {
		return r.task(i.Task, live)
	}
	return nil
}

func (g *Game) String() string {
	return fmt.Sprintf("%s (%d waypoints, %d npcs)", g.Title, g.Len(), len(g.NPCs))
}

// NonPlayableCharacter is an NPC template shared by every instance of a game.
type NonPlayableCharacter struct {
	FirstName  string
	LastName   string
	Salutation string
	Mail       string
	Image      []byte
	Dialog     *Dialog
}

// NewNPC creates a character. The dialog must already have a start.
func NewNPC(firstName, lastName string, dialog *Dialog) (*NonPlayableCharacter, error) {
	if dialog == nil || !dialog.StartIsSet() {
		return nil, StateError("new npc", ErrNoStart, "dialog start not set for %s %s", firstName, lastName)
	}
	return &NonPlayableCharacter{
		FirstName: firstName,
		LastName:  lastName,
		Dialog:    dialog,
	}, nil
}

// FullName is the identity of the character within a game.
func (n *NonPlayableCharacter) FullName() string {
	return n.FirstName + " " + n.LastName
}

func (n *NonPlayableCharacter) String() string {
	return n.FullName()
}
