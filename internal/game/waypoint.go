package game

import (
	"iter"
	"slices"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/task"
)

// Level groups waypoints under a titled stage of the game.
type Level struct {
	Title string
	Icon  []byte
}

// Waypoint is one step on a path from start to finish.
type Waypoint struct {
	ID          uuid.UUID
	Title       string
	Description string
	Text        string
	Media       []byte

	// TimeLimit is the number of seconds after the previous move during
	// which the waypoint can be reached. Zero means no limit.
	TimeLimit    float64
	MoneyLimit   float64
	TimerVisible bool
	Level        *Level

	Tasks []*task.Task
	// Interactions are NPC interaction ids whose completion unlocks their
	// destination from here.
	Interactions []uuid.UUID

	Items              []string
	BudgetModification float64

	game *Game
}

// WaypointOption configures a waypoint created by Game.NewWaypoint.
type WaypointOption func(*Waypoint)

// WithDescription sets the transition text shown on links to the waypoint.
func WithDescription(s string) WaypointOption {
	return func(w *Waypoint) { w.Description = s }
}

// WithText sets the body text.
func WithText(s string) WaypointOption {
	return func(w *Waypoint) { w.Text = s }
}

// WithMedia sets the media payload.
func WithMedia(b []byte) WaypointOption {
	return func(w *Waypoint) { w.Media = b }
}

// WithTimeLimit sets the time gate in seconds.
func WithTimeLimit(seconds float64) WaypointOption {
	return func(w *Waypoint) { w.TimeLimit = seconds }
}

// WithMoneyLimit sets the budget gate.
func WithMoneyLimit(amount float64) WaypointOption {
	return func(w *Waypoint) { w.MoneyLimit = amount }
}

// WithTimerVisible shows the countdown when a time limit is set.
func WithTimerVisible() WaypointOption {
	return func(w *Waypoint) { w.TimerVisible = true }
}

// WithLevel places the waypoint in a level.
func WithLevel(l *Level) WaypointOption {
	return func(w *Waypoint) { w.Level = l }
}

// WithItems sets the items granted on arrival.
func WithItems(items ...string) WaypointOption {
	return func(w *Waypoint) { w.Items = append(w.Items, items...) }
}

// WithBudgetModification sets the budget delta applied on arrival.
func WithBudgetModification(delta float64) WaypointOption {
	return func(w *Waypoint) { w.BudgetModification = delta }
}

// NodeID implements graph.Node.
func (w *Waypoint) NodeID() uuid.UUID {
	return w.ID
}

// Game returns the game that owns w.
func (w *Waypoint) Game() *Game {
	return w.game
}

// AddDestination adds an unweighted edge from w to dest.
func (w *Waypoint) AddDestination(dest *Waypoint) error {
	return w.addEdge(dest, nil)
}

// AddWeightedDestination adds an edge from w to dest that costs energy to
// traverse.
func (w *Waypoint) AddWeightedDestination(dest *Waypoint, energy float64) error {
	return w.addEdge(dest, &energy)
}

func (w *Waypoint) addEdge(dest *Waypoint, weight *float64) error {
	if dest == nil {
		return StateError("add destination", ErrDangling, "nil destination from %s", w.Title)
	}
	if w.game == nil || dest.game != w.game {
		return StateError("add destination", ErrDangling, "%s and %s belong to different games", w.Title, dest.Title)
	}
	w.game.graph.AddEdge(w, dest, weight)
	return nil
}

// AddTask attaches t to w. A task carrying a destination also adds the edge
// to that destination, which must already be a waypoint of the same game.
func (w *Waypoint) AddTask(t *task.Task) error {
	if t.HasDestination() {
		dest, ok := w.game.Waypoint(t.Destination)
		if !ok {
			return StateError("add task", ErrDangling, "task %s destination %s", t.ID, t.Destination)
		}
		if err := w.AddDestination(dest); err != nil {
			return err
		}
	}
	w.Tasks = append(w.Tasks, t)
	return nil
}

// AddInteraction requires i to have been reached in an NPC dialog before its
// destination opens from w.
func (w *Waypoint) AddInteraction(i *Interaction) error {
	if i.HasDestination() {
		dest, ok := w.game.Waypoint(i.Destination)
		if !ok {
			return StateError("add interaction", ErrDangling, "interaction %s destination %s", i.ID, i.Destination)
		}
		if err := w.AddDestination(dest); err != nil {
			return err
		}
	}
	if !slices.Contains(w.Interactions, i.ID) {
		w.Interactions = append(w.Interactions, i.ID)
	}
	return nil
}

// Destinations returns the direct successors of w.
func (w *Waypoint) Destinations() []*Waypoint {
	return w.game.graph.Successors(w.ID)
}

// IsFinish reports whether w has no destinations.
func (w *Waypoint) IsFinish() bool {
	return w.game.graph.OutDegree(w.ID) == 0
}

// AllPathNodes yields every waypoint reachable from w, w included.
func (w *Waypoint) AllPathNodes() iter.Seq[*Waypoint] {
	return w.game.graph.DFS(w.ID)
}

// Task returns the owned task with the given id.
func (w *Waypoint) Task(id uuid.UUID) (*task.Task, bool) {
	for _, t := range w.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (w *Waypoint) String() string {
	return w.Title
}
