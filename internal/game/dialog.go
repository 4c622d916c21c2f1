package game

import (
	"iter"
	"slices"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/graph"
	"github.com/AaronLay10/storygraph/internal/task"
)

// InteractionKind tags the content variant of an Interaction.
type InteractionKind string

const (
	KindMail   InteractionKind = "mail"
	KindSpeech InteractionKind = "speech"
)

// Interaction is one exchange between a player and an NPC. Reaching an
// interaction may require a waypoint, a budget, a time window and a solved
// task; completing it can unlock a waypoint of the game.
type Interaction struct {
	ID                 uuid.UUID
	Kind               InteractionKind
	Description        string
	MoneyLimit         float64
	TimeLimit          float64
	BudgetModification float64
	Items              []string

	// Waypoints scopes the interaction to these waypoints; empty means
	// reachable everywhere.
	Waypoints   []uuid.UUID
	Task        *task.Task
	Destination uuid.UUID

	// Mail
	Subject string
	Body    string
	// Speech
	Content string

	dialog *Dialog
}

// InteractionOption configures an interaction created by Dialog.NewMail or
// Dialog.NewSpeech.
type InteractionOption func(*Interaction)

// Describe sets the text shown to ancestors of the interaction.
func Describe(s string) InteractionOption {
	return func(i *Interaction) { i.Description = s }
}

// Gate sets the money and time gates.
func Gate(money, seconds float64) InteractionOption {
	return func(i *Interaction) {
		i.MoneyLimit = money
		i.TimeLimit = seconds
	}
}

// Budget sets the budget delta applied when the player responds.
func Budget(delta float64) InteractionOption {
	return func(i *Interaction) { i.BudgetModification = delta }
}

// Grant sets the items granted when the interaction is reached.
func Grant(items ...string) InteractionOption {
	return func(i *Interaction) { i.Items = append(i.Items, items...) }
}

// Requires sets the task that must be solved to reach the interaction.
func Requires(t *task.Task) InteractionOption {
	return func(i *Interaction) { i.Task = t }
}

// Unlocks sets the waypoint that opens once the interaction is reached.
func Unlocks(w *Waypoint) InteractionOption {
	return func(i *Interaction) { i.Destination = w.ID }
}

// NodeID implements graph.Node.
func (i *Interaction) NodeID() uuid.UUID {
	return i.ID
}

// Dialog returns the dialog that owns i.
func (i *Interaction) Dialog() *Dialog {
	return i.dialog
}

// AddFollowUp adds an edge from i to next. Waypoints, when given, scope next
// to those waypoints.
func (i *Interaction) AddFollowUp(next *Interaction, waypoints ...*Waypoint) error {
	if next == nil || i.dialog == nil || next.dialog != i.dialog {
		return StateError("add follow up", ErrDangling, "interaction %s: follow up outside the dialog", i.ID)
	}
	i.dialog.graph.AddEdge(i, next, nil)
	for _, w := range waypoints {
		if !slices.Contains(next.Waypoints, w.ID) {
			next.Waypoints = append(next.Waypoints, w.ID)
		}
	}
	return nil
}

// AvailableAt reports whether the interaction is scoped to the waypoint.
func (i *Interaction) AvailableAt(waypoint uuid.UUID) bool {
	return len(i.Waypoints) == 0 || slices.Contains(i.Waypoints, waypoint)
}

// FollowUps returns the successors of i reachable at the current waypoint.
func (i *Interaction) FollowUps(current uuid.UUID) []*Interaction {
	var out []*Interaction
	for _, s := range i.dialog.graph.Successors(i.ID) {
		if s.AvailableAt(current) {
			out = append(out, s)
		}
	}
	return out
}

// Successors returns every direct follow up regardless of scoping.
func (i *Interaction) Successors() []*Interaction {
	return i.dialog.graph.Successors(i.ID)
}

// AllPathNodes yields every interaction reachable from i, i included.
func (i *Interaction) AllPathNodes() iter.Seq[*Interaction] {
	return i.dialog.graph.DFS(i.ID)
}

// IsFinish reports whether i has no follow ups.
func (i *Interaction) IsFinish() bool {
	return i.dialog.graph.OutDegree(i.ID) == 0
}

// HasTask reports whether a task gates the interaction.
func (i *Interaction) HasTask() bool {
	return i.Task != nil
}

// HasDestination reports whether the interaction unlocks a waypoint.
func (i *Interaction) HasDestination() bool {
	return i.Destination != uuid.Nil
}

func (i *Interaction) String() string {
	switch i.Kind {
	case KindMail:
		if i.Subject != "" {
			return i.Subject
		}
	case KindSpeech:
		if i.Description == "" {
			return i.Content
		}
	}
	return i.Description
}

// Dialog is the conversation graph of one NPC.
type Dialog struct {
	ID    uuid.UUID
	graph *graph.Graph[*Interaction]
	start uuid.UUID
}

// NewDialog creates an empty dialog.
func NewDialog() *Dialog {
	return &Dialog{ID: uuid.New(), graph: graph.New[*Interaction]()}
}

// NewMail creates a mail interaction in d.
func (d *Dialog) NewMail(subject, body string, opts ...InteractionOption) *Interaction {
	i := &Interaction{ID: uuid.New(), Kind: KindMail, Subject: subject, Body: body}
	for _, opt := range opts {
		opt(i)
	}
	d.Add(i)
	return i
}

// NewSpeech creates a speech interaction in d.
func (d *Dialog) NewSpeech(content string, opts ...InteractionOption) *Interaction {
	i := &Interaction{ID: uuid.New(), Kind: KindSpeech, Content: content}
	for _, opt := range opts {
		opt(i)
	}
	d.Add(i)
	return i
}

// Add attaches an interaction built elsewhere, keeping its id.
func (d *Dialog) Add(i *Interaction) {
	i.dialog = d
	d.graph.AddNode(i)
}

// SetStart marks i as the dialog start. The start is reached for free, so it
// must not grant items.
func (d *Dialog) SetStart(i *Interaction) error {
	if i == nil {
		return StateError("set dialog start", ErrNoStart, "dialog %s", d.ID)
	}
	if len(i.Items) > 0 {
		return StateError("set dialog start", ErrStartHasItems, "dialog %s start %s", d.ID, i.ID)
	}
	if !d.graph.HasNode(i.ID) {
		return StateError("set dialog start", ErrDangling, "interaction %s is not part of dialog %s", i.ID, d.ID)
	}
	d.start = i.ID
	return nil
}

// Start returns the start interaction or nil.
func (d *Dialog) Start() *Interaction {
	i, _ := d.graph.Node(d.start)
	return i
}

// StartIsSet reports whether a start interaction is set.
func (d *Dialog) StartIsSet() bool {
	return d.start != uuid.Nil && d.graph.HasNode(d.start)
}

// IsAcyclic reports whether the conversation graph has no cycle.
func (d *Dialog) IsAcyclic() bool {
	return d.graph.IsAcyclic()
}

// Interaction looks up an interaction by id.
func (d *Dialog) Interaction(id uuid.UUID) (*Interaction, bool) {
	return d.graph.Node(id)
}

// Interactions returns every interaction in insertion order.
func (d *Dialog) Interactions() []*Interaction {
	return d.graph.Nodes()
}

// Edges returns the follow up edges in insertion order.
func (d *Dialog) Edges() []graph.Edge {
	return d.graph.Edges()
}

// Len returns the number of interactions.
func (d *Dialog) Len() int {
	return d.graph.Len()
}

// Validate checks that d is acyclic and has a start without items.
func (d *Dialog) Validate() error {
	if !d.IsAcyclic() {
		return StateError("validate dialog", ErrNotAcyclic, "dialog %s", d.ID)
	}
	if !d.StartIsSet() {
		return StateError("validate dialog", ErrNoStart, "dialog %s", d.ID)
	}
	if len(d.Start().Items) > 0 {
		return StateError("validate dialog", ErrStartHasItems, "dialog %s", d.ID)
	}
	return nil
}
