package codec

import (
	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/store"
	"github.com/AaronLay10/storygraph/internal/task"
)

// Pending collects decoded nodes whose task references are still ids.
type Pending struct {
	tasks            map[uuid.UUID]*task.Task
	owners           map[uuid.UUID]uuid.UUID
	waypointTasks    map[uuid.UUID][]uuid.UUID
	interactionTasks map[uuid.UUID]uuid.UUID
}

// NewPending returns an empty set.
func NewPending() *Pending {
	return &Pending{
		tasks:            make(map[uuid.UUID]*task.Task),
		owners:           make(map[uuid.UUID]uuid.UUID),
		waypointTasks:    make(map[uuid.UUID][]uuid.UUID),
		interactionTasks: make(map[uuid.UUID]uuid.UUID),
	}
}

// Waypoint decodes doc and records its task ids.
func (p *Pending) Waypoint(doc store.Document) (*game.Waypoint, error) {
	w, tasks, err := DecodeWaypoint(doc)
	if err != nil {
		return nil, err
	}
	p.waypointTasks[w.ID] = tasks
	return w, nil
}

// Interaction decodes doc and records its task id.
func (p *Pending) Interaction(doc store.Document) (*game.Interaction, error) {
	i, taskID, err := DecodeInteraction(doc)
	if err != nil {
		return nil, err
	}
	if taskID != uuid.Nil {
		p.interactionTasks[i.ID] = taskID
	}
	return i, nil
}

// Task decodes a task document.
func (p *Pending) Task(doc store.Document) (*task.Task, error) {
	t, owner, err := DecodeTask(doc)
	if err != nil {
		return nil, err
	}
	p.tasks[t.ID] = t
	if owner != uuid.Nil {
		p.owners[t.ID] = owner
	}
	return t, nil
}

func (p *Pending) bind(owner, id uuid.UUID, what string) (*task.Task, error) {
	t, ok := p.tasks[id]
	if !ok {
		return nil, game.StateError("glue", game.ErrDangling, "%s %s task %s", what, Hex(owner), Hex(id))
	}
	if o, ok := p.owners[id]; ok && o != owner {
		return nil, game.StateError("glue", game.ErrDangling, "task %s belongs to %s, not %s", Hex(id), Hex(o), Hex(owner))
	}
	return t, nil
}

// Glue binds every pending task to its owner in g and checks that every
// id reference resolves: task destinations, interaction destinations,
// interaction waypoint scopes and waypoint interactions. A dangling id is
// a *game.GameStateError wrapping game.ErrDangling.
func Glue(g *game.Game, p *Pending) error {
	for _, w := range g.Waypoints() {
		ids, ok := p.waypointTasks[w.ID]
		if !ok {
			continue
		}
		w.Tasks = nil
		for _, id := range ids {
			t, err := p.bind(w.ID, id, "waypoint")
			if err != nil {
				return err
			}
			w.Tasks = append(w.Tasks, t)
		}
	}
	for _, npc := range g.NPCs {
		for _, i := range npc.Dialog.Interactions() {
			id, ok := p.interactionTasks[i.ID]
			if !ok {
				continue
			}
			t, err := p.bind(i.ID, id, "interaction")
			if err != nil {
				return err
			}
			i.Task = t
		}
	}

	resolveWaypoint := func(id uuid.UUID, format string, args ...any) error {
		if _, ok := g.Waypoint(id); !ok {
			return game.StateError("glue", game.ErrDangling, format, args...)
		}
		return nil
	}
	checkTask := func(t *task.Task) error {
		if !t.HasDestination() {
			return nil
		}
		return resolveWaypoint(t.Destination, "task %s destination %s", Hex(t.ID), Hex(t.Destination))
	}

	for _, npc := range g.NPCs {
		for _, i := range npc.Dialog.Interactions() {
			if i.HasDestination() {
				if err := resolveWaypoint(i.Destination, "interaction %s destination %s", Hex(i.ID), Hex(i.Destination)); err != nil {
					return err
				}
			}
			for _, id := range i.Waypoints {
				if err := resolveWaypoint(id, "interaction %s waypoint %s", Hex(i.ID), Hex(id)); err != nil {
					return err
				}
			}
			if i.Task != nil {
				if err := checkTask(i.Task); err != nil {
					return err
				}
			}
		}
	}
	for _, w := range g.Waypoints() {
		for _, t := range w.Tasks {
			if err := checkTask(t); err != nil {
				return err
			}
		}
		for _, id := range w.Interactions {
			if _, ok := g.Interaction(id); !ok {
				return game.StateError("glue", game.ErrDangling, "waypoint %s interaction %s", w.Title, Hex(id))
			}
		}
	}
	return nil
}
