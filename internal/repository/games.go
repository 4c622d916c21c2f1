// Package repository stores games, players and instances in a store.Store.
//
// Game writes span several collections and graphs and are not wrapped in a
// transaction: validation and every existence check run before the first
// write, so a rejected game leaves the store untouched.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/codec"
	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/graph"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/store"
	"github.com/AaronLay10/storygraph/internal/task"
)

// Option configures a repository.
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func newOptions(opts []Option) options {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Games stores game definitions: one waypoint graph per game, one
// interaction graph per NPC dialog, and metadata documents.
type Games struct {
	store store.Store
	log   *slog.Logger
}

// NewGames returns a game repository over s.
func NewGames(s store.Store, opts ...Option) *Games {
	o := newOptions(opts)
	return &Games{store: s, log: o.log}
}

// failed emits a system.error for a failed write and returns err.
func failed(op string, err error) error {
	events.Emit("error", "system.error", err.Error(), map[string]interface{}{"op": op})
	return err
}

func (r *Games) ensureCollections(ctx context.Context) error {
	for _, name := range []string{codec.CollectionGames, codec.CollectionDialogs, codec.CollectionNPCs, codec.CollectionTasks} {
		if err := store.EnsureCollection(ctx, r.store, name); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
	}
	return nil
}

func (r *Games) exists(ctx context.Context, collection, key string) (bool, error) {
	_, err := r.store.Get(ctx, collection, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create stores g as created by creator. It fails with a
// *game.GameStateError, writing nothing, when g or one of its dialogs is
// cyclic or has no start, or when the title, a dialog or an NPC is already
// stored.
func (r *Games) Create(ctx context.Context, g *game.Game, creator *player.Player) error {
	if creator != nil {
		g.Creator = creator.ID
	}
	if err := r.create(ctx, g); err != nil {
		return err
	}
	events.Emit("info", "game.created", "", map[string]interface{}{
		"title":   g.Title,
		"creator": codec.Hex(g.Creator),
	})
	return nil
}

func (r *Games) create(ctx context.Context, g *game.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	if err := r.ensureCollections(ctx); err != nil {
		return failed("create game", err)
	}
	if err := r.checkFree(ctx, g); err != nil {
		return err
	}

	for _, npc := range g.NPCs {
		if err := r.writeDialog(ctx, g.Title, npc); err != nil {
			return failed("create game", err)
		}
	}
	if err := r.writeGameGraph(ctx, g); err != nil {
		return failed("create game", err)
	}
	doc, err := codec.EncodeGame(g)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, codec.CollectionGames, doc); err != nil {
		return failed("create game", fmt.Errorf("failed to store game %s: %w", g.Title, err))
	}
	r.log.Debug("game stored", "title", g.Title, "waypoints", g.Len(), "npcs", len(g.NPCs))
	return nil
}

func (r *Games) checkFree(ctx context.Context, g *game.Game) error {
	taken, err := r.exists(ctx, codec.CollectionGames, g.Title)
	if err != nil {
		return failed("create game", err)
	}
	if !taken {
		taken, err = r.store.HasGraph(ctx, codec.GameGraph(g.Title))
		if err != nil {
			return failed("create game", err)
		}
	}
	if taken {
		return game.StateError("create game", game.ErrDuplicate, "game %s already exists", g.Title)
	}
	for _, npc := range g.NPCs {
		id := npc.Dialog.ID
		taken, err := r.exists(ctx, codec.CollectionDialogs, codec.Hex(id))
		if err != nil {
			return failed("create game", err)
		}
		if !taken {
			if taken, err = r.store.HasGraph(ctx, codec.DialogGraph(id)); err != nil {
				return failed("create game", err)
			}
		}
		if taken {
			return game.StateError("create game", game.ErrDuplicate, "dialog %s already exists", codec.Hex(id))
		}
		taken, err = r.exists(ctx, codec.CollectionNPCs, codec.NPCKey(g.Title, npc.FirstName, npc.LastName))
		if err != nil {
			return failed("create game", err)
		}
		if taken {
			return game.StateError("create game", game.ErrDuplicate, "npc %s already exists", npc.FullName())
		}
	}
	return nil
}

func (r *Games) writeDialog(ctx context.Context, title string, npc *game.NonPlayableCharacter) error {
	d := npc.Dialog
	doc, err := codec.EncodeNPC(title, npc)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, codec.CollectionNPCs, doc); err != nil {
		return fmt.Errorf("failed to store npc %s: %w", npc.FullName(), err)
	}

	name := codec.DialogGraph(d.ID)
	def := store.GraphDefinition{VertexCollection: codec.VertexInteractions, EdgeCollection: codec.EdgeConversation}
	if err := r.store.CreateGraph(ctx, name, def); err != nil {
		return fmt.Errorf("failed to create graph %s: %w", name, err)
	}
	visited := make(map[uuid.UUID]struct{})
	for i := range d.Start().AllPathNodes() {
		visited[i.ID] = struct{}{}
		doc, err := codec.EncodeInteraction(i)
		if err != nil {
			return err
		}
		if err := r.store.InsertVertex(ctx, name, doc); err != nil {
			return fmt.Errorf("failed to store interaction %s: %w", codec.Hex(i.ID), err)
		}
		if i.Task != nil {
			if err := r.writeTask(ctx, i.ID, i.Task); err != nil {
				return err
			}
		}
	}
	if err := r.writeEdges(ctx, name, codec.VertexInteractions, d.Edges(), visited); err != nil {
		return err
	}

	doc, err = codec.EncodeDialog(d)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, codec.CollectionDialogs, doc); err != nil {
		return fmt.Errorf("failed to store dialog %s: %w", codec.Hex(d.ID), err)
	}
	r.log.Debug("dialog stored", "npc", npc.FullName(), "interactions", len(visited))
	return nil
}

func (r *Games) writeGameGraph(ctx context.Context, g *game.Game) error {
	name := codec.GameGraph(g.Title)
	def := store.GraphDefinition{VertexCollection: codec.VertexWaypoints, EdgeCollection: codec.EdgePath}
	if err := r.store.CreateGraph(ctx, name, def); err != nil {
		return fmt.Errorf("failed to create graph %s: %w", name, err)
	}
	visited := make(map[uuid.UUID]struct{})
	for w := range g.Start().AllPathNodes() {
		visited[w.ID] = struct{}{}
		doc, err := codec.EncodeWaypoint(w)
		if err != nil {
			return err
		}
		if err := r.store.InsertVertex(ctx, name, doc); err != nil {
			return fmt.Errorf("failed to store waypoint %s: %w", w.Title, err)
		}
		for _, t := range w.Tasks {
			if err := r.writeTask(ctx, w.ID, t); err != nil {
				return err
			}
		}
	}
	if len(visited) < g.Len() {
		r.log.Warn("unreachable waypoints are not stored", "title", g.Title, "stored", len(visited), "total", g.Len())
	}
	return r.writeEdges(ctx, name, codec.VertexWaypoints, g.Edges(), visited)
}

func (r *Games) writeTask(ctx context.Context, owner uuid.UUID, t *task.Task) error {
	doc, err := codec.EncodeTask(t, owner)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, codec.CollectionTasks, doc); err != nil {
		return fmt.Errorf("failed to store task %s: %w", codec.Hex(t.ID), err)
	}
	return nil
}

// writeEdges stores each edge leaving a visited vertex once.
func (r *Games) writeEdges(ctx context.Context, name, vertices string, edges []graph.Edge, visited map[uuid.UUID]struct{}) error {
	for _, e := range edges {
		if _, ok := visited[e.From]; !ok {
			continue
		}
		doc, err := codec.EncodeEdge(vertices, e)
		if err != nil {
			return err
		}
		if err := r.store.InsertEdge(ctx, name, doc); err != nil {
			return fmt.Errorf("failed to store edge %s: %w", doc.Key(), err)
		}
	}
	return nil
}
