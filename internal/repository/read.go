package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/codec"
	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/store"
)

// Read loads the game titled title with every NPC dialog. A missing game is
// a *game.GameStateError wrapping game.ErrNotFound.
func (r *Games) Read(ctx context.Context, title string) (*game.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := r.store.Get(ctx, codec.CollectionGames, title)
	if errors.Is(err, store.ErrNotFound) {
		return nil, game.StateError("read game", game.ErrNotFound, "game %s", title)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read game %s: %w", title, err)
	}
	g, start, err := codec.DecodeGame(doc)
	if err != nil {
		return nil, err
	}
	p := codec.NewPending()

	npcs, err := r.store.Find(ctx, codec.CollectionNPCs, store.Document{"game": codec.GameGraph(title)})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to list npcs of %s: %w", title, err)
	}
	for _, nd := range npcs {
		npc, err := r.readCharacter(ctx, nd, p)
		if err != nil {
			return nil, err
		}
		if err := g.AddNPC(npc); err != nil {
			return nil, err
		}
	}

	if start == uuid.Nil {
		return nil, game.StateError("read game", game.ErrNoStart, "game %s", title)
	}
	tr, err := r.store.Traverse(ctx, codec.GameGraph(title), store.VertexID(codec.VertexWaypoints, codec.Hex(start)))
	if err != nil {
		return nil, fmt.Errorf("failed to traverse game %s: %w", title, err)
	}
	for _, v := range tr.Vertices {
		w, err := p.Waypoint(v)
		if err != nil {
			return nil, err
		}
		g.Add(w)
		if err := r.readTasks(ctx, w.ID, p); err != nil {
			return nil, err
		}
	}
	var root *game.Waypoint
	for _, path := range tr.Paths {
		if len(path.Edges) == 0 {
			id, err := codec.VertexKey(path.Vertices[0])
			if err != nil {
				return nil, err
			}
			root, _ = g.Waypoint(id)
			continue
		}
		for _, ed := range path.Edges {
			e, err := codec.DecodeEdge(ed)
			if err != nil {
				return nil, err
			}
			from, ok := g.Waypoint(e.From)
			to, ok2 := g.Waypoint(e.To)
			if !ok || !ok2 {
				return nil, game.StateError("read game", game.ErrDangling, "edge %s", ed.Key())
			}
			if e.Weight != nil {
				err = from.AddWeightedDestination(to, *e.Weight)
			} else {
				err = from.AddDestination(to)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if root == nil {
		return nil, game.StateError("read game", game.ErrNoStart, "game %s", title)
	}
	if err := g.SetStart(root); err != nil {
		return nil, err
	}
	if err := codec.Glue(g, p); err != nil {
		return nil, err
	}
	r.log.Debug("game read", "title", title, "waypoints", g.Len(), "npcs", len(g.NPCs))
	events.Emit("info", "game.read", "", map[string]interface{}{"title": title})
	return g, nil
}

func (r *Games) readCharacter(ctx context.Context, doc store.Document, p *codec.Pending) (*game.NonPlayableCharacter, error) {
	nd, err := codec.DecodeNPC(doc)
	if err != nil {
		return nil, err
	}
	meta, err := r.store.Get(ctx, codec.CollectionDialogs, nd.Dialog)
	if err != nil {
		return nil, fmt.Errorf("failed to read dialog of %s: %w", nd.Key, err)
	}
	d, start, err := codec.DecodeDialog(meta)
	if err != nil {
		return nil, err
	}
	if start == uuid.Nil {
		return nil, game.StateError("read dialog", game.ErrNoStart, "dialog %s", nd.Dialog)
	}
	tr, err := r.store.Traverse(ctx, codec.DialogGraph(d.ID), store.VertexID(codec.VertexInteractions, codec.Hex(start)))
	if err != nil {
		return nil, fmt.Errorf("failed to traverse dialog %s: %w", nd.Dialog, err)
	}
	for _, v := range tr.Vertices {
		i, err := p.Interaction(v)
		if err != nil {
			return nil, err
		}
		d.Add(i)
		if err := r.readTasks(ctx, i.ID, p); err != nil {
			return nil, err
		}
	}
	var root *game.Interaction
	for _, path := range tr.Paths {
		if len(path.Edges) == 0 {
			id, err := codec.VertexKey(path.Vertices[0])
			if err != nil {
				return nil, err
			}
			root, _ = d.Interaction(id)
			continue
		}
		for _, ed := range path.Edges {
			e, err := codec.DecodeEdge(ed)
			if err != nil {
				return nil, err
			}
			from, ok := d.Interaction(e.From)
			to, ok2 := d.Interaction(e.To)
			if !ok || !ok2 {
				return nil, game.StateError("read dialog", game.ErrDangling, "edge %s", ed.Key())
			}
			if err := from.AddFollowUp(to); err != nil {
				return nil, err
			}
		}
	}
	if err := d.SetStart(root); err != nil {
		return nil, err
	}
	return nd.Character(d)
}

func (r *Games) readTasks(ctx context.Context, owner uuid.UUID, p *codec.Pending) error {
	docs, err := r.store.Find(ctx, codec.CollectionTasks, store.Document{"for": codec.Hex(owner)})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to read tasks of %s: %w", codec.Hex(owner), err)
	}
	for _, doc := range docs {
		if _, err := p.Task(doc); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the game titled g.Title. Only its creator may delete it;
// any other requester gets a *game.GameStateError and nothing is removed.
func (r *Games) Delete(ctx context.Context, g *game.Game, requester *player.Player) error {
	var id uuid.UUID
	if requester != nil {
		id = requester.ID
	}
	if err := r.delete(ctx, g.Title, id); err != nil {
		return err
	}
	events.Emit("info", "game.deleted", "", map[string]interface{}{"title": g.Title})
	return nil
}

func (r *Games) delete(ctx context.Context, title string, requester uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := r.store.Get(ctx, codec.CollectionGames, title)
	if errors.Is(err, store.ErrNotFound) {
		return game.StateError("delete game", game.ErrNotFound, "game %s", title)
	}
	if err != nil {
		return fmt.Errorf("failed to read game %s: %w", title, err)
	}
	_, start, err := codec.DecodeGame(doc)
	if err != nil {
		return err
	}
	creator := doc.String("creator")
	if creator != "" && creator != codec.Hex(requester) {
		return game.StateError("delete game", game.ErrNotOwner, "game %s", title)
	}

	npcs, err := r.store.Find(ctx, codec.CollectionNPCs, store.Document{"game": codec.GameGraph(title)})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return failed("delete game", err)
	}
	for _, doc := range npcs {
		nd, err := codec.DecodeNPC(doc)
		if err != nil {
			return err
		}
		if err := r.deleteDialog(ctx, nd); err != nil {
			return failed("delete game", err)
		}
	}

	name := codec.GameGraph(title)
	if err := r.deleteTasks(ctx, name, codec.VertexWaypoints, start); err != nil {
		return failed("delete game", err)
	}
	if err := r.store.Delete(ctx, codec.CollectionGames, title); err != nil {
		return failed("delete game", err)
	}
	if err := r.store.DeleteGraph(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return failed("delete game", err)
	}
	r.log.Debug("game deleted", "title", title, "npcs", len(npcs))
	return nil
}

func (r *Games) deleteDialog(ctx context.Context, nd *codec.NPCDoc) error {
	name := codec.DialogGraph(nd.DialogID())
	meta, err := r.store.Get(ctx, codec.CollectionDialogs, nd.Dialog)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		_, start, err := codec.DecodeDialog(meta)
		if err != nil {
			return err
		}
		if err := r.deleteTasks(ctx, name, codec.VertexInteractions, start); err != nil {
			return err
		}
		if err := r.store.Delete(ctx, codec.CollectionDialogs, nd.Dialog); err != nil {
			return err
		}
	}
	if err := r.store.Delete(ctx, codec.CollectionNPCs, nd.Key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := r.store.DeleteGraph(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// deleteTasks removes the task documents owned by every vertex reachable
// from start.
func (r *Games) deleteTasks(ctx context.Context, graphName, vertices string, start uuid.UUID) error {
	if start == uuid.Nil {
		return nil
	}
	tr, err := r.store.Traverse(ctx, graphName, store.VertexID(vertices, codec.Hex(start)))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, v := range tr.Vertices {
		docs, err := r.store.Find(ctx, codec.CollectionTasks, store.Document{"for": v.Key()})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		for _, doc := range docs {
			if err := r.store.Delete(ctx, codec.CollectionTasks, doc.Key()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update replaces the stored game titled g.Title with g, keeping its
// creator.
func (r *Games) Update(ctx context.Context, g *game.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	doc, err := r.store.Get(ctx, codec.CollectionGames, g.Title)
	if errors.Is(err, store.ErrNotFound) {
		return game.StateError("update game", game.ErrNotFound, "game %s", g.Title)
	}
	if err != nil {
		return fmt.Errorf("failed to read game %s: %w", g.Title, err)
	}
	var creator uuid.UUID
	if s := doc.String("creator"); s != "" {
		if creator, err = codec.ParseHex(s); err != nil {
			return err
		}
	}
	if err := r.delete(ctx, g.Title, creator); err != nil {
		return err
	}
	g.Creator = creator
	if err := r.create(ctx, g); err != nil {
		return err
	}
	events.Emit("info", "game.created", "updated", map[string]interface{}{"title": g.Title})
	return nil
}

// Titles lists the stored game titles.
func (r *Games) Titles(ctx context.Context) ([]string, error) {
	return r.keys(ctx, codec.CollectionGames)
}

// Dialogs lists the ids of every stored dialog.
func (r *Games) Dialogs(ctx context.Context) ([]uuid.UUID, error) {
	keys, err := r.keys(ctx, codec.CollectionDialogs)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := codec.ParseHex(k)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *Games) keys(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := r.store.All(ctx, collection)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key())
	}
	return out, nil
}
