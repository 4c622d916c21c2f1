package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/codec"
	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/play"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/store"
)

// Instances stores snapshots of game instances.
type Instances struct {
	store   store.Store
	games   *Games
	players *Players
	log     *slog.Logger
}

// NewInstances returns an instance repository. Games and players are used
// to rebind a loaded instance.
func NewInstances(s store.Store, games *Games, players *Players, opts ...Option) *Instances {
	o := newOptions(opts)
	return &Instances{store: s, games: games, players: players, log: o.log}
}

// Summary describes a saved instance without loading its game.
type Summary struct {
	ID        uuid.UUID
	Name      string
	Game      string
	CreatedAt time.Time
	Players   int
}

// Save writes a snapshot of gi, replacing the previous one in the same
// transaction. A failed save keeps the previous snapshot.
func (r *Instances) Save(ctx context.Context, gi *play.GameInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := codec.EncodeInstance(gi)
	if err != nil {
		return err
	}
	if err := store.EnsureCollection(ctx, r.store, codec.CollectionInstances); err != nil {
		return failed("save instance", err)
	}

	tx, err := r.store.Begin(ctx, codec.CollectionInstances)
	if err != nil {
		return failed("save instance", err)
	}
	defer tx.Rollback()
	if err := tx.Delete(ctx, doc.Key()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return failed("save instance", err)
	}
	if err := tx.Insert(ctx, doc); err != nil {
		return failed("save instance", fmt.Errorf("failed to store instance %s: %w", doc.Key(), err))
	}
	if err := tx.Commit(); err != nil {
		return failed("save instance", err)
	}
	r.log.Debug("instance saved", "instance", doc.Key(), "players", len(gi.Players))
	events.Emit("info", "instance.saved", "", map[string]interface{}{"instance": doc.Key(), "game": gi.Game.Title})
	return nil
}

// Load reads a saved instance, re-reads its game and rebinds every player
// and NPC state by id.
func (r *Instances) Load(ctx context.Context, id uuid.UUID, opts ...play.Option) (*play.GameInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := r.store.Get(ctx, codec.CollectionInstances, codec.Hex(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read instance %s: %w", codec.Hex(id), err)
	}
	d, err := codec.DecodeInstanceDoc(doc)
	if err != nil {
		return nil, err
	}
	g, err := r.games.Read(ctx, d.Game)
	if err != nil {
		return nil, err
	}
	lookup := func(id uuid.UUID) (*player.Player, error) {
		return r.players.ByID(ctx, id)
	}
	gi, err := codec.DecodeInstance(doc, g, lookup, opts...)
	if err != nil {
		return nil, err
	}
	events.Emit("info", "instance.loaded", "", map[string]interface{}{"instance": doc.Key(), "game": g.Title})
	return gi, nil
}

// Saves lists the instances p plays in.
func (r *Instances) Saves(ctx context.Context, p *player.Player) ([]Summary, error) {
	who := codec.Hex(p.ID)
	return r.summaries(ctx, func(d *codec.InstanceDoc) bool {
		for _, ps := range d.Players {
			if ps.Player == who {
				return true
			}
		}
		return false
	})
}

// Hosts lists the instances p is the game master of.
func (r *Instances) Hosts(ctx context.Context, p *player.Player) ([]Summary, error) {
	who := codec.Hex(p.ID)
	return r.summaries(ctx, func(d *codec.InstanceDoc) bool {
		return d.GameMaster != nil && *d.GameMaster == who
	})
}

func (r *Instances) summaries(ctx context.Context, keep func(*codec.InstanceDoc) bool) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := r.store.All(ctx, codec.CollectionInstances)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	var out []Summary
	for _, doc := range docs {
		d, err := codec.DecodeInstanceDoc(doc)
		if err != nil {
			return nil, err
		}
		if !keep(d) {
			continue
		}
		id, err := codec.ParseHex(d.Key)
		if err != nil {
			return nil, err
		}
		created, err := codec.ParseTime(d.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{ID: id, Name: d.Name, Game: d.Game, CreatedAt: created, Players: len(d.Players)})
	}
	return out, nil
}
