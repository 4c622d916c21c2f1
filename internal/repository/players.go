package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/codec"
	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/play"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/store"
)

// ErrPlayerExists is wrapped by the error Players.Create returns for a
// taken email.
var ErrPlayerExists = errors.New("player already exists")

type playerDoc struct {
	Key      string `json:"_key"`
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Players stores player accounts keyed by email.
type Players struct {
	store store.Store
	log   *slog.Logger
}

// NewPlayers returns a player repository over s.
func NewPlayers(s store.Store, opts ...Option) *Players {
	o := newOptions(opts)
	return &Players{store: s, log: o.log}
}

// Create hashes password with salt (player.SaltSize bytes) and stores a new
// account. A taken email is a *play.PlayerStateError wrapping
// ErrPlayerExists.
func (r *Players) Create(ctx context.Context, email, password string, salt []byte) (*player.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hashed, err := player.HashPassword(password, salt)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureCollection(ctx, r.store, codec.CollectionPlayers); err != nil {
		return nil, failed("create player", err)
	}
	p := player.New(email, hashed)
	doc, err := store.Normalize(playerDoc{Key: email, ID: codec.Hex(p.ID), Email: email, Password: hashed})
	if err != nil {
		return nil, err
	}
	err = r.store.Insert(ctx, codec.CollectionPlayers, doc)
	if errors.Is(err, store.ErrExists) {
		return nil, &play.PlayerStateError{Player: email, Msg: "email taken", Err: ErrPlayerExists}
	}
	if err != nil {
		return nil, failed("create player", fmt.Errorf("failed to store player %s: %w", email, err))
	}
	r.log.Debug("player stored", "email", email)
	events.Emit("info", "player.created", "", map[string]interface{}{"player": codec.Hex(p.ID)})
	return p, nil
}

func decodePlayer(doc store.Document) (*player.Player, error) {
	id, err := codec.ParseHex(doc.String("id"))
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", doc.Key(), err)
	}
	return &player.Player{ID: id, Email: doc.String("email"), Password: doc.String("password")}, nil
}

// Read loads the account registered under email.
func (r *Players) Read(ctx context.Context, email string) (*player.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := r.store.Get(ctx, codec.CollectionPlayers, email)
	if err != nil {
		return nil, fmt.Errorf("failed to read player %s: %w", email, err)
	}
	return decodePlayer(doc)
}

// ByID loads the account with the given id.
func (r *Players) ByID(ctx context.Context, id uuid.UUID) (*player.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := r.store.Find(ctx, codec.CollectionPlayers, store.Document{"id": codec.Hex(id)})
	if err != nil {
		return nil, fmt.Errorf("failed to find player %s: %w", codec.Hex(id), err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("player %s: %w", codec.Hex(id), store.ErrNotFound)
	}
	return decodePlayer(docs[0])
}

// Authenticate returns the account when password matches, and nil for an
// unknown email or a wrong password.
func (r *Players) Authenticate(ctx context.Context, email, password string) (*player.Player, error) {
	p, err := r.Read(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !p.Authenticate(password) {
		return nil, nil
	}
	events.Emit("info", "player.authenticated", "", map[string]interface{}{"player": codec.Hex(p.ID)})
	return p, nil
}

// Emails lists every registered email.
func (r *Players) Emails(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := r.store.All(ctx, codec.CollectionPlayers)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key())
	}
	return out, nil
}

// Delete removes the account registered under email.
func (r *Players) Delete(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, codec.CollectionPlayers, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to delete player %s: %w", email, err)
		}
		return failed("delete player", fmt.Errorf("failed to delete player %s: %w", email, err))
	}
	events.Emit("info", "player.deleted", "", map[string]interface{}{"email": email})
	return nil
}
