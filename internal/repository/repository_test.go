package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/storygraph/internal/codec"
	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/graph"
	"github.com/AaronLay10/storygraph/internal/play"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/storage/sqlite"
	"github.com/AaronLay10/storygraph/internal/store"
	"github.com/AaronLay10/storygraph/internal/store/memory"
	"github.com/AaronLay10/storygraph/internal/task"
)

var backends = map[string]func(t *testing.T) store.Store{
	"memory": func(t *testing.T) store.Store { return memory.New() },
	"sqlite": func(t *testing.T) store.Store {
		s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "repo.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	},
}

// diamond is Start -> {Left, Right} -> Finish. Left reaches Finish through a
// task, Right through an edge costing 2 energy. Its NPC has a mail and a
// reply scoped to Left.
func diamond(t *testing.T, title string) *game.Game {
	t.Helper()
	g := game.NewGame(title)
	g.SetEnergy(5)

	start := g.NewWaypoint("Start", game.WithDescription("gate"))
	left := g.NewWaypoint("Left", game.WithItems("torch"))
	right := g.NewWaypoint("Right", game.WithBudgetModification(4))
	finish := g.NewWaypoint("Finish")
	require.NoError(t, g.SetStart(start))

	require.NoError(t, start.AddDestination(left))
	require.NoError(t, start.AddDestination(right))
	require.NoError(t, right.AddWeightedDestination(finish, 2))
	riddle := task.New("Riddle", "What echoes?", "echo")
	riddle.Destination = finish.ID
	require.NoError(t, left.AddTask(riddle))

	d := game.NewDialog()
	hello := d.NewMail("Hi", "Meet me on the left")
	reply := d.NewSpeech("You made it", game.Grant("key"), game.Budget(1))
	require.NoError(t, hello.AddFollowUp(reply, left))
	require.NoError(t, d.SetStart(hello))
	npc, err := game.NewNPC("Ada", "Guide", d)
	require.NoError(t, err)
	require.NoError(t, g.AddNPC(npc))

	require.NoError(t, g.Validate())
	return g
}

func ids[T interface{ NodeID() uuid.UUID }](nodes []T) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.NodeID())
	}
	return out
}

var sortIDs = cmpopts.SortSlices(func(a, b uuid.UUID) bool { return a.String() < b.String() })

var sortEdges = cmpopts.SortSlices(func(a, b graph.Edge) bool {
	if a.From != b.From {
		return a.From.String() < b.From.String()
	}
	return a.To.String() < b.To.String()
})

func TestCreateThenRead(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			games := NewGames(open(t))
			g := diamond(t, "Diamond")
			creator := player.New("maker@example.com", "")
			require.NoError(t, games.Create(ctx, g, creator))

			got, err := games.Read(ctx, "Diamond")
			require.NoError(t, err)
			assert.Equal(t, g.Start().ID, got.Start().ID)
			assert.Equal(t, creator.ID, got.Creator)
			require.NotNil(t, got.Energy)
			assert.Equal(t, 5.0, *got.Energy)
			if diff := cmp.Diff(ids(g.Waypoints()), ids(got.Waypoints()), sortIDs); diff != "" {
				t.Errorf("waypoints mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(g.Edges(), got.Edges(), sortEdges); diff != "" {
				t.Errorf("edges mismatch (-want +got):\n%s", diff)
			}

			left := g.Waypoints()[1]
			gotLeft, ok := got.Waypoint(left.ID)
			require.True(t, ok)
			assert.Equal(t, []string{"torch"}, gotLeft.Items)
			require.Len(t, gotLeft.Tasks, 1)
			assert.Equal(t, left.Tasks[0].ID, gotLeft.Tasks[0].ID)
			assert.Equal(t, "echo", gotLeft.Tasks[0].Solution)
			assert.Equal(t, g.Waypoints()[3].ID, gotLeft.Tasks[0].Destination)

			npc, ok := got.NPC("Ada Guide")
			require.True(t, ok)
			want := g.NPCs[0].Dialog
			assert.Equal(t, want.ID, npc.Dialog.ID)
			assert.Equal(t, want.Start().ID, npc.Dialog.Start().ID)
			if diff := cmp.Diff(ids(want.Interactions()), ids(npc.Dialog.Interactions()), sortIDs); diff != "" {
				t.Errorf("interactions mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want.Edges(), npc.Dialog.Edges(), sortEdges); diff != "" {
				t.Errorf("dialog edges mismatch (-want +got):\n%s", diff)
			}
			reply, ok := npc.Dialog.Interaction(want.Interactions()[1].ID)
			require.True(t, ok)
			assert.Equal(t, []uuid.UUID{left.ID}, reply.Waypoints)
			assert.Equal(t, []string{"key"}, reply.Items)

			titles, err := games.Titles(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Diamond"}, titles)
			dialogs, err := games.Dialogs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{want.ID}, dialogs)
		})
	}
}

func TestCreateRejectsCycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	games := NewGames(s)

	g := game.NewGame("Loop")
	a := g.NewWaypoint("A")
	b := g.NewWaypoint("B")
	require.NoError(t, g.SetStart(a))
	require.NoError(t, a.AddDestination(b))
	require.NoError(t, b.AddDestination(a))

	err := games.Create(ctx, g, nil)
	var gse *game.GameStateError
	require.True(t, errors.As(err, &gse), "got %v", err)
	assert.True(t, errors.Is(err, game.ErrNotAcyclic))

	titles, err := games.Titles(ctx)
	require.NoError(t, err)
	assert.Empty(t, titles)
	has, err := s.HasGraph(ctx, codec.GameGraph("Loop"))
	require.NoError(t, err)
	assert.False(t, has)
}

// assertNothingStored checks that a rejected game left no trace.
func assertNothingStored(t *testing.T, s store.Store, g *game.Game) {
	t.Helper()
	ctx := context.Background()
	titles, err := NewGames(s).Titles(ctx)
	require.NoError(t, err)
	assert.Empty(t, titles)
	names := []string{codec.GameGraph(g.Title)}
	for _, npc := range g.NPCs {
		names = append(names, codec.DialogGraph(npc.Dialog.ID))
		_, err := s.Get(ctx, codec.CollectionNPCs, codec.NPCKey(g.Title, npc.FirstName, npc.LastName))
		assert.True(t, errors.Is(err, store.ErrNotFound), "npc %s: got %v", npc.FullName(), err)
	}
	for _, name := range names {
		has, err := s.HasGraph(ctx, name)
		require.NoError(t, err)
		assert.False(t, has, name)
	}
}

func TestCreateRejectsCyclicDialog(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	g := game.NewGame("Chatter")
	a := g.NewWaypoint("A")
	require.NoError(t, g.SetStart(a))
	d := game.NewDialog()
	ask := d.NewSpeech("ask")
	again := d.NewSpeech("ask again")
	require.NoError(t, d.SetStart(ask))
	require.NoError(t, ask.AddFollowUp(again))
	require.NoError(t, again.AddFollowUp(ask))
	assert.False(t, d.IsAcyclic())
	npc, err := game.NewNPC("Echo", "Nymph", d)
	require.NoError(t, err)
	require.NoError(t, g.AddNPC(npc))

	err = NewGames(s).Create(ctx, g, nil)
	var gse *game.GameStateError
	require.True(t, errors.As(err, &gse), "got %v", err)
	assert.True(t, errors.Is(err, game.ErrNotAcyclic), "got %v", err)
	assertNothingStored(t, s, g)
}

func TestCreateRejectsUnreachableReferences(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, start, side *game.Waypoint, d *game.Dialog, hello *game.Interaction)
	}{
		{
			name: "interaction unlocks unreachable waypoint",
			build: func(t *testing.T, _, side *game.Waypoint, d *game.Dialog, hello *game.Interaction) {
				require.NoError(t, hello.AddFollowUp(d.NewSpeech("go aside", game.Unlocks(side))))
			},
		},
		{
			name: "interaction scoped to unreachable waypoint",
			build: func(t *testing.T, _, side *game.Waypoint, d *game.Dialog, hello *game.Interaction) {
				require.NoError(t, hello.AddFollowUp(d.NewSpeech("only aside"), side))
			},
		},
		{
			name: "waypoint requires unreachable interaction",
			build: func(t *testing.T, start, _ *game.Waypoint, d *game.Dialog, _ *game.Interaction) {
				require.NoError(t, start.AddInteraction(d.NewSpeech("never said")))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := game.NewGame("Aside")
			start := g.NewWaypoint("Start")
			end := g.NewWaypoint("End")
			side := g.NewWaypoint("Side")
			require.NoError(t, start.AddDestination(end))
			require.NoError(t, g.SetStart(start))
			d := game.NewDialog()
			hello := d.NewSpeech("hello")
			require.NoError(t, d.SetStart(hello))
			tt.build(t, start, side, d, hello)
			npc, err := game.NewNPC("Side", "Kick", d)
			require.NoError(t, err)
			require.NoError(t, g.AddNPC(npc))

			s := memory.New()
			err = NewGames(s).Create(context.Background(), g, nil)
			var gse *game.GameStateError
			require.True(t, errors.As(err, &gse), "got %v", err)
			assert.True(t, errors.Is(err, game.ErrDangling), "got %v", err)
			assertNothingStored(t, s, g)
		})
	}
}

func TestCreateRejectsSharedDialog(t *testing.T) {
	s := memory.New()
	g := game.NewGame("Twins")
	a := g.NewWaypoint("A")
	require.NoError(t, g.SetStart(a))
	d := game.NewDialog()
	require.NoError(t, d.SetStart(d.NewSpeech("we speak as one")))
	for _, first := range []string{"Castor", "Pollux"} {
		npc, err := game.NewNPC(first, "Twin", d)
		require.NoError(t, err)
		require.NoError(t, g.AddNPC(npc))
	}

	err := NewGames(s).Create(context.Background(), g, nil)
	var gse *game.GameStateError
	require.True(t, errors.As(err, &gse), "got %v", err)
	assert.True(t, errors.Is(err, game.ErrDuplicate), "got %v", err)
	assertNothingStored(t, s, g)
}

func TestCreateRejectsDuplicateTitle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	games := NewGames(s)
	require.NoError(t, games.Create(ctx, diamond(t, "Twice"), nil))

	second := diamond(t, "Twice")
	err := games.Create(ctx, second, nil)
	assert.True(t, errors.Is(err, game.ErrDuplicate), "got %v", err)

	has, err := s.HasGraph(ctx, codec.DialogGraph(second.NPCs[0].Dialog.ID))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestReadMissingGame(t *testing.T) {
	_, err := NewGames(memory.New()).Read(context.Background(), "Nowhere")
	var gse *game.GameStateError
	require.True(t, errors.As(err, &gse), "got %v", err)
	assert.True(t, errors.Is(err, game.ErrNotFound))
}

func TestDeleteOnlyByCreator(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			games := NewGames(s)
			creator := player.New("maker@example.com", "")
			stranger := player.New("other@example.com", "")
			g := diamond(t, "Owned")
			require.NoError(t, games.Create(ctx, g, creator))

			err := games.Delete(ctx, g, stranger)
			assert.True(t, errors.Is(err, game.ErrNotOwner), "got %v", err)
			kept, err := games.Read(ctx, "Owned")
			require.NoError(t, err)
			assert.Equal(t, 4, kept.Len())

			require.NoError(t, games.Delete(ctx, g, creator))
			_, err = games.Read(ctx, "Owned")
			assert.True(t, errors.Is(err, game.ErrNotFound), "got %v", err)

			for _, graphName := range []string{codec.GameGraph("Owned"), codec.DialogGraph(g.NPCs[0].Dialog.ID)} {
				has, err := s.HasGraph(ctx, graphName)
				require.NoError(t, err)
				assert.False(t, has, graphName)
			}
			for _, coll := range []string{codec.CollectionGames, codec.CollectionDialogs, codec.CollectionNPCs, codec.CollectionTasks} {
				docs, err := s.All(ctx, coll)
				require.NoError(t, err)
				assert.Empty(t, docs, coll)
			}

			require.NoError(t, games.Create(ctx, diamond(t, "Owned"), creator))
		})
	}
}

func TestUpdateKeepsCreator(t *testing.T) {
	ctx := context.Background()
	games := NewGames(memory.New())
	creator := player.New("maker@example.com", "")
	require.NoError(t, games.Create(ctx, diamond(t, "Evolving"), creator))

	next := game.NewGame("Evolving")
	only := next.NewWaypoint("Only")
	require.NoError(t, next.SetStart(only))
	require.NoError(t, games.Update(ctx, next))

	got, err := games.Read(ctx, "Evolving")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, only.ID, got.Start().ID)
	assert.Equal(t, creator.ID, got.Creator)
	assert.Empty(t, got.NPCs)

	err = games.Update(ctx, game.NewGame("Unknown"))
	assert.Error(t, err)
}

func TestPlayers(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			players := NewPlayers(open(t))
			salt, err := player.NewSalt()
			require.NoError(t, err)

			ann, err := players.Create(ctx, "ann@example.com", "secret", salt)
			require.NoError(t, err)
			assert.NotEqual(t, "secret", ann.Password)

			_, err = players.Create(ctx, "ann@example.com", "other", salt)
			var pse *play.PlayerStateError
			require.True(t, errors.As(err, &pse), "got %v", err)
			assert.True(t, errors.Is(err, ErrPlayerExists))

			got, err := players.Authenticate(ctx, "ann@example.com", "secret")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, ann.ID, got.ID)

			got, err = players.Authenticate(ctx, "ann@example.com", "wrong")
			require.NoError(t, err)
			assert.Nil(t, got)
			got, err = players.Authenticate(ctx, "nobody@example.com", "secret")
			require.NoError(t, err)
			assert.Nil(t, got)

			byID, err := players.ByID(ctx, ann.ID)
			require.NoError(t, err)
			assert.Equal(t, "ann@example.com", byID.Email)
			_, err = players.ByID(ctx, uuid.New())
			assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

			emails, err := players.Emails(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"ann@example.com"}, emails)

			require.NoError(t, players.Delete(ctx, "ann@example.com"))
			_, err = players.Read(ctx, "ann@example.com")
			assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
		})
	}
}

func TestInstances(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			games := NewGames(s)
			players := NewPlayers(s)
			instances := NewInstances(s, games, players)

			salt, err := player.NewSalt()
			require.NoError(t, err)
			host, err := players.Create(ctx, "host@example.com", "pw", salt)
			require.NoError(t, err)
			ann, err := players.Create(ctx, "ann@example.com", "pw", salt)
			require.NoError(t, err)
			require.NoError(t, games.Create(ctx, diamond(t, "Shared"), host))

			g, err := games.Read(ctx, "Shared")
			require.NoError(t, err)
			now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
			gi, err := play.NewInstance(g,
				play.WithName("evening"),
				play.WithHost(host),
				play.WithInitialBudget(3),
				play.WithClock(func() time.Time { return now }))
			require.NoError(t, err)
			ps := gi.Join(ann, "Ann", "A")
			now = now.Add(time.Minute)
			var left *game.Waypoint
			for _, w := range g.Start().Destinations() {
				if w.Title == "Left" {
					left = w
				}
			}
			require.NotNil(t, left)
			_, err = ps.MoveTo(left, nil)
			require.NoError(t, err)

			require.NoError(t, instances.Save(ctx, gi))
			// Saving again replaces the snapshot.
			require.NoError(t, instances.Save(ctx, gi))

			got, err := instances.Load(ctx, gi.ID)
			require.NoError(t, err)
			assert.Equal(t, "evening", got.Name)
			require.NotNil(t, got.Host)
			assert.Equal(t, host.ID, got.Host.ID)
			require.Len(t, got.Players, 1)
			assert.Equal(t, ann.ID, got.Players[0].Player.ID)
			assert.Equal(t, left.ID, got.Players[0].CurrentPosition().ID)
			assert.Equal(t, []string{"torch"}, got.Players[0].Items())

			saves, err := instances.Saves(ctx, ann)
			require.NoError(t, err)
			require.Len(t, saves, 1)
			assert.Equal(t, Summary{ID: gi.ID, Name: "evening", Game: "Shared", CreatedAt: gi.CreatedAt, Players: 1}, saves[0])

			hosted, err := instances.Hosts(ctx, host)
			require.NoError(t, err)
			assert.Len(t, hosted, 1)
			hosted, err = instances.Hosts(ctx, ann)
			require.NoError(t, err)
			assert.Empty(t, hosted)

			_, err = instances.Load(ctx, uuid.New())
			assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
		})
	}
}

// failingCommit is a store whose transactions never commit.
type failingCommit struct {
	store.Store
}

func (f failingCommit) Begin(ctx context.Context, collection string) (store.Tx, error) {
	tx, err := f.Store.Begin(ctx, collection)
	if err != nil {
		return nil, err
	}
	return failingTx{tx}, nil
}

type failingTx struct {
	store.Tx
}

func (failingTx) Commit() error { return errors.New("disk full") }

func TestFailedSaveKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	games := NewGames(s)
	players := NewPlayers(s)
	require.NoError(t, games.Create(ctx, diamond(t, "Fragile"), nil))
	g, err := games.Read(ctx, "Fragile")
	require.NoError(t, err)

	gi, err := play.NewInstance(g, play.WithName("first"))
	require.NoError(t, err)
	require.NoError(t, NewInstances(s, games, players).Save(ctx, gi))

	gi.Name = "second"
	err = NewInstances(failingCommit{s}, games, players).Save(ctx, gi)
	require.Error(t, err)

	got, err := NewInstances(s, games, players).Load(ctx, gi.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := memory.New()
	assert.ErrorIs(t, NewGames(s).Create(ctx, diamond(t, "Late"), nil), context.Canceled)
	_, err := NewPlayers(s).Emails(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
