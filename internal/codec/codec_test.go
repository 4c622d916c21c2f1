package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/graph"
	"github.com/AaronLay10/storygraph/internal/store"
	"github.com/AaronLay10/storygraph/internal/task"
)

var structural = []cmp.Option{
	cmpopts.IgnoreUnexported(game.Game{}, game.Waypoint{}, game.Interaction{}, game.Dialog{}),
	cmpopts.EquateEmpty(),
}

// heist has energy, levels, items, budget deltas, every solution kind and
// one NPC whose second interaction is scoped, gated and unlocks a waypoint.
func heist(t *testing.T) *game.Game {
	t.Helper()
	g := game.NewGame("Heist")
	g.SetEnergy(10)
	g.Creator = uuid.New()
	g.Image = []byte{0x89, 'P', 'N', 'G'}

	lobby := g.NewWaypoint("Lobby",
		game.WithDescription("front desk"),
		game.WithLevel(&game.Level{Title: "Act I", Icon: []byte{1, 2, 3}}))
	vault := g.NewWaypoint("Vault",
		game.WithItems("gold", "map"),
		game.WithMoneyLimit(5),
		game.WithTimeLimit(60),
		game.WithTimerVisible(),
		game.WithBudgetModification(-2))
	roof := g.NewWaypoint("Roof", game.WithMedia([]byte("clip")))
	exit := g.NewWaypoint("Exit")
	require.NoError(t, g.SetStart(lobby))

	require.NoError(t, lobby.AddWeightedDestination(roof, 3))
	code := task.New("Code", "Enter the code", 4711)
	code.Destination = vault.ID
	code.Items = []string{"keycard"}
	require.NoError(t, lobby.AddTask(code))
	when := task.New("When", "When did it open?", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC))
	when.BudgetModification = 3
	require.NoError(t, vault.AddTask(when))
	require.NoError(t, vault.AddDestination(exit))
	require.NoError(t, roof.AddDestination(exit))

	d := game.NewDialog()
	hello := d.NewMail("Hello", "Welcome to the job")
	brief := d.NewSpeech("The vault is below",
		game.Grant("blueprint"),
		game.Gate(1, 30),
		game.Budget(5),
		game.Unlocks(exit),
		game.Requires(task.New("Crew", "Who is in?", []string{"Ann", "Bob"})))
	require.NoError(t, hello.AddFollowUp(brief, lobby))
	require.NoError(t, d.SetStart(hello))
	npc, err := game.NewNPC("Mo", "Fixer", d)
	require.NoError(t, err)
	npc.Salutation = "Boss"
	npc.Mail = "mo@example.com"
	require.NoError(t, g.AddNPC(npc))
	require.NoError(t, roof.AddInteraction(brief))

	require.NoError(t, g.Validate())
	return g
}

type encoded struct {
	game         store.Document
	waypoints    []store.Document
	tasks        []store.Document
	edges        []store.Document
	dialog       store.Document
	npc          store.Document
	interactions []store.Document
	followUps    []store.Document
}

func encodeAll(t *testing.T, g *game.Game) encoded {
	t.Helper()
	var e encoded
	var err error
	e.game, err = EncodeGame(g)
	require.NoError(t, err)
	for _, w := range g.Waypoints() {
		doc, err := EncodeWaypoint(w)
		require.NoError(t, err)
		e.waypoints = append(e.waypoints, doc)
		for _, tk := range w.Tasks {
			doc, err := EncodeTask(tk, w.ID)
			require.NoError(t, err)
			e.tasks = append(e.tasks, doc)
		}
	}
	for _, edge := range g.Edges() {
		doc, err := EncodeEdge(VertexWaypoints, edge)
		require.NoError(t, err)
		e.edges = append(e.edges, doc)
	}
	npc := g.NPCs[0]
	e.npc, err = EncodeNPC(g.Title, npc)
	require.NoError(t, err)
	e.dialog, err = EncodeDialog(npc.Dialog)
	require.NoError(t, err)
	for _, i := range npc.Dialog.Interactions() {
		doc, err := EncodeInteraction(i)
		require.NoError(t, err)
		e.interactions = append(e.interactions, doc)
		if i.Task != nil {
			doc, err := EncodeTask(i.Task, i.ID)
			require.NoError(t, err)
			e.tasks = append(e.tasks, doc)
		}
	}
	for _, edge := range npc.Dialog.Edges() {
		doc, err := EncodeEdge(VertexInteractions, edge)
		require.NoError(t, err)
		e.followUps = append(e.followUps, doc)
	}
	return e
}

func decodeAll(t *testing.T, e encoded) (*game.Game, error) {
	t.Helper()
	p := NewPending()
	g, start, err := DecodeGame(e.game)
	require.NoError(t, err)
	for _, doc := range e.waypoints {
		w, err := p.Waypoint(doc)
		require.NoError(t, err)
		g.Add(w)
	}
	for _, doc := range e.tasks {
		_, err := p.Task(doc)
		require.NoError(t, err)
	}
	for _, doc := range e.edges {
		edge, err := DecodeEdge(doc)
		require.NoError(t, err)
		from, ok := g.Waypoint(edge.From)
		require.True(t, ok)
		to, ok := g.Waypoint(edge.To)
		require.True(t, ok)
		if edge.Weight != nil {
			require.NoError(t, from.AddWeightedDestination(to, *edge.Weight))
		} else {
			require.NoError(t, from.AddDestination(to))
		}
	}

	d, dstart, err := DecodeDialog(e.dialog)
	require.NoError(t, err)
	for _, doc := range e.interactions {
		i, err := p.Interaction(doc)
		require.NoError(t, err)
		d.Add(i)
	}
	for _, doc := range e.followUps {
		edge, err := DecodeEdge(doc)
		require.NoError(t, err)
		from, ok := d.Interaction(edge.From)
		require.True(t, ok)
		to, ok := d.Interaction(edge.To)
		require.True(t, ok)
		require.NoError(t, from.AddFollowUp(to))
	}
	first, ok := d.Interaction(dstart)
	require.True(t, ok)
	require.NoError(t, d.SetStart(first))
	nd, err := DecodeNPC(e.npc)
	require.NoError(t, err)
	assert.Equal(t, d.ID, nd.DialogID())
	npc, err := nd.Character(d)
	require.NoError(t, err)
	require.NoError(t, g.AddNPC(npc))

	w, ok := g.Waypoint(start)
	require.True(t, ok)
	require.NoError(t, g.SetStart(w))
	return g, Glue(g, p)
}

func TestGameRoundTrip(t *testing.T) {
	want := heist(t)
	got, err := decodeAll(t, encodeAll(t, want))
	require.NoError(t, err)

	if diff := cmp.Diff(want, got, structural...); diff != "" {
		t.Errorf("game mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Waypoints(), got.Waypoints(), structural...); diff != "" {
		t.Errorf("waypoints mismatch (-want +got):\n%s", diff)
	}
	byEnds := cmpopts.SortSlices(func(a, b graph.Edge) bool {
		return Hex(a.From)+Hex(a.To) < Hex(b.From)+Hex(b.To)
	})
	if diff := cmp.Diff(want.Edges(), got.Edges(), byEnds); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	wd, gd := want.NPCs[0].Dialog, got.NPCs[0].Dialog
	if diff := cmp.Diff(wd.Interactions(), gd.Interactions(), structural...); diff != "" {
		t.Errorf("interactions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wd.Edges(), gd.Edges(), byEnds); diff != "" {
		t.Errorf("follow ups mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want.Start().ID, got.Start().ID)
	assert.Equal(t, wd.Start().ID, gd.Start().ID)
	require.NoError(t, got.Validate())
}

func TestWaypointDocument(t *testing.T) {
	g := heist(t)
	lobby, vault := g.Waypoints()[0], g.Waypoints()[1]

	doc, err := EncodeWaypoint(lobby)
	require.NoError(t, err)
	assert.Equal(t, TypeWaypoint, doc.String("_type"))
	assert.Equal(t, Hex(lobby.ID), doc.Key())
	assert.Len(t, doc.Key(), 32)
	assert.Nil(t, doc["items"])
	assert.Equal(t, []any{Hex(lobby.Tasks[0].ID)}, doc["tasks"])
	assert.JSONEq(t, `{"_type":"Level","title":"Act I","icon":"AQID"}`, doc.String("level"))

	doc, err = EncodeWaypoint(vault)
	require.NoError(t, err)
	assert.Equal(t, "null", doc.String("level"))
	assert.Equal(t, []any{`"gold"`, `"map"`}, doc["items"])
	assert.Equal(t, true, doc["timer_visible"])

	w, tasks, err := DecodeWaypoint(doc)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{vault.Tasks[0].ID}, tasks)
	assert.Empty(t, w.Tasks)
	assert.Equal(t, []string{"gold", "map"}, w.Items)
	assert.Nil(t, w.Level)
}

func TestTaskSolutions(t *testing.T) {
	tests := []struct {
		name     string
		solution any
		kind     string
	}{
		{"none", nil, ""},
		{"text", "open sesame", "string"},
		{"date", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "date"},
		{"int", 42, "int"},
		{"float", 2.5, "float"},
		{"bool", true, "bool"},
		{"list", []string{"a", "b"}, "list"},
	}
	owner := uuid.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := task.New("desc", "text", tt.solution)
			want.Destination = uuid.New()
			want.Media = []byte("img")
			want.MoneyLimit = 7

			doc, err := EncodeTask(want, owner)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, doc.String("solution_type"))
			assert.Equal(t, Hex(owner), doc.String("for"))

			got, gotOwner, err := DecodeTask(doc)
			require.NoError(t, err)
			assert.Equal(t, owner, gotOwner)
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("task mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTaskWithoutOwnerOrDestination(t *testing.T) {
	doc, err := EncodeTask(task.New("d", "t", "x"), uuid.Nil)
	require.NoError(t, err)
	_, hasFor := doc["for"]
	assert.False(t, hasFor)
	assert.Nil(t, doc["destination"])

	got, owner, err := DecodeTask(doc)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, owner)
	assert.False(t, got.HasDestination())
}

func TestTaskSolutionWithoutType(t *testing.T) {
	base := func(solution any) store.Document {
		return store.Document{"_type": TypeTask, "_key": Hex(uuid.New()), "solution": solution, "ratio": 90}
	}
	tests := []struct {
		stored any
		want   any
	}{
		{"text", "text"},
		{7, 7},
		{1.25, 1.25},
		{false, false},
		{[]any{"x", "y"}, []string{"x", "y"}},
	}
	for _, tt := range tests {
		got, _, err := DecodeTask(base(tt.stored))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Solution)
		assert.Equal(t, task.KindFor(tt.want), got.Kind)
	}
}

func TestUnsupportedSolution(t *testing.T) {
	tk := task.New("d", "t", map[string]int{"x": 1})
	_, err := EncodeTask(tk, uuid.Nil)
	require.Error(t, err)
}

func TestInteractionDocuments(t *testing.T) {
	g := heist(t)
	d := g.NPCs[0].Dialog
	hello, brief := d.Interactions()[0], d.Interactions()[1]

	doc, err := EncodeInteraction(hello)
	require.NoError(t, err)
	assert.Equal(t, TypeMail, doc.String("_type"))
	assert.Equal(t, "Hello", doc.String("subject"))
	assert.Equal(t, "Welcome to the job", doc.String("body"))
	_, hasContent := doc["content"]
	assert.False(t, hasContent)
	assert.Nil(t, doc["task"])
	assert.Nil(t, doc["destination"])

	doc, err = EncodeInteraction(brief)
	require.NoError(t, err)
	assert.Equal(t, TypeSpeech, doc.String("_type"))
	assert.Equal(t, "The vault is below", doc.String("content"))
	_, hasSubject := doc["subject"]
	assert.False(t, hasSubject)
	assert.Equal(t, Hex(brief.Task.ID), doc.String("task"))

	got, taskID, err := DecodeInteraction(doc)
	require.NoError(t, err)
	assert.Equal(t, brief.Task.ID, taskID)
	assert.Nil(t, got.Task)
	want := *brief
	want.Task = nil
	if diff := cmp.Diff(&want, got, structural...); diff != "" {
		t.Errorf("interaction mismatch (-want +got):\n%s", diff)
	}

	_, _, err = DecodeInteraction(store.Document{"_type": "Letter", "_key": Hex(uuid.New())})
	require.Error(t, err)
}

func TestEdgeDocument(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	w := 2.5
	doc, err := EncodeEdge(VertexWaypoints, graph.Edge{From: from, To: to, Weight: &w})
	require.NoError(t, err)
	assert.Equal(t, Hex(from)+"-"+Hex(to), doc.Key())
	assert.Equal(t, "waypoints/"+Hex(from), doc.String("_from"))

	e, err := DecodeEdge(doc)
	require.NoError(t, err)
	assert.Equal(t, from, e.From)
	require.NotNil(t, e.Weight)
	assert.Equal(t, 2.5, *e.Weight)

	doc, err = EncodeEdge(VertexInteractions, graph.Edge{From: from, To: to})
	require.NoError(t, err)
	_, hasWeight := doc["weight"]
	assert.False(t, hasWeight)
	assert.Equal(t, "interactions/"+Hex(to), doc.String("_to"))
}

func TestGlueRejectsMissingTask(t *testing.T) {
	e := encodeAll(t, heist(t))
	e.tasks = e.tasks[1:]
	_, err := decodeAll(t, e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, game.ErrDangling), "got %v", err)
	var gse *game.GameStateError
	assert.True(t, errors.As(err, &gse))
}

func TestGlueRejectsTaskOfAnotherOwner(t *testing.T) {
	e := encodeAll(t, heist(t))
	e.tasks[0]["for"] = Hex(uuid.New())
	_, err := decodeAll(t, e)
	assert.True(t, errors.Is(err, game.ErrDangling), "got %v", err)
}

func TestGlueRejectsDanglingReferences(t *testing.T) {
	cases := map[string]func(e *encoded){
		"interaction destination": func(e *encoded) { e.interactions[1]["destination"] = Hex(uuid.New()) },
		"interaction scope":       func(e *encoded) { e.interactions[1]["waypoints"] = []any{Hex(uuid.New())} },
		"waypoint interaction":    func(e *encoded) { e.waypoints[2]["interactions"] = []any{Hex(uuid.New())} },
		"task destination":        func(e *encoded) { e.tasks[0]["destination"] = Hex(uuid.New()) },
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			e := encodeAll(t, heist(t))
			corrupt(&e)
			_, err := decodeAll(t, e)
			assert.True(t, errors.Is(err, game.ErrDangling), "got %v", err)
		})
	}
}

func TestHex(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	assert.Equal(t, "0f8fad5bd9cb469fa16570867728950e", Hex(id))
	back, err := ParseHex(Hex(id))
	require.NoError(t, err)
	assert.Equal(t, id, back)
	_, err = ParseHex("nope")
	require.Error(t, err)
}

func TestNames(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	assert.Equal(t, "game_Heist", GameGraph("Heist"))
	assert.Equal(t, "dialog_0f8fad5bd9cb469fa16570867728950e", DialogGraph(id))
	assert.Equal(t, "Heist-Mo-Fixer", NPCKey("Heist", "Mo", "Fixer"))
}

func TestEncodeGameRequiresStart(t *testing.T) {
	g := game.NewGame("Empty")
	_, err := EncodeGame(g)
	assert.True(t, errors.Is(err, game.ErrNoStart), "got %v", err)
}
