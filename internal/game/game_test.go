package game

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/task"
)

// linear builds start -> w1 -> w2 -> end where w2 carries a task.
func linear(t *testing.T) (*Game, map[string]*Waypoint) {
	t.Helper()
	g := NewGame("linear")
	w := map[string]*Waypoint{
		"start": g.NewWaypoint("start"),
		"w1":    g.NewWaypoint("w1"),
		"w2":    g.NewWaypoint("w2", WithItems("key")),
		"end":   g.NewWaypoint("end"),
	}
	mustNil(t, w["start"].AddDestination(w["w1"]))
	mustNil(t, w["w1"].AddDestination(w["w2"]))
	mustNil(t, w["w2"].AddDestination(w["end"]))
	mustNil(t, g.SetStart(w["start"]))
	return g, w
}

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewWaypointAttachesToGame(t *testing.T) {
	g := NewGame("g")
	w := g.NewWaypoint("hall", WithText("a hall"), WithMoneyLimit(5))

	got, ok := g.Waypoint(w.ID)
	if !ok || got != w {
		t.Fatal("expected waypoint to be part of the game")
	}
	if w.Game() != g {
		t.Error("expected waypoint to know its game")
	}
	if w.MoneyLimit != 5 || w.Text != "a hall" {
		t.Errorf("options not applied: %+v", w)
	}
	if !w.IsFinish() {
		t.Error("waypoint without destinations should be a finish")
	}
}

func TestValidateLinearGame(t *testing.T) {
	g, w := linear(t)
	mustNil(t, g.Validate())

	if g.Start() != w["start"] {
		t.Error("expected start to be set")
	}
	if w["start"].IsFinish() {
		t.Error("start should not be a finish")
	}
	if !w["end"].IsFinish() {
		t.Error("end should be a finish")
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	g, w := linear(t)
	mustNil(t, w["end"].AddDestination(w["w1"]))

	err := g.Validate()
	if !errors.Is(err, ErrNotAcyclic) {
		t.Fatalf("expected ErrNotAcyclic, got %v", err)
	}
	var gse *GameStateError
	if !errors.As(err, &gse) {
		t.Errorf("expected *GameStateError, got %T", err)
	}
}

func TestValidateRequiresStart(t *testing.T) {
	g := NewGame("nostart")
	g.NewWaypoint("alone")
	if err := g.Validate(); !errors.Is(err, ErrNoStart) {
		t.Fatalf("expected ErrNoStart, got %v", err)
	}
	if g.StartIsSet() {
		t.Error("start should not be set")
	}
}

func TestSetStartRejectsForeignWaypoint(t *testing.T) {
	g := NewGame("a")
	other := NewGame("b").NewWaypoint("elsewhere")
	if err := g.SetStart(other); !errors.Is(err, ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
}

func TestAddDestinationAcrossGamesFails(t *testing.T) {
	a := NewGame("a").NewWaypoint("a")
	b := NewGame("b").NewWaypoint("b")
	if err := a.AddDestination(b); !errors.Is(err, ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
}

func TestAddTaskAddsEdgeToDestination(t *testing.T) {
	g, w := linear(t)
	secret := g.NewWaypoint("secret")

	tk := task.New("riddle", "?", "answer")
	tk.Destination = secret.ID
	mustNil(t, w["w1"].AddTask(tk))

	if _, ok := g.Edge(w["w1"].ID, secret.ID); !ok {
		t.Error("expected edge w1 -> secret")
	}
	if got, ok := w["w1"].Task(tk.ID); !ok || got != tk {
		t.Error("expected task to be owned by w1")
	}
	mustNil(t, g.Validate())
}

func TestAddTaskWithUnknownDestination(t *testing.T) {
	_, w := linear(t)
	tk := task.New("riddle", "?", "answer")
	tk.Destination = uuid.New()
	if err := w["w1"].AddTask(tk); !errors.Is(err, ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
	if len(w["w1"].Tasks) != 0 {
		t.Error("task should not be attached on failure")
	}
}

func TestWeightedDestination(t *testing.T) {
	g, w := linear(t)
	shortcut := g.NewWaypoint("shortcut")
	mustNil(t, w["start"].AddWeightedDestination(shortcut, 4))

	e, ok := g.Edge(w["start"].ID, shortcut.ID)
	if !ok || e.Weight == nil || *e.Weight != 4 {
		t.Fatalf("expected weight 4, got %+v", e)
	}
	if len(w["start"].Destinations()) != 2 {
		t.Errorf("expected 2 destinations, got %d", len(w["start"].Destinations()))
	}
}

func TestAllPathNodes(t *testing.T) {
	g, w := linear(t)
	g.NewWaypoint("unreachable")

	count := 0
	for range w["w1"].AllPathNodes() {
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 nodes from w1, got %d", count)
	}
}

func TestDialogStartCannotHaveItems(t *testing.T) {
	d := NewDialog()
	hello := d.NewSpeech("hello", Grant("coin"))
	if err := d.SetStart(hello); !errors.Is(err, ErrStartHasItems) {
		t.Fatalf("expected ErrStartHasItems, got %v", err)
	}
	if d.StartIsSet() {
		t.Error("start must stay unset")
	}
}

func TestNewNPCRequiresDialogStart(t *testing.T) {
	d := NewDialog()
	d.NewMail("hi", "body")
	if _, err := NewNPC("Ada", "Lovelace", d); !errors.Is(err, ErrNoStart) {
		t.Fatalf("expected ErrNoStart, got %v", err)
	}
}

func TestFollowUpsRespectWaypointScope(t *testing.T) {
	g, w := linear(t)
	d := NewDialog()
	hello := d.NewSpeech("hello")
	everywhere := d.NewSpeech("anywhere")
	atW1 := d.NewMail("at w1", "only at w1")
	mustNil(t, d.SetStart(hello))
	mustNil(t, hello.AddFollowUp(everywhere))
	mustNil(t, hello.AddFollowUp(atW1, w["w1"]))

	if got := hello.FollowUps(w["start"].ID); len(got) != 1 || got[0] != everywhere {
		t.Errorf("at start expected only the unscoped follow up, got %v", got)
	}
	if got := hello.FollowUps(w["w1"].ID); len(got) != 2 {
		t.Errorf("at w1 expected both follow ups, got %v", got)
	}

	npc, err := NewNPC("Ada", "Lovelace", d)
	mustNil(t, err)
	mustNil(t, g.AddNPC(npc))
	mustNil(t, g.Validate())

	if _, ok := g.Interaction(atW1.ID); !ok {
		t.Error("expected interaction lookup through the game")
	}
	if err := g.AddNPC(npc); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for same full name, got %v", err)
	}
}

func TestFollowUpOutsideDialogFails(t *testing.T) {
	a := NewDialog().NewSpeech("a")
	b := NewDialog().NewSpeech("b")
	if err := a.AddFollowUp(b); !errors.Is(err, ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
}

func TestValidateDanglingInteractionScope(t *testing.T) {
	g, _ := linear(t)
	d := NewDialog()
	hello := d.NewSpeech("hello")
	lost := d.NewSpeech("lost")
	mustNil(t, d.SetStart(hello))
	mustNil(t, hello.AddFollowUp(lost))
	lost.Waypoints = append(lost.Waypoints, uuid.New())

	npc, err := NewNPC("Lost", "Soul", d)
	mustNil(t, err)
	mustNil(t, g.AddNPC(npc))

	if err := g.Validate(); !errors.Is(err, ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
}

func TestAddInteractionUnlocksDestination(t *testing.T) {
	g, w := linear(t)
	vault := g.NewWaypoint("vault")

	d := NewDialog()
	hello := d.NewSpeech("hello")
	password := d.NewMail("password", "it is swordfish", Unlocks(vault))
	mustNil(t, d.SetStart(hello))
	mustNil(t, hello.AddFollowUp(password))
	npc, err := NewNPC("Gate", "Keeper", d)
	mustNil(t, err)
	mustNil(t, g.AddNPC(npc))

	mustNil(t, w["w2"].AddInteraction(password))
	if len(w["w2"].Interactions) != 1 || w["w2"].Interactions[0] != password.ID {
		t.Fatal("expected interaction id to be recorded")
	}
	if _, ok := g.Edge(w["w2"].ID, vault.ID); !ok {
		t.Error("expected edge w2 -> vault")
	}
	mustNil(t, g.Validate())
}

func TestValidateRejectsUnreachableUnlock(t *testing.T) {
	g, _ := linear(t)
	side := g.NewWaypoint("side")
	d := NewDialog()
	hello := d.NewSpeech("hello")
	mustNil(t, d.SetStart(hello))
	mustNil(t, hello.AddFollowUp(d.NewSpeech("psst", Unlocks(side))))
	npc, err := NewNPC("Side", "Door", d)
	mustNil(t, err)
	mustNil(t, g.AddNPC(npc))

	if err := g.Validate(); !errors.Is(err, ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
}

func TestValidateRejectsSharedDialog(t *testing.T) {
	g, _ := linear(t)
	d := NewDialog()
	mustNil(t, d.SetStart(d.NewSpeech("hello")))
	for _, first := range []string{"Ann", "Bea"} {
		npc, err := NewNPC(first, "Echo", d)
		mustNil(t, err)
		mustNil(t, g.AddNPC(npc))
	}
	if err := g.Validate(); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
