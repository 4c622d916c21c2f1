package game

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/storygraph/internal/task"
)

const heistYAML = `
version: 1
title: Heist
energy: 10
start: lobby
npcs:
  - first_name: Vera
    last_name: Marsh
    salutation: Ms.
    start: hello
    interactions:
      - name: hello
        kind: speech
        content: Psst.
        follow_ups: [code]
      - name: code
        kind: mail
        subject: The code
        body: It's 1234.
        waypoints: [lobby]
        destination: vault
waypoints:
  - name: lobby
    title: Lobby
    destinations:
      - to: stairs
        energy: 3
    interactions: [code]
  - name: stairs
    title: Stairs
    items: [flashlight]
    tasks:
      - description: When did the bank open?
        kind: date
        solution: 1901-05-02
        destination: vault
      - description: Pick the tools
        solution: [drill, crowbar]
  - name: vault
    title: Vault
`

func TestParseResolvesForwardReferences(t *testing.T) {
	g, err := Parse([]byte(heistYAML))
	require.NoError(t, err)

	assert.Equal(t, "Heist", g.Title)
	require.NotNil(t, g.Energy)
	assert.Equal(t, 10.0, *g.Energy)
	require.Equal(t, 3, g.Len())
	assert.Equal(t, "Lobby", g.Start().Title)

	byTitle := map[string]*Waypoint{}
	for _, w := range g.Waypoints() {
		byTitle[w.Title] = w
	}
	lobby, stairs, vault := byTitle["Lobby"], byTitle["Stairs"], byTitle["Vault"]

	e, ok := g.Edge(lobby.ID, stairs.ID)
	require.True(t, ok)
	require.NotNil(t, e.Weight)
	assert.Equal(t, 3.0, *e.Weight)

	_, ok = g.Edge(lobby.ID, vault.ID)
	assert.True(t, ok, "interaction destination should add lobby -> vault")
	_, ok = g.Edge(stairs.ID, vault.ID)
	assert.True(t, ok, "task destination should add stairs -> vault")

	require.Len(t, stairs.Tasks, 2)
	date := stairs.Tasks[0]
	assert.Equal(t, task.KindDate, date.Kind)
	assert.Equal(t, time.Date(1901, time.May, 2, 0, 0, 0, 0, time.UTC), date.Solution)
	assert.Equal(t, vault.ID, date.Destination)
	assert.Equal(t, []string{"drill", "crowbar"}, stairs.Tasks[1].Solution)
	assert.Equal(t, []string{"flashlight"}, stairs.Items)

	npc, ok := g.NPC("Vera Marsh")
	require.True(t, ok)
	assert.Equal(t, "Ms.", npc.Salutation)
	hello := npc.Dialog.Start()
	require.NotNil(t, hello)
	assert.Equal(t, KindSpeech, hello.Kind)

	followUps := hello.FollowUps(lobby.ID)
	require.Len(t, followUps, 1)
	code := followUps[0]
	assert.Equal(t, KindMail, code.Kind)
	assert.Equal(t, vault.ID, code.Destination)
	assert.Equal(t, []uuid.UUID{lobby.ID}, code.Waypoints)
	assert.Empty(t, hello.FollowUps(stairs.ID))
	assert.Equal(t, code.ID, lobby.Interactions[0])
}

func TestParseRejectsUnknownReference(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
title: Broken
start: a
waypoints:
  - name: a
    destinations:
      - to: nowhere
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDangling)
}

func TestParseRejectsCycle(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
title: Loop
start: a
waypoints:
  - name: a
    destinations: [{to: b}]
  - name: b
    destinations: [{to: a}]
`))
	assert.ErrorIs(t, err, ErrNotAcyclic)
}

func TestParseRejectsWrongVersion(t *testing.T) {
	_, err := Parse([]byte("version: 2\ntitle: x\n"))
	assert.ErrorContains(t, err, "unsupported game version")
}

func TestParseRejectsDialogStartWithItems(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
title: Greedy
start: a
waypoints:
  - name: a
npcs:
  - first_name: Rich
    last_name: Guy
    start: hi
    interactions:
      - name: hi
        content: take this
        items: [gold]
`))
	assert.ErrorIs(t, err, ErrStartHasItems)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(heistYAML), 0o644))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Heist", g.Title)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read game file")
}
