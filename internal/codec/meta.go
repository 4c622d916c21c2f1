package codec

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/graph"
	"github.com/AaronLay10/storygraph/internal/store"
)

// EdgeDoc is the stored form of a path or conversation edge.
type EdgeDoc struct {
	Key    string   `json:"_key"`
	From   string   `json:"_from"`
	To     string   `json:"_to"`
	Weight *float64 `json:"weight,omitempty"`
}

// EncodeEdge encodes e between two vertices of the given collection.
func EncodeEdge(vertexCollection string, e graph.Edge) (store.Document, error) {
	return toDocument(EdgeDoc{
		Key:    Hex(e.From) + "-" + Hex(e.To),
		From:   store.VertexID(vertexCollection, Hex(e.From)),
		To:     store.VertexID(vertexCollection, Hex(e.To)),
		Weight: e.Weight,
	})
}

// DecodeEdge decodes an edge document.
func DecodeEdge(doc store.Document) (graph.Edge, error) {
	var d EdgeDoc
	if err := fromDocument(doc, &d); err != nil {
		return graph.Edge{}, err
	}
	from, err := vertexHex(d.From)
	if err != nil {
		return graph.Edge{}, err
	}
	to, err := vertexHex(d.To)
	if err != nil {
		return graph.Edge{}, err
	}
	return graph.Edge{From: from, To: to, Weight: d.Weight}, nil
}

func vertexHex(handle string) (uuid.UUID, error) {
	_, key, err := store.SplitVertexID(handle)
	if err != nil {
		return uuid.Nil, err
	}
	return ParseHex(key)
}

// VertexKey returns the id of a vertex document.
func VertexKey(doc store.Document) (uuid.UUID, error) {
	return ParseHex(doc.Key())
}

// GameDoc is the metadata document of a game, keyed by title.
type GameDoc struct {
	Key     string   `json:"_key"`
	ID      string   `json:"id"`
	Start   string   `json:"start"`
	Image   []byte   `json:"image"`
	Energy  *float64 `json:"energy"`
	Creator string   `json:"creator"`
}

// EncodeGame encodes the metadata of g.
func EncodeGame(g *game.Game) (store.Document, error) {
	start := g.Start()
	if start == nil {
		return nil, game.StateError("encode game", game.ErrNoStart, "game %s", g.Title)
	}
	d := GameDoc{
		Key:    g.Title,
		ID:     Hex(g.ID),
		Start:  Hex(start.ID),
		Image:  g.Image,
		Energy: g.Energy,
	}
	if g.Creator != uuid.Nil {
		d.Creator = Hex(g.Creator)
	}
	return toDocument(d)
}

// DecodeGame returns an empty game carrying the stored metadata, and the
// id of its start waypoint.
func DecodeGame(doc store.Document) (*game.Game, uuid.UUID, error) {
	var d GameDoc
	if err := fromDocument(doc, &d); err != nil {
		return nil, uuid.Nil, err
	}
	g := game.NewGame(d.Key)
	if d.ID != "" {
		id, err := ParseHex(d.ID)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("game %s: %w", d.Key, err)
		}
		g.ID = id
	}
	if d.Creator != "" {
		creator, err := ParseHex(d.Creator)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("game %s creator: %w", d.Key, err)
		}
		g.Creator = creator
	}
	g.Image = d.Image
	g.Energy = d.Energy
	if d.Start == "" {
		return g, uuid.Nil, nil
	}
	start, err := ParseHex(d.Start)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("game %s start: %w", d.Key, err)
	}
	return g, start, nil
}

// DialogDoc is the metadata document of a dialog.
type DialogDoc struct {
	Key   string `json:"_key"`
	Start string `json:"start"`
}

// EncodeDialog encodes the metadata of d.
func EncodeDialog(d *game.Dialog) (store.Document, error) {
	start := d.Start()
	if start == nil {
		return nil, game.StateError("encode dialog", game.ErrNoStart, "dialog %s", d.ID)
	}
	return toDocument(DialogDoc{Key: Hex(d.ID), Start: Hex(start.ID)})
}

// DecodeDialog returns an empty dialog with the stored id, and the id of
// its start interaction.
func DecodeDialog(doc store.Document) (*game.Dialog, uuid.UUID, error) {
	var d DialogDoc
	if err := fromDocument(doc, &d); err != nil {
		return nil, uuid.Nil, err
	}
	id, err := ParseHex(d.Key)
	if err != nil {
		return nil, uuid.Nil, err
	}
	dialog := game.NewDialog()
	dialog.ID = id
	if d.Start == "" {
		return dialog, uuid.Nil, nil
	}
	start, err := ParseHex(d.Start)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("dialog %s start: %w", d.Key, err)
	}
	return dialog, start, nil
}

// NPCDoc is the metadata document of a character of one game.
type NPCDoc struct {
	Key        string `json:"_key"`
	Game       string `json:"game"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Salutation string `json:"salutation"`
	Mail       string `json:"mail"`
	Image      []byte `json:"image"`
	Dialog     string `json:"dialog"`
}

// EncodeNPC encodes a character of the game titled title.
func EncodeNPC(title string, npc *game.NonPlayableCharacter) (store.Document, error) {
	return toDocument(NPCDoc{
		Key:        NPCKey(title, npc.FirstName, npc.LastName),
		Game:       GameGraph(title),
		FirstName:  npc.FirstName,
		LastName:   npc.LastName,
		Salutation: npc.Salutation,
		Mail:       npc.Mail,
		Image:      npc.Image,
		Dialog:     Hex(npc.Dialog.ID),
	})
}

// DecodeNPC decodes a character document.
func DecodeNPC(doc store.Document) (*NPCDoc, error) {
	var d NPCDoc
	if err := fromDocument(doc, &d); err != nil {
		return nil, err
	}
	if _, err := ParseHex(d.Dialog); err != nil {
		return nil, fmt.Errorf("npc %s dialog: %w", d.Key, err)
	}
	return &d, nil
}

// DialogID returns the id of the character's dialog.
func (d *NPCDoc) DialogID() uuid.UUID {
	id, _ := ParseHex(d.Dialog)
	return id
}

// Character binds the decoded dialog. The dialog must have its start set.
func (d *NPCDoc) Character(dialog *game.Dialog) (*game.NonPlayableCharacter, error) {
	npc, err := game.NewNPC(d.FirstName, d.LastName, dialog)
	if err != nil {
		return nil, err
	}
	npc.Salutation = d.Salutation
	npc.Mail = d.Mail
	npc.Image = d.Image
	return npc, nil
}
