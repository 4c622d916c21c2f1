// Package codec maps games, dialogs, tasks and instances to store documents
// and back.
//
// Decoding is two-phase: Decode* functions turn one document into one value
// and leave references to other nodes as ids; Glue then binds owned tasks
// and verifies that every id resolves against the decoded node set.
package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/store"
)

// Document type tags.
const (
	TypeWaypoint     = "Waypoint"
	TypeTask         = "Task"
	TypeMail         = "Mail"
	TypeSpeech       = "Speech"
	TypeLevel        = "Level"
	TypeGameInstance = "GameInstance"
	TypePlayerState  = "PlayerState"
	TypeNpcState     = "NpcState"
)

// Collection and graph names.
const (
	CollectionGames     = "games"
	CollectionDialogs   = "dialogs"
	CollectionNPCs      = "npcs"
	CollectionTasks     = "tasks"
	CollectionPlayers   = "players"
	CollectionInstances = "instances"

	VertexWaypoints    = "waypoints"
	VertexInteractions = "interactions"
	EdgePath           = "path"
	EdgeConversation   = "conversation"
)

// GameGraph names the waypoint graph of a game.
func GameGraph(title string) string {
	return "game_" + title
}

// DialogGraph names the interaction graph of a dialog.
func DialogGraph(id uuid.UUID) string {
	return "dialog_" + Hex(id)
}

// NPCKey is the document key of a character of a game.
func NPCKey(title, firstName, lastName string) string {
	return title + "-" + firstName + "-" + lastName
}

// Hex renders an id as 32 lowercase hex characters without dashes.
func Hex(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

// ParseHex parses an id rendered by Hex. Dashed forms are accepted too.
func ParseHex(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func optionalHex(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	s := Hex(id)
	return &s
}

func parseOptionalHex(s *string) (uuid.UUID, error) {
	if s == nil || *s == "" {
		return uuid.Nil, nil
	}
	return ParseHex(*s)
}

func hexList(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, Hex(id))
	}
	return out
}

func parseHexList(in []string) ([]uuid.UUID, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(in))
	for _, s := range in {
		id, err := ParseHex(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Items are stored as a list of JSON-encoded strings, or null when empty.
func encodeItems(items []string) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item: %w", err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

// decodeItems accepts items that are not JSON strings by keeping their raw
// text.
func decodeItems(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			out = append(out, raw)
			continue
		}
		out = append(out, s)
	}
	return out
}

func toDocument(v any) (store.Document, error) {
	return store.Normalize(v)
}

func fromDocument(doc store.Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

func expectType(doc store.Document, want ...string) (string, error) {
	got := doc.String("_type")
	for _, w := range want {
		if got == w {
			return got, nil
		}
	}
	return "", fmt.Errorf("document %s: unexpected _type %q", doc.Key(), got)
}
