package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/play"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/store"
)

const stampLayout = "2006-01-02 15-04-05"

// FormatTime renders t in UTC as YYYY-MM-DD HH-MM-SS-ffffff.
func FormatTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%06d", t.Format(stampLayout), t.Nanosecond()/int(time.Microsecond))
}

// ParseTime parses a timestamp rendered by FormatTime.
func ParseTime(s string) (time.Time, error) {
	n := strings.LastIndexByte(s, '-')
	if n < 0 || len(s)-n-1 != 6 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	t, err := time.ParseInLocation(stampLayout, s[:n], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	micros, err := strconv.Atoi(s[n+1:])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.Add(time.Duration(micros) * time.Microsecond), nil
}

func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := FormatTime(t)
	return &s
}

func parseOptionalTime(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	return ParseTime(*s)
}

// InstanceDoc is the stored form of a game instance with its player and
// NPC states.
type InstanceDoc struct {
	Type          string           `json:"_type"`
	Key           string           `json:"_key"`
	Name          string           `json:"name"`
	Game          string           `json:"game"`
	GameMaster    *string          `json:"game_master"`
	CreatedAt     string           `json:"created_at"`
	StartsAt      *string          `json:"starts_at"`
	EndsAt        *string          `json:"ends_at"`
	InitialBudget float64          `json:"initial_budget"`
	Players       []PlayerStateDoc `json:"players"`
	NPCs          []NpcStateDoc    `json:"npcs"`
}

// PlayerStateDoc is one player's persona, path, inventory and transcripts.
type PlayerStateDoc struct {
	Type      string                   `json:"_type"`
	Key       string                   `json:"_key"`
	ID        string                   `json:"id"`
	Player    string                   `json:"player"`
	Game      string                   `json:"game"`
	First     string                   `json:"first"`
	Last      string                   `json:"last"`
	Budget    float64                  `json:"budget"`
	Energy    *float64                 `json:"energy"`
	Path      []StepDoc                `json:"path"`
	Dialogs   map[string][]ResponseDoc `json:"dialogs"`
	Inventory map[string][]HoldingDoc  `json:"inventory"`
}

// StepDoc is a timestamped waypoint or interaction reference.
type StepDoc struct {
	At   string `json:"at"`
	Node string `json:"node"`
}

// ResponseDoc is one transcript entry.
type ResponseDoc struct {
	At          string          `json:"at"`
	Interaction string          `json:"interaction"`
	Response    json.RawMessage `json:"response"`
}

// HoldingDoc is one inventory entry; Value is the JSON-encoded item.
type HoldingDoc struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NpcStateDoc is the per-player dialog cursors of one character.
type NpcStateDoc struct {
	Type       string               `json:"_type"`
	Key        string               `json:"_key"`
	Game       string               `json:"game"`
	First      string               `json:"first"`
	Last       string               `json:"last"`
	Dialog     string               `json:"dialog"`
	Salutation string               `json:"salutation"`
	Mail       string               `json:"mail"`
	Image      []byte               `json:"image"`
	Paths      map[string][]StepDoc `json:"paths"`
}

// PlayerStateKey is the document key of a player state.
func PlayerStateKey(email string, instance uuid.UUID) string {
	return email + "-" + Hex(instance)
}

// EncodeInstance encodes gi with every player and NPC state.
func EncodeInstance(gi *play.GameInstance) (store.Document, error) {
	d := InstanceDoc{
		Type:          TypeGameInstance,
		Key:           Hex(gi.ID),
		Name:          gi.Name,
		Game:          gi.Game.Title,
		CreatedAt:     FormatTime(gi.CreatedAt),
		StartsAt:      optionalTime(gi.StartsAt),
		EndsAt:        optionalTime(gi.EndsAt),
		InitialBudget: gi.InitialBudget,
		Players:       make([]PlayerStateDoc, 0, len(gi.Players)),
		NPCs:          make([]NpcStateDoc, 0, len(gi.NPCs)),
	}
	if gi.Host != nil {
		d.GameMaster = optionalHex(gi.Host.ID)
	}
	for _, ps := range gi.Players {
		psd, err := encodePlayerState(gi, ps)
		if err != nil {
			return nil, err
		}
		d.Players = append(d.Players, psd)
	}
	for _, n := range gi.NPCs {
		nd := NpcStateDoc{
			Type:       TypeNpcState,
			Key:        n.NPC.FullName(),
			Game:       Hex(gi.ID),
			First:      n.NPC.FirstName,
			Last:       n.NPC.LastName,
			Dialog:     Hex(n.NPC.Dialog.ID),
			Salutation: n.NPC.Salutation,
			Mail:       n.NPC.Mail,
			Image:      n.NPC.Image,
			Paths:      make(map[string][]StepDoc),
		}
		for _, ps := range gi.Players {
			steps := n.PlayerDialog(ps)
			if steps == nil {
				continue
			}
			out := make([]StepDoc, 0, len(steps))
			for _, s := range steps {
				out = append(out, StepDoc{At: FormatTime(s.At), Node: Hex(s.Interaction.ID)})
			}
			nd.Paths[Hex(ps.ID)] = out
		}
		d.NPCs = append(d.NPCs, nd)
	}
	return toDocument(d)
}

func encodePlayerState(gi *play.GameInstance, ps *play.PlayerState) (PlayerStateDoc, error) {
	d := PlayerStateDoc{
		Type:      TypePlayerState,
		ID:        Hex(ps.ID),
		Game:      Hex(gi.ID),
		First:     ps.FirstName,
		Last:      ps.LastName,
		Budget:    ps.Budget,
		Energy:    ps.Energy,
		Path:      make([]StepDoc, 0, len(ps.Path)),
		Dialogs:   make(map[string][]ResponseDoc, len(ps.Dialogs)),
		Inventory: make(map[string][]HoldingDoc, len(ps.Inventory)),
	}
	email := ""
	if ps.Player != nil {
		d.Player = Hex(ps.Player.ID)
		email = ps.Player.Email
	}
	d.Key = PlayerStateKey(email, gi.ID)

	for _, s := range ps.Path {
		d.Path = append(d.Path, StepDoc{At: FormatTime(s.At), Node: Hex(s.Waypoint.ID)})
	}
	for npc, responses := range ps.Dialogs {
		out := make([]ResponseDoc, 0, len(responses))
		for _, r := range responses {
			raw, err := json.Marshal(r.Response)
			if err != nil {
				return d, fmt.Errorf("failed to encode response: %w", err)
			}
			out = append(out, ResponseDoc{At: FormatTime(r.At), Interaction: Hex(r.Interaction.ID), Response: raw})
		}
		d.Dialogs[npc] = out
	}
	for at, holdings := range ps.Inventory {
		out := make([]HoldingDoc, 0, len(holdings))
		for _, h := range holdings {
			v, err := json.Marshal(h.Item)
			if err != nil {
				return d, fmt.Errorf("failed to encode item: %w", err)
			}
			out = append(out, HoldingDoc{Key: Hex(h.Source), Value: string(v)})
		}
		stamp := FormatTime(at)
		d.Inventory[stamp] = append(d.Inventory[stamp], out...)
	}
	return d, nil
}

// DecodeInstanceDoc decodes the stored form without binding it to a game.
func DecodeInstanceDoc(doc store.Document) (*InstanceDoc, error) {
	if _, err := expectType(doc, TypeGameInstance); err != nil {
		return nil, err
	}
	var d InstanceDoc
	if err := fromDocument(doc, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PlayerLookup resolves a stored player id.
type PlayerLookup func(id uuid.UUID) (*player.Player, error)

// DecodeInstance rebuilds an instance over g, which must be the game the
// instance was saved for. Waypoints and interactions are rebound by id.
func DecodeInstance(doc store.Document, g *game.Game, lookup PlayerLookup, opts ...play.Option) (*play.GameInstance, error) {
	d, err := DecodeInstanceDoc(doc)
	if err != nil {
		return nil, err
	}
	if d.Game != g.Title {
		return nil, fmt.Errorf("instance %s belongs to game %q, not %q", d.Key, d.Game, g.Title)
	}
	id, err := ParseHex(d.Key)
	if err != nil {
		return nil, err
	}
	createdAt, err := ParseTime(d.CreatedAt)
	if err != nil {
		return nil, err
	}
	startsAt, err := parseOptionalTime(d.StartsAt)
	if err != nil {
		return nil, err
	}
	endsAt, err := parseOptionalTime(d.EndsAt)
	if err != nil {
		return nil, err
	}

	opts = append([]play.Option{
		play.WithName(d.Name),
		play.WithInitialBudget(d.InitialBudget),
		play.WithWindow(startsAt, endsAt),
	}, opts...)
	hostID, err := parseOptionalHex(d.GameMaster)
	if err != nil {
		return nil, err
	}
	if hostID != uuid.Nil {
		host, err := lookup(hostID)
		if err != nil {
			return nil, fmt.Errorf("instance %s game master: %w", d.Key, err)
		}
		opts = append(opts, play.WithHost(host))
	}

	gi, err := play.NewInstance(g, opts...)
	if err != nil {
		return nil, err
	}
	gi.ID = id
	gi.CreatedAt = createdAt

	for _, psd := range d.Players {
		ps, err := decodePlayerState(g, psd, lookup)
		if err != nil {
			return nil, err
		}
		gi.Attach(ps)
	}
	for _, nd := range d.NPCs {
		n, ok := gi.NPC(nd.First + " " + nd.Last)
		if !ok {
			return nil, game.StateError("decode instance", game.ErrDangling, "npc %s %s", nd.First, nd.Last)
		}
		for stateHex, steps := range nd.Paths {
			stateID, err := ParseHex(stateHex)
			if err != nil {
				return nil, err
			}
			out := make([]play.DialogStep, 0, len(steps))
			for _, s := range steps {
				at, err := ParseTime(s.At)
				if err != nil {
					return nil, err
				}
				iid, err := ParseHex(s.Node)
				if err != nil {
					return nil, err
				}
				i, ok := n.NPC.Dialog.Interaction(iid)
				if !ok {
					return nil, game.StateError("decode instance", game.ErrDangling, "npc %s interaction %s", n.NPC.FullName(), s.Node)
				}
				out = append(out, play.DialogStep{At: at, Interaction: i})
			}
			n.SetPlayerDialog(stateID, out)
		}
	}
	return gi, nil
}

func decodePlayerState(g *game.Game, d PlayerStateDoc, lookup PlayerLookup) (*play.PlayerState, error) {
	id, err := ParseHex(d.ID)
	if err != nil {
		return nil, err
	}
	ps := &play.PlayerState{
		ID:        id,
		FirstName: d.First,
		LastName:  d.Last,
		Budget:    d.Budget,
		Energy:    d.Energy,
		Inventory: make(map[time.Time][]play.Holding, len(d.Inventory)),
		Dialogs:   make(map[string][]play.Response, len(d.Dialogs)),
	}
	if d.Player != "" {
		pid, err := ParseHex(d.Player)
		if err != nil {
			return nil, err
		}
		if ps.Player, err = lookup(pid); err != nil {
			return nil, fmt.Errorf("player state %s: %w", d.ID, err)
		}
	}
	for _, s := range d.Path {
		at, err := ParseTime(s.At)
		if err != nil {
			return nil, err
		}
		wid, err := ParseHex(s.Node)
		if err != nil {
			return nil, err
		}
		w, ok := g.Waypoint(wid)
		if !ok {
			return nil, game.StateError("decode instance", game.ErrDangling, "player state %s waypoint %s", d.ID, s.Node)
		}
		ps.Path = append(ps.Path, play.Step{At: at, Waypoint: w})
	}
	for npc, responses := range d.Dialogs {
		for _, r := range responses {
			at, err := ParseTime(r.At)
			if err != nil {
				return nil, err
			}
			iid, err := ParseHex(r.Interaction)
			if err != nil {
				return nil, err
			}
			i, ok := g.Interaction(iid)
			if !ok {
				return nil, game.StateError("decode instance", game.ErrDangling, "player state %s interaction %s", d.ID, r.Interaction)
			}
			var v any
			if len(r.Response) > 0 {
				if err := json.Unmarshal(r.Response, &v); err != nil {
					return nil, fmt.Errorf("player state %s response: %w", d.ID, err)
				}
			}
			ps.Dialogs[npc] = append(ps.Dialogs[npc], play.Response{At: at, Interaction: i, Response: v})
		}
	}
	for stamp, holdings := range d.Inventory {
		at, err := ParseTime(stamp)
		if err != nil {
			return nil, err
		}
		for _, h := range holdings {
			src, err := ParseHex(h.Key)
			if err != nil {
				return nil, err
			}
			item := decodeItems([]string{h.Value})[0]
			ps.Inventory[at] = append(ps.Inventory[at], play.Holding{Source: src, Item: item})
		}
	}
	return ps, nil
}
