package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/store"
	"github.com/AaronLay10/storygraph/internal/task"
)

// WaypointDoc is the stored form of a waypoint.
type WaypointDoc struct {
	Type               string   `json:"_type"`
	Key                string   `json:"_key"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Text               string   `json:"text"`
	Media              []byte   `json:"media"`
	TimeLimit          float64  `json:"time_limit"`
	MoneyLimit         float64  `json:"money_limit"`
	TimerVisible       bool     `json:"timer_visible"`
	Level              string   `json:"level"`
	Tasks              []string `json:"tasks"`
	Items              []string `json:"items"`
	Interactions       []string `json:"interactions"`
	BudgetModification float64  `json:"budget_modification"`
}

// LevelDoc is embedded in WaypointDoc.Level as a JSON string.
type LevelDoc struct {
	Type  string `json:"_type"`
	Title string `json:"title"`
	Icon  []byte `json:"icon"`
}

// TaskDoc is the stored form of a task.
type TaskDoc struct {
	Type               string          `json:"_type"`
	Key                string          `json:"_key"`
	For                string          `json:"for,omitempty"`
	Kind               string          `json:"kind"`
	Destination        *string         `json:"destination"`
	Description        string          `json:"description"`
	Text               string          `json:"text"`
	Solution           json.RawMessage `json:"solution"`
	SolutionType       string          `json:"solution_type"`
	Media              []byte          `json:"media"`
	Items              []string        `json:"items"`
	Ratio              int             `json:"ratio"`
	Days               int             `json:"days"`
	Offset             float64         `json:"offset"`
	MoneyLimit         float64         `json:"money_limit"`
	TimeLimit          float64         `json:"time_limit"`
	BudgetModification float64         `json:"budget_modification"`
}

// InteractionDoc is the stored form of a Mail or Speech interaction.
type InteractionDoc struct {
	Type               string   `json:"_type"`
	Key                string   `json:"_key"`
	Destination        *string  `json:"destination"`
	Description        string   `json:"description"`
	MoneyLimit         float64  `json:"money_limit"`
	TimeLimit          float64  `json:"time_limit"`
	BudgetModification float64  `json:"budget_modification"`
	Waypoints          []string `json:"waypoints"`
	Task               *string  `json:"task"`
	Items              []string `json:"items"`
	Subject            *string  `json:"subject,omitempty"`
	Body               *string  `json:"body,omitempty"`
	Content            *string  `json:"content,omitempty"`
}

// Solution type tags.
const (
	solutionString = "string"
	solutionDate   = "date"
	solutionInt    = "int"
	solutionFloat  = "float"
	solutionBool   = "bool"
	solutionList   = "list"
)

// EncodeWaypoint encodes w. Tasks are referenced by id; they are stored
// separately with EncodeTask.
func EncodeWaypoint(w *game.Waypoint) (store.Document, error) {
	level := "null"
	if w.Level != nil {
		b, err := json.Marshal(LevelDoc{Type: TypeLevel, Title: w.Level.Title, Icon: w.Level.Icon})
		if err != nil {
			return nil, fmt.Errorf("failed to encode level: %w", err)
		}
		level = string(b)
	}
	items, err := encodeItems(w.Items)
	if err != nil {
		return nil, err
	}
	tasks := make([]string, 0, len(w.Tasks))
	for _, t := range w.Tasks {
		tasks = append(tasks, Hex(t.ID))
	}
	return toDocument(WaypointDoc{
		Type:               TypeWaypoint,
		Key:                Hex(w.ID),
		Title:              w.Title,
		Description:        w.Description,
		Text:               w.Text,
		Media:              w.Media,
		TimeLimit:          w.TimeLimit,
		MoneyLimit:         w.MoneyLimit,
		TimerVisible:       w.TimerVisible,
		Level:              level,
		Tasks:              tasks,
		Items:              items,
		Interactions:       hexList(w.Interactions),
		BudgetModification: w.BudgetModification,
	})
}

// DecodeWaypoint decodes a waypoint document. The waypoint has no tasks
// yet; their ids are returned for Glue.
func DecodeWaypoint(doc store.Document) (*game.Waypoint, []uuid.UUID, error) {
	if _, err := expectType(doc, TypeWaypoint); err != nil {
		return nil, nil, err
	}
	var d WaypointDoc
	if err := fromDocument(doc, &d); err != nil {
		return nil, nil, err
	}
	id, err := ParseHex(d.Key)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := parseHexList(d.Tasks)
	if err != nil {
		return nil, nil, fmt.Errorf("waypoint %s tasks: %w", d.Key, err)
	}
	interactions, err := parseHexList(d.Interactions)
	if err != nil {
		return nil, nil, fmt.Errorf("waypoint %s interactions: %w", d.Key, err)
	}
	w := &game.Waypoint{
		ID:                 id,
		Title:              d.Title,
		Description:        d.Description,
		Text:               d.Text,
		Media:              d.Media,
		TimeLimit:          d.TimeLimit,
		MoneyLimit:         d.MoneyLimit,
		TimerVisible:       d.TimerVisible,
		Interactions:       interactions,
		Items:              decodeItems(d.Items),
		BudgetModification: d.BudgetModification,
	}
	if d.Level != "" && d.Level != "null" {
		var l LevelDoc
		if err := json.Unmarshal([]byte(d.Level), &l); err != nil {
			return nil, nil, fmt.Errorf("waypoint %s level: %w", d.Key, err)
		}
		w.Level = &game.Level{Title: l.Title, Icon: l.Icon}
	}
	return w, tasks, nil
}

// EncodeTask encodes t. owner is the waypoint or interaction the task
// belongs to; uuid.Nil omits the "for" tag.
func EncodeTask(t *task.Task, owner uuid.UUID) (store.Document, error) {
	solution, kind, err := encodeSolution(t.Solution)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	items, err := encodeItems(t.Items)
	if err != nil {
		return nil, err
	}
	d := TaskDoc{
		Type:               TypeTask,
		Key:                Hex(t.ID),
		Kind:               string(t.Kind),
		Destination:        optionalHex(t.Destination),
		Description:        t.Description,
		Text:               t.Text,
		Solution:           solution,
		SolutionType:       kind,
		Media:              t.Media,
		Items:              items,
		Ratio:              t.Ratio,
		Days:               t.Days,
		Offset:             t.Offset,
		MoneyLimit:         t.MoneyLimit,
		TimeLimit:          t.TimeLimit,
		BudgetModification: t.BudgetModification,
	}
	if owner != uuid.Nil {
		d.For = Hex(owner)
	}
	return toDocument(d)
}

// DecodeTask decodes a task document and returns the owner named by its
// "for" tag (uuid.Nil when absent).
func DecodeTask(doc store.Document) (*task.Task, uuid.UUID, error) {
	if _, err := expectType(doc, TypeTask); err != nil {
		return nil, uuid.Nil, err
	}
	var d TaskDoc
	if err := fromDocument(doc, &d); err != nil {
		return nil, uuid.Nil, err
	}
	id, err := ParseHex(d.Key)
	if err != nil {
		return nil, uuid.Nil, err
	}
	var owner uuid.UUID
	if d.For != "" {
		if owner, err = ParseHex(d.For); err != nil {
			return nil, uuid.Nil, fmt.Errorf("task %s owner: %w", d.Key, err)
		}
	}
	dest, err := parseOptionalHex(d.Destination)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("task %s destination: %w", d.Key, err)
	}
	solution, err := decodeSolution(d.Solution, d.SolutionType)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("task %s: %w", d.Key, err)
	}
	kind := task.Kind(d.Kind)
	if kind == "" {
		kind = task.KindFor(solution)
	}
	return &task.Task{
		ID:                 id,
		Kind:               kind,
		Description:        d.Description,
		Text:               d.Text,
		Media:              d.Media,
		Solution:           solution,
		Ratio:              d.Ratio,
		Days:               d.Days,
		Offset:             d.Offset,
		Destination:        dest,
		Items:              decodeItems(d.Items),
		MoneyLimit:         d.MoneyLimit,
		TimeLimit:          d.TimeLimit,
		BudgetModification: d.BudgetModification,
	}, owner, nil
}

func encodeSolution(v any) (json.RawMessage, string, error) {
	var (
		kind string
		out  any = v
	)
	switch s := v.(type) {
	case nil:
		return nil, "", nil
	case string:
		kind = solutionString
	case time.Time:
		kind = solutionDate
		out = s.UTC().Format(time.RFC3339Nano)
	case int:
		kind = solutionInt
	case float64:
		kind = solutionFloat
	case bool:
		kind = solutionBool
	case []string:
		kind = solutionList
	default:
		return nil, "", fmt.Errorf("unsupported solution type %T", v)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode solution: %w", err)
	}
	return b, kind, nil
}

func decodeSolution(raw json.RawMessage, kind string) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var err error
	switch kind {
	case solutionString:
		var s string
		err = json.Unmarshal(raw, &s)
		return s, err
	case solutionDate:
		var s string
		if err = json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	case solutionInt:
		var n int
		err = json.Unmarshal(raw, &n)
		return n, err
	case solutionFloat:
		var f float64
		err = json.Unmarshal(raw, &f)
		return f, err
	case solutionBool:
		var b bool
		err = json.Unmarshal(raw, &b)
		return b, err
	case solutionList:
		var l []string
		err = json.Unmarshal(raw, &l)
		return l, err
	case "":
		return inferSolution(raw)
	default:
		return nil, fmt.Errorf("unknown solution type %q", kind)
	}
}

// inferSolution reads documents written without a solution_type.
func inferSolution(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case float64:
		if s == float64(int(s)) {
			return int(s), nil
		}
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, fmt.Sprint(e))
		}
		return out, nil
	case string, bool:
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported stored solution %s", raw)
	}
}

// EncodeInteraction encodes i. Its task is referenced by id and stored
// separately with EncodeTask.
func EncodeInteraction(i *game.Interaction) (store.Document, error) {
	items, err := encodeItems(i.Items)
	if err != nil {
		return nil, err
	}
	d := InteractionDoc{
		Key:                Hex(i.ID),
		Destination:        optionalHex(i.Destination),
		Description:        i.Description,
		MoneyLimit:         i.MoneyLimit,
		TimeLimit:          i.TimeLimit,
		BudgetModification: i.BudgetModification,
		Waypoints:          hexList(i.Waypoints),
		Items:              items,
	}
	if i.Task != nil {
		d.Task = optionalHex(i.Task.ID)
	}
	switch i.Kind {
	case game.KindMail:
		d.Type = TypeMail
		d.Subject, d.Body = &i.Subject, &i.Body
	case game.KindSpeech:
		d.Type = TypeSpeech
		d.Content = &i.Content
	default:
		return nil, fmt.Errorf("interaction %s: unknown kind %q", i.ID, i.Kind)
	}
	return toDocument(d)
}

// DecodeInteraction decodes a Mail or Speech document. The interaction has
// no task yet; the task id (uuid.Nil when none) is returned for Glue.
func DecodeInteraction(doc store.Document) (*game.Interaction, uuid.UUID, error) {
	typ, err := expectType(doc, TypeMail, TypeSpeech)
	if err != nil {
		return nil, uuid.Nil, err
	}
	var d InteractionDoc
	if err := fromDocument(doc, &d); err != nil {
		return nil, uuid.Nil, err
	}
	id, err := ParseHex(d.Key)
	if err != nil {
		return nil, uuid.Nil, err
	}
	dest, err := parseOptionalHex(d.Destination)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("interaction %s destination: %w", d.Key, err)
	}
	taskID, err := parseOptionalHex(d.Task)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("interaction %s task: %w", d.Key, err)
	}
	waypoints, err := parseHexList(d.Waypoints)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("interaction %s waypoints: %w", d.Key, err)
	}
	i := &game.Interaction{
		ID:                 id,
		Description:        d.Description,
		MoneyLimit:         d.MoneyLimit,
		TimeLimit:          d.TimeLimit,
		BudgetModification: d.BudgetModification,
		Items:              decodeItems(d.Items),
		Waypoints:          waypoints,
		Destination:        dest,
	}
	if typ == TypeMail {
		i.Kind = game.KindMail
		i.Subject, i.Body = deref(d.Subject), deref(d.Body)
	} else {
		i.Kind = game.KindSpeech
		i.Content = deref(d.Content)
	}
	return i, taskID, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
