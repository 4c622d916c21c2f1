package game

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/storygraph/internal/task"
)

// Definition is the YAML authoring format of a game. Nodes are named
// symbolically and may reference nodes declared later in the file.
type Definition struct {
	Version   int            `yaml:"version"`
	Title     string         `yaml:"title"`
	Image     string         `yaml:"image"`
	Energy    *float64       `yaml:"energy"`
	Start     string         `yaml:"start"`
	Waypoints []WaypointDef  `yaml:"waypoints"`
	NPCs      []CharacterDef `yaml:"npcs"`
}

// WaypointDef declares one waypoint.
type WaypointDef struct {
	Name         string           `yaml:"name"`
	Title        string           `yaml:"title"`
	Description  string           `yaml:"description"`
	Text         string           `yaml:"text"`
	Media        string           `yaml:"media"`
	TimeLimit    float64          `yaml:"time_limit"`
	MoneyLimit   float64          `yaml:"money_limit"`
	TimerVisible bool             `yaml:"timer_visible"`
	Level        *LevelDef        `yaml:"level"`
	Items        []string         `yaml:"items"`
	Budget       float64          `yaml:"budget"`
	Destinations []DestinationDef `yaml:"destinations"`
	Tasks        []TaskDef        `yaml:"tasks"`
	Interactions []string         `yaml:"interactions"`
}

// LevelDef declares a level.
type LevelDef struct {
	Title string `yaml:"title"`
	Icon  string `yaml:"icon"`
}

// DestinationDef declares an edge, optionally costing energy.
type DestinationDef struct {
	To     string   `yaml:"to"`
	Energy *float64 `yaml:"energy"`
}

// TaskDef declares a task. Date solutions are written as YYYY-MM-DD or
// RFC 3339 and require kind "date".
type TaskDef struct {
	Kind        task.Kind `yaml:"kind"`
	Description string    `yaml:"description"`
	Text        string    `yaml:"text"`
	Media       string    `yaml:"media"`
	Solution    any       `yaml:"solution"`
	Ratio       int       `yaml:"ratio"`
	Days        int       `yaml:"days"`
	Offset      float64   `yaml:"offset"`
	Destination string    `yaml:"destination"`
	Items       []string  `yaml:"items"`
	MoneyLimit  float64   `yaml:"money_limit"`
	TimeLimit   float64   `yaml:"time_limit"`
	Budget      float64   `yaml:"budget"`
}

// CharacterDef declares an NPC and its dialog.
type CharacterDef struct {
	FirstName    string           `yaml:"first_name"`
	LastName     string           `yaml:"last_name"`
	Salutation   string           `yaml:"salutation"`
	Mail         string           `yaml:"mail"`
	Image        string           `yaml:"image"`
	Start        string           `yaml:"start"`
	Interactions []InteractionDef `yaml:"interactions"`
}

// InteractionDef declares one dialog interaction.
type InteractionDef struct {
	Name        string          `yaml:"name"`
	Kind        InteractionKind `yaml:"kind"`
	Subject     string          `yaml:"subject"`
	Body        string          `yaml:"body"`
	Content     string          `yaml:"content"`
	Description string          `yaml:"description"`
	MoneyLimit  float64         `yaml:"money_limit"`
	TimeLimit   float64         `yaml:"time_limit"`
	Budget      float64         `yaml:"budget"`
	Items       []string        `yaml:"items"`
	Waypoints   []string        `yaml:"waypoints"`
	Task        *TaskDef        `yaml:"task"`
	Destination string          `yaml:"destination"`
	FollowUps   []string        `yaml:"follow_ups"`
}

// LoadFile reads and builds a game definition from a YAML file.
func LoadFile(path string) (*Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game file: %w", err)
	}
	return Parse(data)
}

// Parse builds a game from YAML.
func Parse(data []byte) (*Game, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse game YAML: %w", err)
	}
	if def.Version != 1 {
		return nil, fmt.Errorf("unsupported game version: %d", def.Version)
	}
	return def.Build()
}

type builder struct {
	game         *Game
	waypoints    map[string]*Waypoint
	interactions map[string]*Interaction
}

// Build turns the definition into a validated Game. Every node is created
// first so that references can point forward.
func (def *Definition) Build() (*Game, error) {
	if strings.TrimSpace(def.Title) == "" {
		return nil, fmt.Errorf("game title is required")
	}
	b := &builder{
		game:         NewGame(def.Title),
		waypoints:    make(map[string]*Waypoint),
		interactions: make(map[string]*Interaction),
	}
	g := b.game
	if def.Image != "" {
		g.Image = []byte(def.Image)
	}
	g.Energy = def.Energy

	for _, wd := range def.Waypoints {
		if err := b.declareWaypoint(wd); err != nil {
			return nil, err
		}
	}
	dialogs := make([]*Dialog, len(def.NPCs))
	for n, cd := range def.NPCs {
		d := NewDialog()
		for _, id := range cd.Interactions {
			if err := b.declareInteraction(d, id); err != nil {
				return nil, err
			}
		}
		dialogs[n] = d
	}

	for n, cd := range def.NPCs {
		if err := b.linkDialog(dialogs[n], cd); err != nil {
			return nil, err
		}
	}
	for _, wd := range def.Waypoints {
		if err := b.linkWaypoint(wd); err != nil {
			return nil, err
		}
	}

	start, err := b.waypoint(def.Start)
	if err != nil {
		return nil, err
	}
	if err := g.SetStart(start); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *builder) declareWaypoint(wd WaypointDef) error {
	name := wd.Name
	if name == "" {
		name = wd.Title
	}
	if _, ok := b.waypoints[name]; ok {
		return StateError("load", ErrDuplicate, "waypoint %q", name)
	}
	title := wd.Title
	if title == "" {
		title = name
	}
	w := b.game.NewWaypoint(title,
		WithDescription(wd.Description),
		WithText(wd.Text),
		WithTimeLimit(wd.TimeLimit),
		WithMoneyLimit(wd.MoneyLimit),
		WithItems(wd.Items...),
		WithBudgetModification(wd.Budget),
	)
	if wd.Media != "" {
		w.Media = []byte(wd.Media)
	}
	w.TimerVisible = wd.TimerVisible
	if wd.Level != nil {
		w.Level = &Level{Title: wd.Level.Title}
		if wd.Level.Icon != "" {
			w.Level.Icon = []byte(wd.Level.Icon)
		}
	}
	b.waypoints[name] = w
	return nil
}

func (b *builder) declareInteraction(d *Dialog, id InteractionDef) error {
	if id.Name == "" {
		return fmt.Errorf("interaction name is required")
	}
	if _, ok := b.interactions[id.Name]; ok {
		return StateError("load", ErrDuplicate, "interaction %q", id.Name)
	}
	opts := []InteractionOption{
		Describe(id.Description),
		Gate(id.MoneyLimit, id.TimeLimit),
		Budget(id.Budget),
		Grant(id.Items...),
	}
	var i *Interaction
	switch id.Kind {
	case KindMail:
		i = d.NewMail(id.Subject, id.Body, opts...)
	case KindSpeech, "":
		i = d.NewSpeech(id.Content, opts...)
	default:
		return fmt.Errorf("interaction %q: unknown kind %q", id.Name, id.Kind)
	}
	b.interactions[id.Name] = i
	return nil
}

func (b *builder) linkDialog(d *Dialog, cd CharacterDef) error {
	for _, id := range cd.Interactions {
		i := b.interactions[id.Name]
		if id.Destination != "" {
			dest, err := b.waypoint(id.Destination)
			if err != nil {
				return err
			}
			i.Destination = dest.ID
		}
		for _, name := range id.Waypoints {
			w, err := b.waypoint(name)
			if err != nil {
				return err
			}
			i.Waypoints = append(i.Waypoints, w.ID)
		}
		if id.Task != nil {
			t, err := b.task(*id.Task)
			if err != nil {
				return fmt.Errorf("interaction %q: %w", id.Name, err)
			}
			i.Task = t
		}
		for _, name := range id.FollowUps {
			next, ok := b.interactions[name]
			if !ok {
				return StateError("load", ErrDangling, "follow up %q of %q", name, id.Name)
			}
			if err := i.AddFollowUp(next); err != nil {
				return err
			}
		}
	}

	start, ok := b.interactions[cd.Start]
	if !ok {
		return StateError("load", ErrNoStart, "npc %s %s", cd.FirstName, cd.LastName)
	}
	if err := d.SetStart(start); err != nil {
		return err
	}
	npc, err := NewNPC(cd.FirstName, cd.LastName, d)
	if err != nil {
		return err
	}
	npc.Salutation = cd.Salutation
	npc.Mail = cd.Mail
	if cd.Image != "" {
		npc.Image = []byte(cd.Image)
	}
	return b.game.AddNPC(npc)
}

func (b *builder) linkWaypoint(wd WaypointDef) error {
	name := wd.Name
	if name == "" {
		name = wd.Title
	}
	w := b.waypoints[name]
	for _, dd := range wd.Destinations {
		dest, err := b.waypoint(dd.To)
		if err != nil {
			return err
		}
		if dd.Energy != nil {
			err = w.AddWeightedDestination(dest, *dd.Energy)
		} else {
			err = w.AddDestination(dest)
		}
		if err != nil {
			return err
		}
	}
	for _, td := range wd.Tasks {
		t, err := b.task(td)
		if err != nil {
			return fmt.Errorf("waypoint %q: %w", name, err)
		}
		if err := w.AddTask(t); err != nil {
			return err
		}
	}
	for _, in := range wd.Interactions {
		i, ok := b.interactions[in]
		if !ok {
			return StateError("load", ErrDangling, "interaction %q required at %q", in, name)
		}
		if err := w.AddInteraction(i); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) waypoint(name string) (*Waypoint, error) {
	w, ok := b.waypoints[name]
	if !ok {
		return nil, StateError("load", ErrDangling, "waypoint %q", name)
	}
	return w, nil
}

func (b *builder) task(td TaskDef) (*task.Task, error) {
	solution, err := solutionValue(td.Kind, td.Solution)
	if err != nil {
		return nil, err
	}
	t := task.New(td.Description, td.Text, solution)
	if td.Kind != "" {
		t.Kind = td.Kind
	}
	if td.Media != "" {
		t.Media = []byte(td.Media)
	}
	if td.Ratio > 0 {
		t.Ratio = td.Ratio
	}
	if td.Days > 0 {
		t.Days = td.Days
	}
	if td.Offset > 0 {
		t.Offset = td.Offset
	}
	t.Items = td.Items
	t.MoneyLimit = td.MoneyLimit
	t.TimeLimit = td.TimeLimit
	t.BudgetModification = td.Budget
	if td.Destination != "" {
		dest, err := b.waypoint(td.Destination)
		if err != nil {
			return nil, err
		}
		t.Destination = dest.ID
	}
	return t, nil
}

// solutionValue narrows a YAML scalar or sequence to a solver type.
func solutionValue(kind task.Kind, v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		if kind == task.KindDate {
			return parseDate(s)
		}
		return s, nil
	case time.Time:
		return s, nil
	case int, bool, float64:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported solution %T", v)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date solution %q", s)
}
