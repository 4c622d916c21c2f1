package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/storygraph/internal/config"
	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/game"
	"github.com/AaronLay10/storygraph/internal/play"
	"github.com/AaronLay10/storygraph/internal/player"
	"github.com/AaronLay10/storygraph/internal/repository"
	"github.com/AaronLay10/storygraph/internal/storage/sqldoc"
	"github.com/AaronLay10/storygraph/internal/store"
	"github.com/AaronLay10/storygraph/internal/version"
)

type app struct {
	store     store.Store
	games     *repository.Games
	players   *repository.Players
	instances *repository.Instances
	cfg       *config.EngineConfig
	log       *slog.Logger
	out       io.Writer
}

func newApp(s store.Store, cfg *config.EngineConfig, log *slog.Logger, out io.Writer) *app {
	games := repository.NewGames(s, repository.WithLogger(log))
	players := repository.NewPlayers(s, repository.WithLogger(log))
	return &app{
		store:     s,
		games:     games,
		players:   players,
		instances: repository.NewInstances(s, games, players, repository.WithLogger(log)),
		cfg:       cfg,
		log:       log,
		out:       out,
	}
}

func versionCmd(out io.Writer) error {
	_, err := fmt.Fprintln(out, "storygraph", version.String())
	return err
}

// loadAll parses game files concurrently, at most workers at a time. The
// result keeps the order of paths.
func loadAll(ctx context.Context, paths []string, workers int) ([]*game.Game, error) {
	games := make([]*game.Game, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for n, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			loaded, err := game.LoadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			games[n] = loaded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return games, nil
}

func validateCmd(ctx context.Context, out io.Writer, log *slog.Logger, args []string) error {
	if len(args) == 0 {
		return usageError("validate needs at least one file")
	}
	var errs []error
	for _, path := range args {
		loaded, err := loadAll(ctx, []string{path}, 1)
		if err == nil {
			err = loaded[0].Validate()
		}
		if err != nil {
			log.Error("invalid game", "file", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(out, "ok %s: %s\n", path, loaded[0])
	}
	return errors.Join(errs...)
}

// player resolves the -as option; an empty email yields nil.
func (a *app) player(ctx context.Context, email string) (*player.Player, error) {
	if email == "" {
		return nil, nil
	}
	p, err := a.players.Read(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, usageError("unknown player %s; register it first", email)
	}
	return p, err
}

func (a *app) importCmd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("import", flag.ContinueOnError)
	as := fset.String("as", "", "Email of the registered creator.")
	workers := fset.Int("workers", 4, "Number of files parsed concurrently.")
	if err := fset.Parse(args); err != nil {
		return usageError("%v", err)
	}
	if fset.NArg() == 0 {
		return usageError("import needs at least one file")
	}
	if *workers < 1 {
		return usageError("workers must be at least 1")
	}
	creator, err := a.player(ctx, *as)
	if err != nil {
		return err
	}
	loaded, err := loadAll(ctx, fset.Args(), *workers)
	if err != nil {
		return err
	}
	for n, g := range loaded {
		if err := a.games.Create(ctx, g, creator); err != nil {
			return fmt.Errorf("%s: %w", fset.Arg(n), err)
		}
		events.Emit("info", "game.imported", "", map[string]interface{}{"title": g.Title, "file": fset.Arg(n)})
		fmt.Fprintf(a.out, "imported %s\n", g)
	}
	return nil
}

func (a *app) listCmd(ctx context.Context) error {
	titles, err := a.games.Titles(ctx)
	if err != nil {
		return err
	}
	slices.Sort(titles)
	for _, t := range titles {
		fmt.Fprintln(a.out, t)
	}
	return nil
}

func (a *app) showCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("show needs a title")
	}
	g, err := a.games.Read(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, g)
	for w := range g.Start().AllPathNodes() {
		var to []string
		for _, d := range w.Destinations() {
			to = append(to, d.Title)
		}
		line := "  " + w.Title
		if len(to) > 0 {
			line += " -> " + strings.Join(to, ", ")
		}
		if len(w.Tasks) > 0 {
			line += fmt.Sprintf(" [%d tasks]", len(w.Tasks))
		}
		fmt.Fprintln(a.out, line)
	}
	for _, npc := range g.NPCs {
		fmt.Fprintf(a.out, "  npc %s: %d interactions\n", npc.FullName(), npc.Dialog.Len())
	}
	return nil
}

func (a *app) deleteCmd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("delete", flag.ContinueOnError)
	as := fset.String("as", "", "Email of the requesting player.")
	if err := fset.Parse(args); err != nil {
		return usageError("%v", err)
	}
	if fset.NArg() != 1 {
		return usageError("delete needs a title")
	}
	requester, err := a.player(ctx, *as)
	if err != nil {
		return err
	}
	g, err := a.games.Read(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	if err := a.games.Delete(ctx, g, requester); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", g.Title)
	return nil
}

func (a *app) registerCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("register needs an email")
	}
	password, err := config.ResolveSecret("STORYGRAPH_PASSWORD")
	if err != nil {
		return err
	}
	if password == "" {
		return usageError("set STORYGRAPH_PASSWORD or STORYGRAPH_PASSWORD_FILE")
	}
	salt, err := player.NewSalt()
	if err != nil {
		return err
	}
	p, err := a.players.Create(ctx, args[0], password, salt)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s\n", p.Email)
	return nil
}

func (a *app) walkCmd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("walk", flag.ContinueOnError)
	as := fset.String("as", "", "Email of the registered player.")
	save := fset.Bool("save", false, "Save the instance after the walk.")
	if err := fset.Parse(args); err != nil {
		return usageError("%v", err)
	}
	if fset.NArg() < 1 {
		return usageError("walk needs a title")
	}
	g, err := a.games.Read(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	p, err := a.player(ctx, *as)
	if err != nil {
		return err
	}
	if p == nil {
		p = player.New("guest", "")
	}
	first, _, _ := strings.Cut(p.Email, "@")
	gi, ps, err := play.NewSinglePlayer(g, p, first, "", play.WithSolver(a.cfg.Solver()))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "at %s\n", ps.CurrentPosition().Title)
	for _, step := range fset.Args()[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		title, raw, hasAnswer := strings.Cut(step, "=")
		var answer any
		if hasAnswer {
			answer = parseAnswer(raw)
		}
		target := destination(ps.CurrentPosition(), title)
		if target == nil {
			return fmt.Errorf("%s is not reachable from %s", title, ps.CurrentPosition().Title)
		}
		unlocked, err := ps.MoveTo(target, answer)
		if err != nil && unlocked == nil {
			return err
		}
		if err != nil {
			a.log.Warn("dialog check failed", "err", err)
		}
		fmt.Fprintf(a.out, "-> %s (budget %g)\n", target.Title, ps.Budget)
		for npc, i := range unlocked {
			if i != nil {
				fmt.Fprintf(a.out, "   %s: %s\n", npc, i)
			}
		}
	}

	moves, err := ps.AvailableMoves(nil)
	if err != nil {
		return err
	}
	var next []string
	for _, w := range moves {
		next = append(next, w.Title)
	}
	slices.Sort(next)
	switch {
	case ps.IsFinished():
		fmt.Fprintln(a.out, "finished")
	case len(next) > 0:
		fmt.Fprintf(a.out, "next: %s\n", strings.Join(next, ", "))
	}
	if items := ps.Items(); len(items) > 0 {
		fmt.Fprintf(a.out, "items: %s\n", strings.Join(items, ", "))
	}

	if *save {
		if err := a.instances.Save(ctx, gi); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "saved %s\n", gi.ID)
	}
	return nil
}

// destination finds the successor of w titled title.
func destination(w *game.Waypoint, title string) *game.Waypoint {
	for _, d := range w.Destinations() {
		if d.Title == title {
			return d
		}
	}
	return nil
}

func (a *app) savesCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("saves needs an email")
	}
	p, err := a.player(ctx, args[0])
	if err != nil {
		return err
	}
	played, err := a.instances.Saves(ctx, p)
	if err != nil {
		return err
	}
	hosted, err := a.instances.Hosts(ctx, p)
	if err != nil {
		return err
	}
	for _, s := range played {
		fmt.Fprintf(a.out, "%s %s %q %s\n", s.ID, s.Game, s.Name, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	for _, s := range hosted {
		fmt.Fprintf(a.out, "%s %s %q %s host of %d\n", s.ID, s.Game, s.Name, s.CreatedAt.Format("2006-01-02 15:04"), s.Players)
	}
	return nil
}

// eventsCmd prints the event log oldest first. SQL stores keep it across
// runs; otherwise only the events of this process are known.
func (a *app) eventsCmd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("events", flag.ContinueOnError)
	n := fset.Int("n", 20, "Number of events to print.")
	if err := fset.Parse(args); err != nil {
		return usageError("%v", err)
	}
	if *n < 1 {
		return usageError("n must be at least 1")
	}
	db, ok := a.store.(*sqldoc.DB)
	if !ok {
		for _, e := range events.RecentEvents(*n) {
			a.printEvent(e.Timestamp, e.Level, e.Name, e.Fields)
		}
		return nil
	}
	rows, err := db.Events(ctx, *n)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	for _, r := range slices.Backward(rows) {
		a.printEvent(r.Timestamp.Format(time.RFC3339Nano), r.Level, r.Event, r.Fields)
	}
	return nil
}

func (a *app) printEvent(ts, level, name string, fields map[string]interface{}) {
	line := fmt.Sprintf("%s %-5s %s", ts, level, name)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		line += fmt.Sprintf(" %s=%v", k, fields[k])
	}
	fmt.Fprintln(a.out, line)
}
