package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AaronLay10/storygraph/internal/config"
	"github.com/AaronLay10/storygraph/internal/events"
	"github.com/AaronLay10/storygraph/internal/mqtt"
	"github.com/AaronLay10/storygraph/internal/storage/postgres"
	"github.com/AaronLay10/storygraph/internal/storage/sqlite"
	"github.com/AaronLay10/storygraph/internal/store"
	"github.com/AaronLay10/storygraph/internal/store/memory"
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

const usage = `storygraph - author, store and play branching story games.

Usage:
  storygraph [options] <command> [arguments]

Commands:
  validate <file>...                 check YAML game definitions
  import [-as email] <file>...       store YAML game definitions
  list                               list stored games
  show <title>                       print a stored game
  delete [-as email] <title>         delete a stored game
  register <email>                   create a player; the password is read from STORYGRAPH_PASSWORD
  walk [-as email] [-save] <title> <waypoint[=answer]>...
                                     play a stored game along a route
  saves <email>                      list saved instances of a player
  events [-n count]                  print the latest events
  version                            print the version

Options:
`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// run parses the global options and dispatches to a command. out receives
// command output, errW the logs.
func run(ctx context.Context, out, errW io.Writer, args []string) error {
	fset := flag.NewFlagSet("storygraph", flag.ContinueOnError)
	fset.SetOutput(errW)
	fset.Usage = func() {
		fmt.Fprint(errW, usage)
		fset.PrintDefaults()
	}
	logLevel := fset.String("log-level", "info", "Logging level: debug, info, warn or error.")
	logFormat := fset.String("log-format", "text", "Log format: text or json.")
	configPath := fset.String("config", "", "Path to storygraph.yaml. Defaults to $STORYGRAPH_CONFIG.")

	if err := fset.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return usageError("%v", err)
	}
	switch strings.ToLower(*logLevel) {
	case "debug", "info", "warn", "error":
	default:
		return usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	switch strings.ToLower(*logFormat) {
	case "text", "json":
	default:
		return usageError("invalid log-format: must be 'text' or 'json'")
	}
	log := newLogger(strings.ToLower(*logLevel), strings.ToLower(*logFormat), errW)

	if fset.NArg() == 0 {
		fset.Usage()
		return usageError("missing command")
	}
	name, rest := fset.Arg(0), fset.Args()[1:]

	switch name {
	case "version":
		return versionCmd(out)
	case "validate":
		return validateCmd(ctx, out, log, rest)
	}

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	path := env.ConfigPath
	if *configPath != "" {
		path = *configPath
	}
	cfg, err := loadConfig(path, *configPath != "")
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg, env, log)
	if err != nil {
		return err
	}
	defer s.Close()
	defer events.SetSink(nil)

	if cfg.MQTT.Enabled {
		shutdown := startNotifier(ctx, cfg, env, log)
		defer shutdown()
	}

	events.Emit("info", "system.startup", "", map[string]interface{}{
		"engine":  cfg.Name(),
		"driver":  cfg.Driver(),
		"command": name,
	})
	defer events.Emit("info", "system.shutdown", "", map[string]interface{}{"engine": cfg.Name()})

	a := newApp(s, cfg, log, out)
	switch name {
	case "import":
		return a.importCmd(ctx, rest)
	case "list":
		return a.listCmd(ctx)
	case "show":
		return a.showCmd(ctx, rest)
	case "delete":
		return a.deleteCmd(ctx, rest)
	case "register":
		return a.registerCmd(ctx, rest)
	case "walk":
		return a.walkCmd(ctx, rest)
	case "saves":
		return a.savesCmd(ctx, rest)
	case "events":
		return a.eventsCmd(ctx, rest)
	default:
		return usageError("unknown command: %s", name)
	}
}

// loadConfig reads storygraph.yaml. A missing file falls back to the
// defaults unless the path was given explicitly.
func loadConfig(path string, explicit bool) (*config.EngineConfig, error) {
	cfg, err := config.LoadEngineConfig(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return cfg, nil
}

// openStore opens the configured driver. SQL drivers also become the sink
// of the event log.
func openStore(ctx context.Context, cfg *config.EngineConfig, env *config.Env, log *slog.Logger) (store.Store, error) {
	switch cfg.Driver() {
	case config.DriverMemory:
		log.Debug("using in-memory store")
		return memory.New(), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, err
		}
		events.SetSink(db)
		log.Debug("using sqlite store", "path", cfg.Storage.SQLite.Path)
		return db, nil
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, env.Postgres)
		if err != nil {
			return nil, err
		}
		events.SetSink(db)
		log.Debug("using postgres store", "host", env.Postgres.Host, "database", env.Postgres.Database)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver())
	}
}

// startNotifier forwards events to MQTT when the broker is reachable. The
// returned func flushes buffered events and disconnects.
func startNotifier(ctx context.Context, cfg *config.EngineConfig, env *config.Env, log *slog.Logger) func() {
	client := mqtt.NewClient(env.MQTTURL, cfg.MQTTClientID())
	if !client.ConnectOrWarn(log) {
		return func() {}
	}
	n := mqtt.NewNotifier(client, cfg.MQTTPrefix(), log)
	sub := n.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Consume(ctx, sub)
	}()
	return func() {
		events.Unsubscribe(sub)
		<-done
		client.Disconnect()
	}
}
