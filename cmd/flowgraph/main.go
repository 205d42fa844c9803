package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().command().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state shared by all commands once the root Before hook ran.
type app struct {
	cfg    Config
	logger *slog.Logger
}

func newApp() *app {
	return &app{cfg: defaultConfig(), logger: logging.Discard()}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:                  "flowgraph",
		Usage:                 "Validate and analyze workflow graph documents",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to settings.json",
				Value: settingsPath(),
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "libSQL database path for stored models (overrides FLOWGRAPH_DB_PATH)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
			&cli.StringFlag{
				Name:  "locale",
				Usage: "Language of localized validation messages (en, es)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum automation items simulated at once (0 = all)",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.validateCommand(),
			a.analyzeCommand(),
			a.referenceCommand(),
			a.diagramCommand(),
			a.saveCommand(),
			a.modelsCommand(),
			a.historyCommand(),
			a.serveCommand(),
			newVersionCommand(),
		},
	}
}

// before resolves configuration: defaults, settings.json, env, then flags.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("db") {
		cfg.DBPath = cmd.String("db")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("locale") {
		cfg.Locale = cmd.String("locale")
	}
	if cmd.IsSet("concurrency") {
		cfg.Concurrency = cmd.Int("concurrency")
	}
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}

	a.cfg = cfg
	a.logger = logging.New(cmd.Root().ErrWriter, cfg.LogLevel, cfg.LogFormat)
	return ctx, nil
}

// validator builds a validator and the engine set it shares with the
// automation simulator.
func (a *app) validator() (*validation.WorkflowValidator, *expressions.Set, error) {
	set, err := expressions.NewSet()
	if err != nil {
		return nil, nil, err
	}
	wv, err := validation.NewWorkflowValidator(
		validation.WithLocale(a.cfg.Locale),
		validation.WithLogger(a.logger),
		validation.WithExpressions(set),
	)
	return wv, set, err
}

func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	s, err := store.NewLibSQLStore(a.cfg.dsn())
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s: %w", a.cfg.DBPath, err)
	}
	return s, nil
}

// readDocument reads the FILE argument; "-" reads stdin.
func readDocument(cmd *cli.Command) ([]byte, error) {
	path := cmd.Args().First()
	switch path {
	case "":
		return nil, cli.Exit("a workflow document path is required (use - for stdin)", 1)
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(path)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
