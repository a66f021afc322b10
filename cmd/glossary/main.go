package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/digitalsleuth/dfir-glossary/pkg/config"
	"github.com/digitalsleuth/dfir-glossary/pkg/db"
	"github.com/digitalsleuth/dfir-glossary/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := newApp(os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		cancel()
		os.Exit(code)
	}
}

// env carries what Before resolved to the command actions.
type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func newApp(stdout, stderr io.Writer) *cli.App {
	rt := &env{log: zerolog.Nop()}

	return &cli.App{
		Name:      "glossary",
		Usage:     "Maintain and search a DFIR glossary database",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to glossary.yaml (default: next to the executable)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the glossary database (default: glossdb.sqlite next to the executable)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (console, json)",
			},
		},
		Before: rt.setup,
		// Errors are reported by main so tests can run the app in-process.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create an empty glossary database",
				Action: rt.initCommand,
			},
			{
				Name:  "list",
				Usage: "List every entry",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "by-id",
						Usage: "Order by insertion instead of by term",
					},
				},
				Action: rt.listCommand,
			},
			{
				Name:      "search",
				Usage:     "Find entries whose term or definition contains the query",
				ArgsUsage: "<query>",
				Action:    rt.searchCommand,
			},
			{
				Name:      "show",
				Usage:     "Print one entry",
				ArgsUsage: "<term>",
				Action:    rt.showCommand,
			},
			{
				Name:      "add",
				Usage:     "Add a new entry",
				ArgsUsage: "<term>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "definition",
						Aliases: []string{"D"},
						Usage:   "Definition text",
					},
					&cli.StringFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Where the definition comes from",
					},
				},
				Action: rt.addCommand,
			},
			{
				Name:      "update",
				Usage:     "Replace the definition or source of an entry",
				ArgsUsage: "<term> <definition|source> <value>",
				Action:    rt.updateCommand,
			},
			{
				Name:      "remove",
				Usage:     "Remove entries by term or id",
				ArgsUsage: "[term...]",
				Flags: []cli.Flag{
					&cli.Int64SliceFlag{
						Name:  "id",
						Usage: "Remove the entry with this id (repeatable)",
					},
				},
				Action: rt.removeCommand,
			},
			{
				Name:      "export",
				Usage:     "Write entries to CSV",
				ArgsUsage: "[term...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "CSV file to write (default: stdout)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Export every entry",
					},
				},
				Action: rt.exportCommand,
			},
			{
				Name:      "import",
				Usage:     "Import entries from a .csv, .json or .yaml file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "policy",
						Usage: "What to do with existing terms (skip, fill-missing, overwrite)",
						Value: "skip",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records committed per transaction",
						Value: 100,
					},
				},
				Action: rt.importCommand,
			},
			{
				Name:  "fetch-db",
				Usage: "Download the published glossary database",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Replace an existing database",
					},
				},
				Action: rt.fetchCommand,
			},
			{
				Name:      "scan",
				Usage:     "Find glossary terms and candidate terms in web pages or files",
				ArgsUsage: "<url|file>...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of sources processed at once (default from config)",
					},
					&cli.IntFlag{
						Name:  "candidates",
						Usage: "Maximum candidate terms printed per source",
						Value: 10,
					},
				},
				Action: rt.scanCommand,
			},
		},
	}
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (rt *env) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if v := c.String("db"); v != "" {
		cfg.Database = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	log, err := logger.New(c.App.ErrWriter, level, cfg.Log.Format)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	rt.cfg = cfg
	rt.log = log
	rt.log.Debug().Str("database", cfg.Database).Msg("configuration loaded")
	return nil
}

// openStore opens the configured database. A missing file is reported with
// the expected location and where to get a copy.
func (rt *env) openStore() (*db.Store, error) {
	store, err := db.Open(rt.cfg.Database, db.WithLogger(rt.log))
	if err == nil {
		return store, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, cli.Exit(fmt.Sprintf(
			"glossary database not found at %s\n"+
				"run \"glossary fetch-db\" or download an updated copy from https://github.com/%s/%s",
			rt.cfg.Database, rt.cfg.Download.Owner, rt.cfg.Download.Repo), 1)
	}
	return nil, cli.Exit(err.Error(), 1)
}
