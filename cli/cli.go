package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/cmakeperf/cmakeperf/monitor"
)

const AppName = "cmakeperf"

// DefaultStore is the result file used when --store is not given.
const DefaultStore = "cmakeperf.json"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Measure wall-clock time and peak memory of compiler and linker invocations",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "collect",
		Usage:     "Measure every command in a compilation database",
		ArgsUsage: "<compile_commands.json>",
		Action:    app.collect,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"o"},
				Usage:   "Result file to write measurements to",
				Value:   DefaultStore,
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "Only measure entries whose source file matches this regex",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Memory sampling interval",
				Value: monitor.DefaultInterval,
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Number of commands to measure in parallel",
				Value:   1,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "launch",
		Usage:     "Run a single compiler command as a drop-in wrapper and record its measurement",
		ArgsUsage: "-- <compiler> [args...]",
		Action:    app.launch,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Shared result file to append the measurement to",
				Value:   DefaultStore,
				EnvVars: []string{"CMAKEPERF_STORE"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Memory sampling interval",
				Value:   monitor.DefaultInterval,
				EnvVars: []string{"CMAKEPERF_INTERVAL"},
			},
		},
		Description: `Substitute this command for the real compiler so the build system routes
every invocation through the measurement layer, e.g.:

  cmake -DCMAKE_CXX_COMPILER_LAUNCHER="cmakeperf;launch" ..
  CMAKEPERF_STORE=/tmp/results.json ninja

The wrapped compiler's stdout, stderr and exit code are passed through
unchanged, so the build behaves exactly as if run directly.`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "report",
		Usage:     "Show the most expensive compile steps from a result file",
		ArgsUsage: "[store]",
		Action:    app.report,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "top",
				Aliases: []string{"n"},
				Usage:   "Number of entries per table",
				Value:   10,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: table or csv",
				Value: "table",
			},
		},
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
