package cli

// This file implements launcher mode: cmakeperf substituted for the real
// compiler by the build system. The wrapped command's output and exit code
// are passed through untouched; the only side effect is one record appended
// to the shared result store.

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cmakeperf/cmakeperf/compiledb"
	"github.com/cmakeperf/cmakeperf/model"
	"github.com/cmakeperf/cmakeperf/monitor"
	"github.com/cmakeperf/cmakeperf/store"
)

func (a *App) launch(ctx *cli.Context) error {
	args := ctx.Args().Slice()
	if len(args) == 0 {
		return errors.New("no compiler command given after launch")
	}

	// Monitoring must stay invisible to the surrounding build: keep our own
	// chatter off stderr unless explicitly asked for.
	if !ctx.Bool("verbose") {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	cmd := model.Command{
		Args:   args,
		Dir:    cwd,
		Output: compiledb.OutputArg(args),
	}

	engine := monitor.NewEngine(a.logger, ctx.Duration("interval"))
	engine.Stdout = os.Stdout
	engine.Stderr = os.Stderr

	m, err := engine.Run(cmd)
	if err != nil {
		// There is no real compiler to fall back to; the build must see
		// the failure.
		return err
	}

	if err := store.New(a.logger, ctx.String("store")).Put(m); err != nil {
		// The compile itself succeeded or failed on its own terms; a store
		// problem must not change what the build system observes, but it
		// may not pass silently either.
		a.logger.Error().Err(err).Str("key", m.Key()).Msg("Failed to record measurement")
	}

	if m.ExitCode != 0 {
		return cli.Exit("", m.ExitCode)
	}
	return nil
}
