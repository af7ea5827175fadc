package cli

// This file implements batch collection: running every command of a
// compilation database under the measurement engine and persisting one
// record per command.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/cmakeperf/cmakeperf/batch"
	"github.com/cmakeperf/cmakeperf/compiledb"
	"github.com/cmakeperf/cmakeperf/store"
)

func (a *App) collect(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one compilation database, got %d arguments", ctx.NArg())
	}
	dbPath := ctx.Args().First()

	commands, err := compiledb.Load(a.logger, dbPath)
	if err != nil {
		return err
	}

	if pattern := ctx.String("filter"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid --filter regex: %w", err)
		}
		before := len(commands)
		commands = compiledb.Filter(commands, re)
		a.logger.Debug().
			Int("matched", len(commands)).
			Int("total", before).
			Msg("Applied source file filter")
	}

	if len(commands) == 0 {
		a.logger.Warn().Str("database", dbPath).Msg("No commands to measure")
		return nil
	}

	resultStore := store.New(a.logger, ctx.String("store"))

	a.logger.Info().
		Int("commands", len(commands)).
		Int("jobs", ctx.Int("jobs")).
		Dur("interval", ctx.Duration("interval")).
		Str("store", resultStore.Path()).
		Msg("Starting collection")

	// Ctrl+C stops dispatching; commands already running finish and their
	// measurements are kept, so an interrupted batch can be resumed.
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := batch.NewRunner(a.logger, ctx.Int("jobs"), ctx.Duration("interval"))

	cwd, _ := os.Getwd()
	total := len(commands)
	done, failed := 0, 0

	for res := range runner.Run(runCtx, commands) {
		done++

		if res.Err != nil {
			failed++
			a.logger.Error().
				Err(res.Err).
				Str("file", displayPath(cwd, res.Command.File)).
				Msg("Failed to spawn command")
			continue
		}

		// Persist immediately so an interrupted run loses nothing finished.
		if err := resultStore.Put(res.Measurement); err != nil {
			return fmt.Errorf("failed to store measurement: %w", err)
		}

		a.logger.Info().
			Str("progress", fmt.Sprintf("%d/%d", done, total)).
			Str("peak_rss", humanize.IBytes(res.Measurement.PeakRSS)).
			Dur("duration", res.Measurement.Duration).
			Int("exit_code", res.Measurement.ExitCode).
			Str("file", displayPath(cwd, res.Command.File)).
			Msg("Measured")
	}

	a.logger.Info().
		Int("measured", done-failed).
		Int("failed", failed).
		Msg("Collection finished")

	if err := runCtx.Err(); err != nil {
		return fmt.Errorf("collection interrupted after %d of %d commands", done, total)
	}
	return nil
}

// displayPath shortens a source path relative to the working directory for
// progress output, falling back to the path as recorded.
func displayPath(cwd, path string) string {
	if cwd == "" || path == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		return path
	}
	return rel
}
