// Package batch measures a sequence of build commands, optionally in
// parallel.
package batch

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmakeperf/cmakeperf/model"
	"github.com/cmakeperf/cmakeperf/monitor"
)

// Result pairs one command with its outcome. Under concurrency results
// arrive out of order, so the command is carried alongside to match records
// back to their source. Exactly one of Measurement and Err is set; a spawn
// failure never aborts the batch.
type Result struct {
	Command     model.Command
	Measurement *model.Measurement
	Err         error
}

// Runner drives the measurement engine over a list of commands with a
// bounded number of workers. Each worker owns its own engine and sampler, so
// concurrent measurements share no state.
type Runner struct {
	logger   zerolog.Logger
	jobs     int
	interval time.Duration

	// Destinations for child output. Nil means the children inherit this
	// process's streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner creates a runner with the given worker count and sampling
// interval. A worker count below 1 is treated as 1.
func NewRunner(logger zerolog.Logger, jobs int, interval time.Duration) *Runner {
	if jobs < 1 {
		jobs = 1
	}
	return &Runner{
		logger:   logger.With().Str("component", "batch").Logger(),
		jobs:     jobs,
		interval: interval,
	}
}

// Run measures every command and delivers one Result per command on the
// returned channel, which is closed once the batch is done. Cancelling the
// context stops dispatching further commands; children already running are
// left to finish naturally.
func (r *Runner) Run(ctx context.Context, commands []model.Command) <-chan Result {
	results := make(chan Result)
	work := make(chan model.Command)

	var wg sync.WaitGroup
	for i := 0; i < r.jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			engine := monitor.NewEngine(r.logger, r.interval)
			if r.Stdout != nil {
				engine.Stdout = r.Stdout
			}
			if r.Stderr != nil {
				engine.Stderr = r.Stderr
			}

			for cmd := range work {
				m, err := engine.Run(cmd)
				if err != nil {
					r.logger.Warn().Err(err).Str("file", cmd.File).Msg("Command failed to spawn")
				}
				results <- Result{Command: cmd, Measurement: m, Err: err}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, cmd := range commands {
			if ctx.Err() != nil {
				r.logger.Info().Msg("Batch cancelled, not dispatching further commands")
				return
			}
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("Batch cancelled, not dispatching further commands")
				return
			case work <- cmd:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
