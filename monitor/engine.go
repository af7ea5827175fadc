package monitor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/cmakeperf/cmakeperf/model"
	"github.com/rs/zerolog"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// SpawnError reports that a command could not be started at all (missing
// executable, permission denied). No Measurement exists for such commands.
type SpawnError struct {
	Command model.Command
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Command.String(), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Engine measures a single command: it spawns the child, samples the
// resident memory of its process tree until it exits, and assembles a
// Measurement. One Engine may be reused for sequential invocations; for
// parallel invocations use one Engine per worker.
type Engine struct {
	logger   zerolog.Logger
	interval time.Duration

	// Destinations for the child's streams. Defaults to this process's own
	// stdout/stderr, which is what both batch progress and launcher
	// replay want.
	Stdout io.Writer
	Stderr io.Writer
}

// NewEngine creates an engine sampling at the given interval.
func NewEngine(logger zerolog.Logger, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		logger:   logger.With().Str("component", "engine").Logger(),
		interval: interval,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// Run executes cmd to completion and returns its Measurement.
//
// A non-zero exit code is not an error: a failed compile still has timing and
// memory data worth recording, so the Measurement carries the code instead.
// Only a failure to spawn (returned as *SpawnError) or to reap the child
// yields an error, and then no Measurement is produced.
func (e *Engine) Run(cmd model.Command) (*model.Measurement, error) {
	if len(cmd.Args) == 0 {
		return nil, &SpawnError{Command: cmd, Err: errors.New("empty argument vector")}
	}

	c := exec.Command(cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Stdout = e.Stdout
	c.Stderr = e.Stderr

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, &SpawnError{Command: cmd, Err: err}
	}

	e.logger.Debug().
		Int("pid", c.Process.Pid).
		Str("command", cmd.String()).
		Msg("Child process started")

	sampler := NewSampler(int32(c.Process.Pid), e.interval)
	sampler.Start()

	exitCode := 0
	if err := c.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			sampler.Stop()
			return nil, fmt.Errorf("failed to wait for %s: %w", cmd.Args[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	peak := sampler.Stop()
	end := time.Now()

	m := &model.Measurement{
		Command:   cmd,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		PeakRSS:   peak,
		ExitCode:  exitCode,
	}

	e.logger.Debug().
		Dur("duration", m.Duration).
		Uint64("peak_rss", m.PeakRSS).
		Int("exit_code", m.ExitCode).
		Msg("Child process finished")

	return m, nil
}
