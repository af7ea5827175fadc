package monitor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cmakeperf/cmakeperf/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestEngine(interval time.Duration) *Engine {
	e := NewEngine(zerolog.Nop(), interval)
	e.Stdout = &bytes.Buffer{}
	e.Stderr = &bytes.Buffer{}
	return e
}

func TestEngine_ImmediateExit(t *testing.T) {
	e := newTestEngine(100 * time.Millisecond)

	// A no-op that exits faster than any sampling tick must still produce a
	// well-formed Measurement.
	m, err := e.Run(model.Command{Args: []string{"true"}})
	require.NoError(t, err)
	require.Equal(t, 0, m.ExitCode)
	require.GreaterOrEqual(t, m.PeakRSS, uint64(0))
	require.False(t, m.EndTime.Before(m.StartTime))
}

func TestEngine_NonZeroExitIsData(t *testing.T) {
	e := newTestEngine(50 * time.Millisecond)

	m, err := e.Run(model.Command{Args: []string{"sh", "-c", "exit 7"}})
	require.NoError(t, err, "a failed child is still a measurement")
	require.Equal(t, 7, m.ExitCode)
}

func TestEngine_SpawnError(t *testing.T) {
	e := newTestEngine(50 * time.Millisecond)

	m, err := e.Run(model.Command{Args: []string{"/nonexistent/compiler-xyz"}})
	require.Nil(t, m)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.Equal(t, "/nonexistent/compiler-xyz", spawnErr.Command.Args[0])
}

func TestEngine_EmptyCommand(t *testing.T) {
	e := newTestEngine(50 * time.Millisecond)

	m, err := e.Run(model.Command{})
	require.Nil(t, m)

	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
}

func TestEngine_SleepDurationAndPeak(t *testing.T) {
	e := newTestEngine(50 * time.Millisecond)

	m, err := e.Run(model.Command{Args: []string{"sleep", "1"}})
	require.NoError(t, err)
	require.Equal(t, 0, m.ExitCode)
	require.InDelta(t, float64(time.Second), float64(m.Duration), float64(300*time.Millisecond))
	require.Greater(t, m.PeakRSS, uint64(0), "a second of sleep spans many ticks")
}

func TestEngine_TreePeakCoversDescendants(t *testing.T) {
	e := newTestEngine(50 * time.Millisecond)

	// The shell forks a grandchild; the sampled peak covers the whole tree,
	// so it must exceed what a lone sleep-sized process could account for.
	m, err := e.Run(model.Command{Args: []string{"sh", "-c", "sleep 0.6 & sleep 0.6"}})
	require.NoError(t, err)
	require.Equal(t, 0, m.ExitCode)
	require.Greater(t, m.PeakRSS, uint64(0))
}

func TestEngine_OutputReplay(t *testing.T) {
	var stdout, stderr bytes.Buffer
	e := NewEngine(zerolog.Nop(), 50*time.Millisecond)
	e.Stdout = &stdout
	e.Stderr = &stderr

	m, err := e.Run(model.Command{Args: []string{"sh", "-c", "echo out; echo err >&2"}})
	require.NoError(t, err)
	require.Equal(t, 0, m.ExitCode)
	require.Equal(t, "out\n", stdout.String())
	require.Equal(t, "err\n", stderr.String())
}

func TestEngine_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	var stdout bytes.Buffer
	e := NewEngine(zerolog.Nop(), 50*time.Millisecond)
	e.Stdout = &stdout
	e.Stderr = os.Stderr

	_, err = e.Run(model.Command{Args: []string{"pwd"}, Dir: dir})
	require.NoError(t, err)
	require.Equal(t, resolved, strings.TrimSpace(stdout.String()))
}
