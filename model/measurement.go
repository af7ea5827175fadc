package model

import (
	"time"

	"al.essio.dev/pkg/shellescape"
)

// Command identifies one compiler or linker invocation. It is built once,
// either from a compilation database entry or from a launcher argument
// vector, and never mutated afterwards.
type Command struct {
	// Argument vector, executable first
	Args []string `json:"args"`
	// Working directory the command runs in
	Dir string `json:"dir,omitempty"`
	// Source file being compiled, when known (used for progress and filtering)
	File string `json:"file,omitempty"`
	// Output path produced by the command (the -o argument), when known
	Output string `json:"output,omitempty"`
}

// String renders the command as a copy-pasteable shell line.
func (c Command) String() string {
	return shellescape.QuoteCommand(c.Args)
}

// Measurement is the record produced by monitoring one invocation.
// It is assembled once the child process has terminated.
type Measurement struct {
	// Command that was measured
	Command Command `json:"command"`
	// Timestamp when the child process was spawned
	StartTime time.Time `json:"start_time"`
	// Timestamp when the child process terminated
	EndTime time.Time `json:"end_time"`
	// Wall-clock duration of the invocation
	Duration time.Duration `json:"duration"`
	// Peak resident memory of the child and all its descendants, in bytes.
	// Zero is valid: the child may exit before any sample lands.
	PeakRSS uint64 `json:"peak_rss"`
	// Exit code of the child process
	ExitCode int `json:"exit_code"`
}

// Key identifies the measurement within a result store. Re-running the same
// command replaces its record rather than appending a duplicate. The output
// path is the natural identity of a compile step; commands without one fall
// back to the source file, then to the full command line.
func (m *Measurement) Key() string {
	if m.Command.Output != "" {
		return m.Command.Output
	}
	if m.Command.File != "" {
		return m.Command.File
	}
	return m.Command.String()
}
