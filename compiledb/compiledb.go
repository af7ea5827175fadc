// Package compiledb reads clang-style compilation databases
// (compile_commands.json).
package compiledb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/shlex"
	"github.com/rs/zerolog"

	"github.com/cmakeperf/cmakeperf/model"
)

// Entry mirrors one record of a compilation database. Exactly one of Command
// (a shell string) or Arguments (an argv) is expected per the format.
type Entry struct {
	// Directory the command runs in
	Directory string `json:"directory"`
	// Shell-quoted command line
	Command string `json:"command,omitempty"`
	// Pre-split argument vector, preferred over Command when present
	Arguments []string `json:"arguments,omitempty"`
	// Source file this entry compiles
	File string `json:"file"`
	// Output file, when the generator records it explicitly
	Output string `json:"output,omitempty"`
}

// ToCommand converts the entry into an executable Command. The output path
// falls back to scanning the argv for -o when the entry does not carry one.
func (e Entry) ToCommand() (model.Command, error) {
	args := e.Arguments
	if len(args) == 0 {
		if strings.TrimSpace(e.Command) == "" {
			return model.Command{}, errors.New("entry has neither command nor arguments")
		}
		split, err := shlex.Split(e.Command)
		if err != nil {
			return model.Command{}, fmt.Errorf("failed to split command %q: %w", e.Command, err)
		}
		args = split
	}
	if len(args) == 0 {
		return model.Command{}, errors.New("entry resolves to an empty argument vector")
	}

	output := e.Output
	if output == "" {
		output = OutputArg(args)
	}

	return model.Command{
		Args:   args,
		Dir:    e.Directory,
		File:   e.File,
		Output: output,
	}, nil
}

// OutputArg extracts the path of a -o flag, in both the separate ("-o", path)
// and fused ("-opath") spellings.
func OutputArg(args []string) string {
	for i, arg := range args {
		if arg == "-o" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, "-o") && len(arg) > 2 && !strings.HasPrefix(arg[2:], "-") {
			return arg[2:]
		}
	}
	return ""
}

// Load reads a compilation database and returns its entries as Commands.
// Entries that cannot be converted are skipped with a warning; only an
// unreadable or malformed database file is fatal.
func Load(logger zerolog.Logger, path string) ([]model.Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compilation database: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	commands := make([]model.Command, 0, len(entries))
	for i, entry := range entries {
		cmd, err := entry.ToCommand()
		if err != nil {
			logger.Warn().Err(err).Int("entry", i).Str("file", entry.File).Msg("Skipping compilation database entry")
			continue
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

// Filter keeps only commands whose source file matches the pattern.
func Filter(commands []model.Command, pattern *regexp.Regexp) []model.Command {
	if pattern == nil {
		return commands
	}
	filtered := make([]model.Command, 0, len(commands))
	for _, cmd := range commands {
		if pattern.MatchString(cmd.File) {
			filtered = append(filtered, cmd)
		}
	}
	return filtered
}
