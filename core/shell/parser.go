package shell

/**
A command line is a flat list of whitespace separated words. There is no
quoting, escaping, globbing or composition; each line produces at most one
command.

1. A word beginning with # starts a comment, the rest of the line is ignored.

2. The words < and > mark the following word as the input or output file of
the command. A marker with no following word is dropped.

3. The word & requests background execution, unless background execution has
been disabled by the user, in which case it is ignored.

4. Every $$ within a word expands to the process id of the shell.
**/

import (
	"strconv"
	"strings"
)

const (
	commentPrefix  = "#"
	redirectInput  = "<"
	redirectOutput = ">"
	backgroundMark = "&"
	pidVariable    = "$$"
)

// Command is a single parsed command line.
type Command struct {
	// Args holds the program or builtin name followed by its arguments.
	Args []string
	// InputFile is the file to read stdin from, empty to inherit.
	InputFile string
	// OutputFile is the file to write stdout to, empty to inherit.
	OutputFile string
	// Background is set if the command should not be waited on.
	Background bool
}

// Empty returns true if there's nothing to dispatch.
func (c *Command) Empty() bool {
	return len(c.Args) == 0
}

// Name returns the program or builtin name, or the empty string.
func (c *Command) Name() string {
	if c.Empty() {
		return ""
	}
	return c.Args[0]
}

// Redirected returns true if either stdin or stdout was redirected.
func (c *Command) Redirected() bool {
	return c.InputFile != "" || c.OutputFile != ""
}

// Options holds the shell state the parser depends on.
type Options struct {
	// Pid is substituted for $$.
	Pid int
	// BackgroundDisabled causes & to be dropped.
	BackgroundDisabled bool
}

// Parse splits the line into a Command.
func Parse(line string, opts Options) Command {
	var (
		cmd              Command
		expectOutputPath bool
		expectInputPath  bool
	)

	pid := strconv.Itoa(opts.Pid)

	for _, tok := range strings.Fields(line) {
		switch {
		case expectOutputPath:
			expectOutputPath = false
			cmd.OutputFile = tok

		case expectInputPath:
			expectInputPath = false
			cmd.InputFile = tok

		case strings.HasPrefix(tok, commentPrefix):
			return cmd

		case tok == redirectInput:
			expectInputPath = true

		case tok == redirectOutput:
			expectOutputPath = true

		case tok == backgroundMark:
			if !opts.BackgroundDisabled {
				cmd.Background = true
			}

		case strings.Contains(tok, pidVariable):
			cmd.Args = append(cmd.Args, strings.ReplaceAll(tok, pidVariable, pid))

		default:
			cmd.Args = append(cmd.Args, tok)
		}
	}

	return cmd
}
