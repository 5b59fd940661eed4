package core

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pborman/getopt/v2"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// BuiltinNames returns the sorted names of the builtins.
func BuiltinNames() []string {
	var names []string
	for k := range AllBuiltins {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Exit kills the background jobs and quits the shell
func Exit(s *Shell, args []string) int {
	s.exit(0)
	return 0
}

// Cd is the cd shell builtin
func Cd(s *Shell, args []string) int {
	target := os.Getenv(EnvHome)
	if len(args) > 1 {
		target = args[1]
	}

	if err := os.Chdir(target); err != nil {
		s.diagnostic("%s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// Status prints the status of the last foreground command.
func Status(s *Shell, args []string) int {
	fmt.Fprintf(s.Terminal, "exit value %d\n", int(s.State.LastStatus()))
	return 0
}

func Jobs(s *Shell, args []string) int {
	opts := getopt.New()
	pidsOnly := opts.Bool('p', "list process IDs only")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.Terminal
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: jobs [-p]")
		fmt.Fprintln(w, "Display the background jobs that are still running.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		if err != nil {
			return 1
		}
		return 0
	}

	for _, job := range s.State.Jobs.Active() {
		if *pidsOnly {
			fmt.Fprintf(s.Terminal, "%d\n", job.Pid)
		} else {
			fmt.Fprintf(s.Terminal, "%d\t%s\n", job.Pid, strings.Join(job.Args, " "))
		}
	}
	return 0
}

func Help(s *Shell, args []string) int {
	w := s.Terminal
	fmt.Fprintln(w, "These shell commands are defined internally.")
	fmt.Fprintln(w, "Everything else is run as a program: cmd [arg ...] [< in] [> out] [&]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Join(BuiltinNames(), "\n"))

	return 0
}

func init() {
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["status"] = ShellBuiltinFunc(Status)
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
}
