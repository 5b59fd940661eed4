package cmd

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/iamkelseyhelms/smallsh/core"
	"github.com/iamkelseyhelms/smallsh/core/config"
	"github.com/iamkelseyhelms/smallsh/core/logger"
	"github.com/spf13/cobra"
)

var cfgPath string

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// loadConfigOrDefault falls back to the built-in configuration so the shell
// works without running init first.
func loadConfigOrDefault() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smallsh",
	Short: "A small job-control shell",
	Long: `A small shell that runs programs in the foreground or background,
redirects their input and output, and keeps track of background jobs.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfigOrDefault()
		if err != nil {
			return err
		}

		eventLog := logger.NewNopLogger()
		if configuration.EventLogEnabled() {
			fd, err := configuration.OpenEventLog()
			if err != nil {
				return err
			}
			defer fd.Close()
			eventLog = logger.NewJsonLinesLogRecorder(fd)
		}

		// The shell exists before the terminal so Ctrl-Z can be routed to it
		// from the readline goroutine.
		sh := core.NewShell(configuration, nil, eventLog.NewSession())
		if core.IsInteractive() {
			sh.Terminal, err = core.NewReadlineTerminal(configuration.MaxLineLength, sh.Suspend)
			if err != nil {
				return err
			}
		} else {
			sh.Terminal = core.NewLineTerminal(os.Stdin, os.Stdout, configuration.MaxLineLength)
		}

		code := sh.Run()
		if err := sh.Close(); err != nil && !errors.Is(err, io.EOF) {
			log.Printf("Error closing terminal: %v", err)
		}

		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
