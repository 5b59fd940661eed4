package cmd

import (
	"log"

	"github.com/iamkelseyhelms/smallsh/core/config"
	"github.com/spf13/cobra"
)

// initCmd writes a default configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default shell configuration to the config path.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := log.New(cmd.ErrOrStderr(), "", 0)

		_, err := config.Initialize(cfgPath, logger)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
