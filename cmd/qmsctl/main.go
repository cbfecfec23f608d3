// qmsctl runs QMS workflow queries and maintenance tasks outside of Zeebe.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qmsctl",
		Short: "qmsctl - QMS workflow assistant tooling",
		Long: `qmsctl runs the QMS workflow dispatcher and its maintenance tasks from a shell.

Environment variables:
  APP_ENVIRONMENT   selects configs/config.<env>.yaml (default: development)
  OPENAI_API_KEY    key used for knowledge answers`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: configs/config.yaml)")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(registryCmd())

	return rootCmd
}
