package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"qms-workers/internal/app"
	"qms-workers/internal/workflow"
)

// askCmd dispatches one free-text query and prints the result envelope.
func askCmd() *cobra.Command {
	var actor string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Dispatch a free-text QMS query",
		Long:  "Classifies the query, runs the matching workflow operation and prints the JSON result envelope.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			services, err := app.Build(ctx, cfg, log, app.Options{ConnectRetries: 1})
			if err != nil {
				return err
			}
			defer services.Close()

			result, err := services.Dispatcher.Dispatch(ctx, &workflow.Request{
				Query: strings.Join(args, " "),
				Actor: actor,
			})
			if err != nil {
				return err
			}

			output, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Name recorded as requester/reporter on created records")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline for the query")

	return cmd
}
