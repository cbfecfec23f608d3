package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"qms-workers/pkg/registry"
)

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the activity registry",
	}
	cmd.PersistentFlags().String("path", "", "Registry file (default: the embedded registry)")
	cmd.AddCommand(registryValidateCmd())
	cmd.AddCommand(registryListCmd())
	return cmd
}

func loadRegistry(cmd *cobra.Command) (*registry.ActivityRegistry, error) {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		return registry.Default()
	}
	return registry.LoadRegistry(path)
}

func registryValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			if err := reg.Validate(); err != nil {
				return fmt.Errorf("registry validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registry %s is valid (%d activities)\n", reg.Version, len(reg.Activities))
			return nil
		},
	}
}

func registryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered task types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TASK TYPE\tSTATUS\tTIMEOUT\tRETRIES")
			for _, a := range reg.Activities {
				timeout, err := a.TimeoutDuration()
				if err != nil {
					return fmt.Errorf("activity %s: %w", a.ID, err)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", a.TaskType, a.ImplementationStatus, timeout, a.Retries)
			}
			return w.Flush()
		},
	}
}
