package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"qms-workers/internal/models"
	"qms-workers/internal/routing"
)

// Classification is what the router decides for a query, without running it.
// Storage is true when the action reads or writes a workflow record.
type Classification struct {
	QueryType models.QueryType        `json:"queryType"`
	Rule      string                  `json:"rule"`
	Action    models.ActionDescriptor `json:"action"`
	Resolved  bool                    `json:"resolved"`
	Storage   bool                    `json:"storage"`
	Rules     []string                `json:"rules,omitempty"`
}

func classifyCmd() *cobra.Command {
	var (
		useConfig bool
		showRules bool
	)

	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Show how a query would be routed",
		Long:  "Prints the query type, the rule that matched and the resolved action. Nothing is read or written.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := routing.DefaultRules()
			if useConfig {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				rules = routing.RulesFromConfig(cfg.Routing)
			}

			result := classify(rules, strings.Join(args, " "))
			if showRules {
				result.Rules = routing.NewClassifier(rules).Rules()
			}
			output, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		},
	}

	cmd.Flags().BoolVar(&useConfig, "use-config", false, "Apply routing overrides from the loaded config")
	cmd.Flags().BoolVar(&showRules, "rules", false, "Include the classifier rules in evaluation order")

	return cmd
}

func classify(rules routing.Rules, query string) Classification {
	qt, rule := routing.NewClassifier(rules).Explain(query)
	desc := routing.NewResolver(rules).Resolve(query)
	return Classification{
		QueryType: qt,
		Rule:      rule,
		Action:    desc,
		Resolved:  desc.Resolved(),
		Storage:   desc.Action.IsWorkflow(),
	}
}
