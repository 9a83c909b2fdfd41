package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/trackside_sim/internal/timeline"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scenario file without touching any pin",
		Long: `Parse a scenario file (or built-in scenario name), build its timeline
against the bank size and report what a session would play.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pins, _ := cmd.Flags().GetInt("pins")
			s, err := timeline.Resolve(args[0])
			if err != nil {
				return err
			}
			sum, err := summarize(s, pins)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(sum)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "scenario %s is valid\n", sum.Name)
			fmt.Fprintf(w, "  mode:        %s\n", sum.Mode)
			fmt.Fprintf(w, "  pins:        %d\n", sum.Pins)
			fmt.Fprintf(w, "  events:      %d (%d transitions)\n", sum.Events, sum.Transitions)
			fmt.Fprintf(w, "  cycle:       %gs\n", sum.CycleSecs)
			if sum.Gated {
				fmt.Fprintln(w, "  gated:       yes")
			}
			return nil
		},
	}
	cmd.Flags().Int("pins", 0, "Bank size to validate against (default: from the scenario)")
	return cmd
}
