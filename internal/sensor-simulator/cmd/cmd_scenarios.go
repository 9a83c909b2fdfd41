package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/trackside_sim/internal/timeline"
)

// scenarioSummary is the one-line description printed by scenarios and
// validate.
type scenarioSummary struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Mode        string  `json:"mode"`
	Pins        int     `json:"pins"`
	Events      int     `json:"events"`
	Transitions int     `json:"transitions"`
	Gated       bool    `json:"gated"`
	CycleSecs   float64 `json:"cycle_seconds"`
}

func summarize(s *timeline.Scenario, pins int) (scenarioSummary, error) {
	if pins == 0 {
		pins = s.BankSize()
	}
	tl, err := s.Build(pins)
	if err != nil {
		return scenarioSummary{}, err
	}
	mode := s.Mode
	if mode == "" {
		mode = "fixed"
	}
	return scenarioSummary{
		Name:        s.Name,
		Description: s.Description,
		Mode:        mode,
		Pins:        pins,
		Events:      tl.Len(),
		Transitions: tl.Transitions(),
		Gated:       tl.Gated(),
		CycleSecs:   tl.CycleDuration().Seconds(),
	}, nil
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []scenarioSummary
			for _, name := range timeline.BuiltinNames() {
				s, err := timeline.Builtin(name)
				if err != nil {
					return err
				}
				sum, err := summarize(s, 0)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				out = append(out, sum)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMODE\tPINS\tTRANSITIONS\tCYCLE\tDESCRIPTION")
			for _, s := range out {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", s.Name, s.Mode, s.Pins, s.Transitions,
					time.Duration(s.CycleSecs*float64(time.Second)), s.Description)
			}
			return tw.Flush()
		},
	}
}
