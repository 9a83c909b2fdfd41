package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/trackside_sim/internal/layout"
)

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout <file>",
		Short: "Convert a character-grid track layout to an X,Y,Symbol table",
		Long: `Read a character-grid layout and print one "x,y,symbol" row per
non-whitespace character. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			_, err := layout.Convert(r, cmd.OutOrStdout())
			return err
		},
	}
}
