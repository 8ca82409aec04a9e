package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/plantsim/internal/signals"
	"github.com/spf13/cobra"
)

func newSignalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signals",
		Short: "List the simulated signals with their seeds and bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			seeds := signals.Seeds()

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				type row struct {
					signals.Descriptor
					Seed float64 `json:"seed"`
				}
				rows := make([]row, len(seeds))
				for i, s := range seeds {
					rows[i] = row{Descriptor: s.Describe(), Seed: s.Value}
				}
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"signals": rows,
					"count":   len(rows),
				})
			}

			fmt.Fprintf(out, "%-20s %-9s %10s %10s %10s %9s\n", "NAME", "CATEGORY", "SEED", "MIN", "MAX", "VARIANCE")
			for _, s := range seeds {
				fmt.Fprintf(out, "%-20s %-9s %10g %10g %10g %9g\n",
					s.Name, s.Category, s.Value, s.Min, s.Max, s.Variance)
			}
			fmt.Fprintf(out, "\n%d signals, all of type %s\n", len(seeds), signals.TypeTag)
			return nil
		},
	}
}
