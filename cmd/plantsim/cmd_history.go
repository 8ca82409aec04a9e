package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nvandessel/plantsim/internal/signals"
	"github.com/nvandessel/plantsim/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [signal]",
		Short: "Query recorded telemetry",
		Long: `Show recorded samples of a signal, newest first, from the history database.

Without a signal, list the recorded runs. With --events, show the advisory
events of a run instead.

Examples:
  plantsim history                         # list runs
  plantsim history fc1065 --limit 20       # latest samples across runs
  plantsim history bit_tq --since 10m      # last ten minutes
  plantsim history --events --run <id>     # events of one run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, err := cfg.StorePath()
			if err != nil {
				return fmt.Errorf("resolving history path: %w", err)
			}

			hs, err := store.NewSQLiteHistoryStore(path)
			if err != nil {
				return fmt.Errorf("opening history store: %w", err)
			}
			defer hs.Close()

			runID, _ := cmd.Flags().GetString("run")
			limit, _ := cmd.Flags().GetInt("limit")
			since, _ := cmd.Flags().GetDuration("since")
			showEvents, _ := cmd.Flags().GetBool("events")
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			switch {
			case showEvents:
				if runID == "" {
					return fmt.Errorf("--events requires --run")
				}
				events, err := hs.Events(ctx, runID, limit)
				if err != nil {
					return fmt.Errorf("querying events: %w", err)
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]interface{}{"events": events, "count": len(events)})
				}
				printEvents(out, events)
				return nil

			case len(args) == 0:
				runs, err := hs.Runs(ctx, limit)
				if err != nil {
					return fmt.Errorf("listing runs: %w", err)
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]interface{}{"runs": runs, "count": len(runs)})
				}
				printRuns(out, runs)
				return nil
			}

			name := args[0]
			if !isSignal(name) {
				return fmt.Errorf("unknown signal: %s", name)
			}

			q := store.HistoryQuery{Signal: name, RunID: runID, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			samples, err := hs.History(ctx, q)
			if err != nil {
				return fmt.Errorf("querying history: %w", err)
			}
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{"signal": name, "samples": samples, "count": len(samples)})
			}
			printSamples(out, samples)
			return nil
		},
	}

	cmd.Flags().String("run", "", "Restrict to one run")
	cmd.Flags().Int("limit", store.DefaultHistoryLimit, "Maximum rows to show")
	cmd.Flags().Duration("since", 0, "Only samples newer than this (e.g. 10m)")
	cmd.Flags().Bool("events", false, "Show advisory events instead of samples")

	return cmd
}

func isSignal(name string) bool {
	for _, s := range signals.Seeds() {
		if s.Name == name {
			return true
		}
	}
	return false
}

func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-8s  %-8s  %s\n", "RUN", "STARTED", "TICK", "SCENARIO", "SEED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-19s  %-8s  %-8v  %d\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.TickPeriod, r.Scenario, r.Seed)
	}
}

func printSamples(w io.Writer, samples []store.Sample) {
	if len(samples) == 0 {
		fmt.Fprintln(w, "No samples recorded.")
		return
	}
	fmt.Fprintf(w, "%-19s  %8s  %12s  %-13s  %s\n", "TIME", "TICK", "VALUE", "SOURCE", "EFFICIENCY")
	for _, s := range samples {
		fmt.Fprintf(w, "%-19s  %8d  %12.4f  %-13s  %.1f%%\n",
			s.Time.Local().Format("2006-01-02 15:04:05"), s.Tick, s.Value, s.DataSource, s.ProcessEfficiency)
	}
}

func printEvents(w io.Writer, events []store.EventRecord) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-18s", ev.Time.Local().Format("2006-01-02 15:04:05"), ev.Kind)
		switch {
		case ev.Step != "":
			line += "  " + ev.Step
		case ev.ChangePercent != 0:
			line += fmt.Sprintf("  %s %g -> %g (%.2f%%)", ev.Signal, ev.Old, ev.New, ev.ChangePercent)
		case ev.Signal != "":
			line += "  " + ev.Signal
		}
		fmt.Fprintln(w, line)
	}
}
