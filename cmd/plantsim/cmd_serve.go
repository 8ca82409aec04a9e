package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nvandessel/plantsim/internal/config"
	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/logging"
	"github.com/nvandessel/plantsim/internal/mcp"
	"github.com/nvandessel/plantsim/internal/metrics"
	"github.com/nvandessel/plantsim/internal/pathutil"
	"github.com/nvandessel/plantsim/internal/signals"
	"github.com/nvandessel/plantsim/internal/simulation"
	"github.com/nvandessel/plantsim/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and serve it over MCP",
		Long: `Start the simulation engine and expose it through the MCP tools
plant_signals, plant_read, plant_write and plant_history.

The default transport is stdio, for launching plantsim from an MCP client.
Use --transport http to listen for streamable HTTP clients instead.

Examples:
  plantsim serve                                # stdio, scripted storyline
  plantsim serve --transport http --addr :4840  # streamable HTTP on /refinery
  plantsim serve --seed 42 --no-scenario        # reproducible free run
  plantsim serve --metrics-addr :9840           # also export Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyServeFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			// stdout carries the stdio transport; logs go to stderr.
			logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					logger.Info("received signal, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			return runServe(ctx, cfg, logger)
		},
	}

	cmd.Flags().Duration("tick", 0, "Tick period (overrides config)")
	cmd.Flags().Uint64("seed", 0, "Random seed; 0 seeds from the clock")
	cmd.Flags().Bool("no-scenario", false, "Disable the scripted storyline")
	cmd.Flags().Bool("no-history", false, "Do not record telemetry history")
	cmd.Flags().String("transport", "", "MCP transport: stdio or http")
	cmd.Flags().String("addr", "", "Listen address for the http transport")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

// applyServeFlags copies explicitly set serve flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.PlantConfig) error {
	flags := cmd.Flags()
	if flags.Changed("tick") {
		tick, err := flags.GetDuration("tick")
		if err != nil {
			return err
		}
		cfg.Simulation.Tick = tick
	}
	if flags.Changed("seed") {
		seed, err := flags.GetUint64("seed")
		if err != nil {
			return err
		}
		cfg.Simulation.Seed = seed
	}
	if v, _ := flags.GetBool("no-scenario"); v {
		cfg.Scenario.Enabled = false
	}
	if v, _ := flags.GetBool("no-history"); v {
		cfg.Store.Enabled = false
	}
	if flags.Changed("transport") {
		cfg.MCP.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("addr") {
		cfg.MCP.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
		cfg.Metrics.Enabled = cfg.Metrics.Addr != ""
	}
	return nil
}

// plant bundles the long-lived components of a serve run.
type plant struct {
	engine   *simulation.Engine
	server   *mcp.Server
	history  store.HistoryStore
	recorder *store.Recorder
	events   *logging.EventLog
	metrics  *metrics.Exporter
	runID    string
	logger   *slog.Logger
}

// startPlant opens the history store, starts the engine and builds the MCP server.
// dataDir holds the event log, the audit log and, by default, the history database.
func startPlant(ctx context.Context, cfg *config.PlantConfig, dataDir string, logger *slog.Logger) (*plant, error) {
	p := &plant{
		runID:  store.NewRunID(),
		logger: logger,
		events: logging.NewEventLog(dataDir, cfg.Logging.Level),
	}

	observers := []simulation.Observer{}
	if p.events != nil {
		observers = append(observers, p.events)
	}

	if cfg.Store.Enabled {
		path, err := cfg.StorePath()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("resolving history path: %w", err)
		}
		hs, err := store.NewSQLiteHistoryStore(path)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		p.history = hs

		run := store.Run{
			ID:         p.runID,
			StartedAt:  time.Now(),
			TickPeriod: cfg.Simulation.Tick,
			Seed:       cfg.Simulation.Seed,
			Scenario:   cfg.Scenario.Enabled,
		}
		if err := hs.BeginRun(ctx, run); err != nil {
			p.Close()
			return nil, fmt.Errorf("registering run: %w", err)
		}

		p.recorder = store.NewRecorder(hs, p.runID, store.RecorderOptions{
			Buffer:    constants.DefaultRecorderBuffer,
			Retention: cfg.Store.Retention,
			Logger:    logger,
		})
		observers = append(observers, p.recorder)
		logger.Info("recording history", "path", pathutil.RedactPath(path), "run_id", p.runID)
	}

	if cfg.Metrics.Enabled {
		p.metrics = metrics.New(p.snapshot, p.running)
		observers = append(observers, p.metrics)
	}

	engineCfg := cfg.Engine()
	engineCfg.Logger = logger
	engineCfg.Observer = simulation.Observers(observers...)
	p.engine = simulation.New(engineCfg)

	server, err := mcp.NewServer(&mcp.Config{
		Name:       "plantsim",
		Version:    version,
		Plant:      p.engine,
		History:    p.history,
		RunID:      p.runID,
		WriteRate:  cfg.MCP.WriteRate,
		WriteBurst: cfg.MCP.WriteBurst,
		AuditDir:   dataDir,
		Logger:     logger,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	p.server = server

	if err := p.engine.Start(); err != nil {
		p.Close()
		return nil, fmt.Errorf("starting simulation: %w", err)
	}
	return p, nil
}

func (p *plant) snapshot() *signals.Snapshot {
	if p.engine == nil {
		return nil
	}
	return p.engine.Snapshot()
}

func (p *plant) running() bool {
	return p.engine != nil && p.engine.Running()
}

// Close stops the engine first so no event is produced after the recorder drains.
func (p *plant) Close() error {
	var errs []error
	if p.engine != nil {
		errs = append(errs, p.engine.Close())
	}
	if p.recorder != nil {
		errs = append(errs, p.recorder.Close())
	}
	if p.history != nil {
		errs = append(errs, p.history.Close())
	}
	if p.server != nil {
		errs = append(errs, p.server.Close())
	}
	p.events.Close()
	return errors.Join(errs...)
}

// runServe runs the plant until ctx is cancelled or the transport ends.
func runServe(ctx context.Context, cfg *config.PlantConfig, logger *slog.Logger) error {
	dataDir, err := pathutil.EnsureDataDir()
	if err != nil {
		return fmt.Errorf("preparing data directory: %w", err)
	}

	p, err := startPlant(ctx, cfg, dataDir, logger)
	if err != nil {
		return err
	}

	// The metrics listener lives as long as the MCP transport.
	runCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		return p.server.Run(gctx, cfg.MCP.Transport, cfg.MCP.Addr, cfg.MCP.Path)
	})
	if p.metrics != nil {
		g.Go(func() error {
			return p.metrics.Serve(gctx, cfg.Metrics.Addr, logger)
		})
	}

	runErr := g.Wait()
	stop()
	closeErr := p.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("shutting down: %w", closeErr)
	}
	logger.Info("plantsim stopped", "run_id", p.runID)
	return nil
}
