package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/crossroads/internal/api"
	"github.com/talgya/crossroads/internal/config"
	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/engine"
	"github.com/talgya/crossroads/internal/entropy"
	"github.com/talgya/crossroads/internal/persistence"
	"github.com/talgya/crossroads/internal/world"
)

var (
	runTicks uint64
	runSpeed float64
	runFresh bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run or resume a settlement session",
	Long: `Generate the world (deterministic from the seed), place the settlement,
register the discovery catalog and run the tick loop. A saved session in the
database is resumed unless --fresh is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSession(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().Uint64Var(&runTicks, "ticks", 0, "Stop after this many ticks (0 = run until interrupted)")
	runCmd.Flags().Float64Var(&runSpeed, "speed", 1, "Speed multiplier (1 = one tick per second, 0 = paused)")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Ignore any saved session and start over")
	rootCmd.AddCommand(runCmd)
}

// newSimulation builds a session from config: world, settlement anchor,
// discovery engine with the catalog registered, and workforce.
func newSimulation(cfg config.Config) (*engine.Simulation, error) {
	slog.Info("generating world map...", "seed", cfg.Seed, "radius", cfg.World.Radius)
	worldMap := world.Generate(cfg.GenConfig())
	for t, c := range world.TerrainCounts(worldMap) {
		slog.Debug("terrain", "type", world.TerrainName(t), "count", c)
	}

	anchor := world.FindAnchor(worldMap, cfg.Discovery.ScanRadius)
	if cfg.Settlement.Anchor != nil {
		anchor = *cfg.Settlement.Anchor
		if !worldMap.InBounds(anchor) {
			return nil, fmt.Errorf("settlement anchor %v outside world radius %d", anchor, cfg.World.Radius)
		}
	}

	defs, err := config.LoadCatalog(cfg.Discovery.Catalog)
	if err != nil {
		return nil, err
	}

	ledger := discovery.NewLedger()
	tracker := discovery.NewTracker()
	disc := discovery.NewEngine(discovery.Config{
		CheckInterval: cfg.Discovery.CheckIntervalSeconds,
		Anchor:        anchor,
		ScanRadius:    cfg.Discovery.ScanRadius,
		ScanStride:    cfg.Discovery.ScanStride,
	}, ledger, tracker, worldMap, entropy.New(cfg.RandomOrgKey, cfg.Seed))
	if err := config.RegisterAll(disc, defs); err != nil {
		return nil, fmt.Errorf("register catalog: %w", err)
	}

	wf := engine.NewWorkforce(cfg.Settlement.Workforce, cfg.Settlement.WorkRadius, cfg.Seed)
	sim := engine.NewSimulation(worldMap, anchor, ledger, tracker, disc, wf, cfg.Discovery.SecondsPerTick)

	slog.Info("settlement placed",
		"anchor", fmt.Sprintf("(%d,%d)", anchor.Q, anchor.R),
		"terrain", world.TerrainName(worldMap.Get(anchor).Terrain),
		"discoveries", len(defs),
		"workforce", wf.Size,
	)
	return sim, nil
}

func runSession(ctx context.Context, cfg config.Config) error {
	sim, err := newSimulation(cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	if db.HasSession() && !runFresh {
		if err := db.LoadSession(sim); err != nil {
			return fmt.Errorf("load session: %w", err)
		}
	} else {
		sim.SessionID = uuid.NewString()
		slog.Info("new session", "session", sim.SessionID)
	}

	eng := engine.NewEngine()
	eng.Tick = sim.CurrentTick()
	eng.SetSpeed(runSpeed)
	eng.OnTick = sim.TickMinute
	eng.OnSeason = sim.TickSeason
	eng.OnDay = func(tick uint64) {
		sim.TickDay(tick)
		if err := db.SaveSession(sim); err != nil {
			slog.Error("periodic save failed", "error", err)
		}
	}

	activity := make(chan discovery.Activity, 256)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		eng.Run(gctx, runTicks)
		cancel()
		return nil
	})
	g.Go(func() error {
		sim.Tracker.Consume(gctx, activity)
		return nil
	})
	if cfg.APIPort > 0 {
		srv := &api.Server{
			Sim:        sim,
			Eng:        eng,
			Port:       cfg.APIPort,
			AdminKey:   cfg.AdminKey,
			Activities: activity,
		}
		g.Go(func() error {
			return srv.Serve(gctx)
		})
	}

	err = g.Wait()

	if saveErr := db.SaveSession(sim); saveErr != nil {
		slog.Error("final save failed", "error", saveErr)
		if err == nil {
			err = saveErr
		}
	}
	stats := sim.Discovery.Stats()
	slog.Info("session ended",
		"session", sim.SessionID,
		"ticks", humanize.Comma(int64(sim.CurrentTick())),
		"sim_time", engine.SimTime(sim.CurrentTick()),
		"discovered", fmt.Sprintf("%d/%d", sim.Ledger.CompletedCount(), stats.Registered),
		"cycles", humanize.Comma(int64(stats.Cycles)),
	)
	return err
}
