// terrasyncd runs the reconciliation engine headless: it keeps the local
// canvas tiers and territory table converged against the remote store and
// its event feed. Embedders attach a real rendering surface through the
// engine package; headless mode uses an inert surface so overlay work is a
// no-op.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"terrasync/api"
	"terrasync/config"
	"terrasync/engine"
	"terrasync/storage"
)

func main() {
	var configPath string
	var debug bool
	flag.StringVar(&configPath, "config", storage.DataFile("terrasync.yaml"), "Path to the YAML config file")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(configPath, logger); err != nil {
		logger.Error("terrasyncd exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.RemoteBaseURL, cfg.GridWidth, cfg.GridHeight, logger)

	db, err := storage.OpenCanvasDB(storage.DataFile(cfg.CanvasDBFile))
	if err != nil {
		return err
	}
	defer db.Close()

	tiers := storage.NewTiers(storage.NewMemoryCache(cfg.MemoryTTL()), db, client,
		cfg.GridWidth, cfg.GridHeight, logger)

	eng, err := engine.New(engine.Config{
		Surface:               inertSurface{},
		Territories:           client,
		Canvases:              tiers,
		Logger:                logger,
		CellScale:             cfg.CellScale,
		BatchSize:             cfg.BatchSize,
		BatchDelay:            cfg.BatchDelay(),
		ImmediateHead:         cfg.ImmediateHead,
		ImmediateWorkers:      cfg.ImmediateWorkers,
		DeferredChunk:         cfg.DeferredChunk,
		DeferredWorkers:       cfg.DeferredWorkers,
		IdleDelay:             cfg.IdleDelay(),
		SettleDelay:           cfg.SettleDelay(),
		RepaintDelay:          cfg.RepaintDelay(),
		PreserveContentWindow: cfg.PreserveContentWindow(),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	// Seed from every canvas known to carry content.
	if ids, err := client.PaintedTerritoryIDs(ctx); err != nil {
		logger.Warn("failed to list painted territories", "error", err)
	} else if len(ids) > 0 {
		logger.Info("seeding reconciliation", "territories", len(ids))
		if err := eng.LoadProgressively(ctx, ids); err != nil {
			logger.Warn("seed pass interrupted", "error", err)
		}
	}

	feed := api.NewFeed(cfg.FeedURL, func(e api.Event) {
		go dispatch(ctx, eng, e, logger)
	}, logger)

	logger.Info("terrasyncd running", "store", cfg.RemoteBaseURL)
	if err := feed.Run(ctx); err != context.Canceled {
		return fmt.Errorf("event feed stopped: %w", err)
	}
	return nil
}

// dispatch maps one feed event onto the engine's entry points.
func dispatch(ctx context.Context, eng *engine.Engine, e api.Event, logger *slog.Logger) {
	var err error
	switch e.Type {
	case api.EventTypeContentSaved:
		err = eng.OnContentSaved(ctx, e.TerritoryID)
	case api.EventTypeOwnershipChanged:
		err = eng.OnOwnershipChanged(ctx, e.TerritoryID, e.ForceRefresh)
	case api.EventTypeTerritorySelected:
		err = eng.OnTerritorySelected(ctx, e.TerritoryID)
	case api.EventTypeLayerAdded:
		err = eng.OnLayerAdded(ctx, e.TerritoryIDs)
	case api.EventTypeMetadataAvailable:
		err = eng.OnMetadataAvailable(ctx, e.TerritoryIDs)
	default:
		logger.Debug("ignoring unknown feed event", "type", e.Type)
		return
	}
	if err != nil && ctx.Err() == nil {
		logger.Warn("event reconciliation failed", "type", e.Type, "territory", e.TerritoryID, "error", err)
	}
}
