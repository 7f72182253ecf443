package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/skyengage/internal/bsky"
	"github.com/bluesky-social/skyengage/internal/config"
	"github.com/bluesky-social/skyengage/internal/engage"
	"github.com/bluesky-social/skyengage/internal/state"
	"github.com/bluesky-social/skyengage/internal/ticker"
	"github.com/bluesky-social/skyengage/pkg/metrics"
	"github.com/bluesky-social/skyengage/util/svcutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "skyengage",
		Usage:   "follow, like, and greet new followers on Bluesky, without repeating past actions",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to YAML configuration file",
				Required: true,
				EnvVars:  []string{"SKYENGAGE_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "validate configuration and load state without contacting any service",
				EnvVars: []string{"SKYENGAGE_DRY_RUN"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				Value:   "info",
				EnvVars: []string{"SKYENGAGE_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log output format: text or json",
				Value:   "text",
				EnvVars: []string{"SKYENGAGE_LOG_FORMAT"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "repeat the run on this interval until interrupted; zero runs once",
				EnvVars: []string{"SKYENGAGE_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    "metrics-listen",
				Usage:   "IP or address, and port, to listen on for metrics APIs (disabled if empty)",
				EnvVars: []string{"SKYENGAGE_METRICS_LISTEN"},
			},
		},
		Action: runEngage,
	}

	return app.Run(args)
}

func runEngage(cctx *cli.Context) error {
	logger, err := svcutil.ConfigLogger(cctx.String("log-level"), cctx.String("log-format"), os.Stdout)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTEL, err := configOTEL(ctx, "skyengage")
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			logger.Error("failed to shutdown trace exporter", "err", err)
		}
	}()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close state store", "err", err)
		}
	}()

	svc := bsky.NewService(bsky.Config{
		Logger:            logger,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	eng := engage.NewEngine(cfg, store, svc, logger)
	eng.DryRun = cctx.Bool("dry-run")
	interval := cctx.Duration("interval")

	// the metrics server lives as long as the engine does
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := metrics.RunServer(gctx, cctx.String("metrics-listen")); err != nil {
			return fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if interval > 0 && !eng.DryRun {
			logger.Info("running periodically", "interval", interval)
			return ticker.Periodically(gctx, logger, interval, eng.Run)
		}
		return eng.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		if ctx.Err() != nil {
			logger.Info("interrupted, shutting down")
		}
		return nil
	}
	return err
}

func openStore(cfg *config.Config) (state.Store, func() error, error) {
	if cfg.Storage.DatabaseURL != "" {
		db, err := state.SetupDatabase(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, &config.Error{Err: fmt.Errorf("storage.database_url: %w", err)}
		}
		store, err := state.NewSQLStore(db)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	store, err := state.NewFileStore(cfg.Storage.Directory)
	if err != nil {
		return nil, nil, &config.Error{Err: fmt.Errorf("storage.directory: %w", err)}
	}
	return store, func() error { return nil }, nil
}
