package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/trogers1052/portfolio-service/internal/account"
	"github.com/trogers1052/portfolio-service/internal/aggregator"
	"github.com/trogers1052/portfolio-service/internal/api"
	"github.com/trogers1052/portfolio-service/internal/cache"
	"github.com/trogers1052/portfolio-service/internal/config"
	"github.com/trogers1052/portfolio-service/internal/database"
	"github.com/trogers1052/portfolio-service/internal/kafka"
	"github.com/trogers1052/portfolio-service/internal/logger"
	"github.com/trogers1052/portfolio-service/internal/portfolio"
	"github.com/trogers1052/portfolio-service/internal/position"
)

func main() {
	app := &cli.App{
		Name:  "portfolio-service",
		Usage: "accounts, positions and portfolio aggregation",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the price consumer",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back database migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply all pending migrations",
						Action: migrateUp,
					},
					{
						Name:  "down",
						Usage: "roll back migrations",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
						},
						Action: migrateDown,
					},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration, installs the root logger and opens the database
func setup() (*config.Config, zerolog.Logger, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(log)

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, log, nil, err
	}
	return cfg, log, db, nil
}

func migrateUp(c *cli.Context) error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		return err
	}
	log.Info().Str("path", cfg.Database.MigrationsPath).Msg("Migrations applied")
	return nil
}

func migrateDown(c *cli.Context) error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	steps := c.Int("steps")
	if err := db.MigrateDown(cfg.Database.MigrationsPath, steps); err != nil {
		return err
	}
	log.Info().Int("steps", steps).Msg("Migrations rolled back")
	return nil
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.PriceSource == config.PriceSourceRedis {
		redisClient, err = cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	lookups := aggregator.Lookups{
		Assets:    db,
		Prices:    db,
		Sectors:   db,
		Countries: db,
		Dividends: db,
	}
	var priceWriter kafka.PriceWriter = db
	if redisClient != nil {
		prices := cache.NewPriceStore(redisClient)
		lookups.Prices = prices
		priceWriter = prices
	}

	portfolios := portfolio.NewService(db, log)
	hooks := []account.Hook{portfolios.AccountHook()}
	positionOpts := []position.Option{
		position.WithConflictPolicy(position.ConflictPolicy(cfg.Positions.ConflictPolicy)),
	}

	errCh := make(chan error, 2)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, log)
		defer producer.Close()
		hooks = append(hooks, producer.AccountHook())
		positionOpts = append(positionOpts, position.WithPublisher(producer))

		consumer := kafka.NewPriceConsumer(cfg.Kafka.Brokers, cfg.Kafka.PricesTopic, cfg.Kafka.GroupID, priceWriter, log)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("price consumer stopped: %w", err)
			}
		}()
	}

	accounts := account.NewService(db, db, log, hooks...)
	positions := position.NewService(db, db, log, positionOpts...)
	aggregates := aggregator.NewService(db, db, lookups, log,
		aggregator.WithAccountConcurrency(cfg.Aggregation.AccountConcurrency))

	handler := api.NewHandler(accounts, positions, portfolios, aggregates, db, log)
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.SetupRoutes(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Service failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
	return runErr
}
