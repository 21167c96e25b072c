package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sekai02/redcloud-pages/internal/api"
	"github.com/sekai02/redcloud-pages/internal/config"
	"github.com/sekai02/redcloud-pages/internal/logging"
	"github.com/sekai02/redcloud-pages/internal/metrics"
	"github.com/sekai02/redcloud-pages/internal/pagefile"
	"github.com/sekai02/redcloud-pages/internal/storage"
	"github.com/sekai02/redcloud-pages/internal/stream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "pages-server",
		Usage: "Serve random-access byte streams stored as pages in an object store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", TakesFile: true, Usage: "JSON config file", EnvVars: []string{"PAGES_CONFIG"}},
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address", EnvVars: []string{"PAGES_LISTEN"}},
			&cli.StringFlag{Name: "backend", Usage: "Backing store type (memory, badger, dir, s3)", EnvVars: []string{"PAGES_BACKEND"}},
			&cli.StringFlag{Name: "backend-path", Usage: "Badger directory or dir backend root", EnvVars: []string{"PAGES_BACKEND_PATH"}},
			&cli.StringFlag{Name: "log-level", Usage: "Set log level (debug, info, warn, error)", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Usage: "Log format (text, json)", EnvVars: []string{"LOG_FORMAT"}},
			&cli.BoolFlag{Name: "purge-on-delete", Usage: "Also remove page objects and size records on delete", EnvVars: []string{"PAGES_PURGE_ON_DELETE"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("backend") {
		cfg.Backend.Type = c.String("backend")
	}
	if c.IsSet("backend-path") {
		cfg.Backend.Path = c.String("backend-path")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("purge-on-delete") {
		cfg.PurgeOnDelete = c.Bool("purge-on-delete")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Backend)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend.Type, err)
	}
	defer store.Close()

	metrics.Register()

	streams := stream.NewManager(store,
		pagefile.WithLogger(logger),
		pagefile.WithPurge(cfg.PurgeOnDelete),
	)
	defer streams.CloseAll()

	service := api.NewService(streams)
	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: newMux(service),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting server", "addr", cfg.Listen, "backend", cfg.Backend.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
