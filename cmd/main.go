package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/S1riyS/vnodefs/internal/config"
	"github.com/S1riyS/vnodefs/internal/handler"
	"github.com/S1riyS/vnodefs/internal/repository"
	"github.com/S1riyS/vnodefs/internal/service"
	"github.com/S1riyS/vnodefs/pkg/database/postgresql"
	"github.com/S1riyS/vnodefs/pkg/logging"
	"github.com/S1riyS/vnodefs/pkg/logging/slogext"
)

const (
	defaultConfigPath = "configs/config.yaml"
	memoryJournalSize = 1024
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML config")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger := logging.NewLogger(cfg.App.Env, os.Stdout)

	// Root context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.MakeContextWithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", slogext.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	const op = "main.run"

	log := logging.GetLoggerFromContextWithOp(ctx, op)

	// Dependencies
	events, closeEvents, err := newEventRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeEvents()

	tree, err := service.BuildTree(ctx, cfg.VFS)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tree.Release()

	svc := service.NewFileSystemService(tree, events, cfg.VFS.FDTableSize)
	h := handler.NewHandler(svc)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      h.NewRouter(logger),
		ReadTimeout:  cfg.App.DefaultTimeout,
		WriteTimeout: cfg.App.DefaultTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		svc.Shutdown(shutdownCtx)
		return err
	})

	return g.Wait()
}

// newEventRepository returns the Postgres journal when the database is
// enabled and an in-memory one otherwise.
func newEventRepository(ctx context.Context, cfg *config.Config) (repository.EventRepository, func(), error) {
	const op = "main.newEventRepository"

	log := logging.GetLoggerFromContextWithOp(ctx, op)

	if !cfg.Database.Enabled {
		log.Info("Database disabled, journaling in memory", slog.Int("capacity", memoryJournalSize))
		return repository.NewMemoryEventRepository(memoryJournalSize), func() {}, nil
	}

	db := postgresql.MustNewClient(ctx, cfg.Database, cfg.App.DefaultTimeout)
	events := repository.NewEventRepository(db, cfg.Database.AuditTable)
	if err := events.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	log.Info("Journaling to database", slog.String("table", cfg.Database.AuditTable))
	return events, db.Close, nil
}
