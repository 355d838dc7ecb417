package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	jobhandler "github.com/aliskhannn/pixmo/internal/api/handlers/job"
	libraryhandler "github.com/aliskhannn/pixmo/internal/api/handlers/library"
	sessionhandler "github.com/aliskhannn/pixmo/internal/api/handlers/session"
	targethandler "github.com/aliskhannn/pixmo/internal/api/handlers/target"
	"github.com/aliskhannn/pixmo/internal/api/router"
	"github.com/aliskhannn/pixmo/internal/api/server"
	"github.com/aliskhannn/pixmo/internal/cleanup"
	"github.com/aliskhannn/pixmo/internal/config"
	"github.com/aliskhannn/pixmo/internal/indexer"
	jobrepo "github.com/aliskhannn/pixmo/internal/repository/job"
	libraryrepo "github.com/aliskhannn/pixmo/internal/repository/library"
	sessionrepo "github.com/aliskhannn/pixmo/internal/repository/session"
	targetrepo "github.com/aliskhannn/pixmo/internal/repository/target"
	"github.com/aliskhannn/pixmo/internal/service"
	"github.com/aliskhannn/pixmo/internal/storage/file"
	"github.com/aliskhannn/pixmo/internal/store"
	"github.com/aliskhannn/pixmo/internal/supervisor"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad()

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for durable writes issued from asynchronous tasks.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Local file storage for targets, thumbnails, snapshots and results.
	storage, err := file.NewStorage(cfg.Storage.BaseDir)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Two-tier state store over the typed repositories.
	st := store.New(store.Repos{
		Sessions:  sessionrepo.NewRepository(db),
		Targets:   targetrepo.NewRepository(db),
		Libraries: libraryrepo.NewRepository(db),
		Jobs:      jobrepo.NewRepository(db),
	}, storage, cfg.Indexer.Quant, strategy)

	// One semaphore bounds indexing and compositing tasks together.
	sem := semaphore.NewWeighted(int64(cfg.Jobs.MaxConcurrent))

	ix := indexer.New(st, storage, cfg.Indexer, sem)
	sup := supervisor.New(st, storage, sem, cfg.Indexer.ThumbSize)
	svc := service.New(ctx, st, storage, ix, cfg.Indexer.AllowedExtSet())

	// TTL sweep for idle sessions.
	sweeper := cleanup.New(st, cfg.Session.TTL, cfg.Session.CleanupInterval)
	var wg sync.WaitGroup
	wg.Add(1)
	go sweeper.Run(ctx, &wg)

	// HTTP surface.
	r := router.Setup(
		st.Sessions,
		targethandler.NewHandler(svc, storage),
		libraryhandler.NewHandler(svc),
		jobhandler.NewHandler(sup, st.Jobs, storage),
		sessionhandler.NewHandler(svc),
	)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("server started")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for the sweeper goroutine to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}
}
