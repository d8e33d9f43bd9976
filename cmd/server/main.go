package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matchcore/lobby-server/internal/config"
	"github.com/matchcore/lobby-server/internal/directory"
	"github.com/matchcore/lobby-server/internal/httpapi"
	"github.com/matchcore/lobby-server/internal/hub"
	"github.com/matchcore/lobby-server/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lobby-server:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("LOBBY_CONFIG"), "path to config file")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dir directory.Directory
	switch cfg.Directory.Backend {
	case "postgres":
		pg, err := directory.NewPostgres(cfg.Directory.DSN)
		if err != nil {
			return err
		}
		dir = pg
	default:
		dir = directory.NewMemory()
	}
	pub := directory.NewPublisher(ctx, dir, logger)

	h := hub.New(ctx, cfg.Lobby, pub, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: httpapi.NewRouter(h, dir, logger),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("directory_backend", cfg.Directory.Backend),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		h.Inbox() <- hub.Shutdown{}

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}
