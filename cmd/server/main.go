package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/multiplayer-sessions/internal/config"
	"github.com/DoyleJ11/multiplayer-sessions/internal/httpapi"
	"github.com/DoyleJ11/multiplayer-sessions/internal/hub"
	"github.com/DoyleJ11/multiplayer-sessions/internal/logging"
	"github.com/DoyleJ11/multiplayer-sessions/internal/store"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		os.Stderr.WriteString("logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Server, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []hub.Option{hub.WithLogger(log)}
	if cfg.DatabaseURL != "" {
		st, err := store.Open(cfg.DatabaseURL, cfg.DBDebug)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, st.Close()) }()
		opts = append(opts, hub.WithStore(st))
		log.Info("session registry persisted to postgres")
	}

	h, err := hub.NewHub(ctx, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		return err
	})

	return g.Wait()
}
