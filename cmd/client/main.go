package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/backend/remote"
	"github.com/DoyleJ11/multiplayer-sessions/internal/config"
	"github.com/DoyleJ11/multiplayer-sessions/internal/coordinator"
	"github.com/DoyleJ11/multiplayer-sessions/internal/logging"
)

const usage = "usage: client host|join"

func main() {
	if len(os.Args) != 2 || (os.Args[1] != "host" && os.Args[1] != "join") {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, os.Args[1], log); err != nil {
		log.Error("menu failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Client, action string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := remote.Dial(ctx, cfg.ServerURL, remote.WithHostAddress(cfg.AdvertiseAddr), remote.WithLogger(log))
	if err != nil {
		return err
	}
	defer backend.Close()

	m := newMenu(log)
	co, err := coordinator.New(ctx, backend, m, coordinator.WithLogger(log))
	if err != nil {
		return err
	}
	defer co.Close()

	if err := co.Configure(cfg.SessionConfig()); err != nil {
		return err
	}
	return m.run(ctx, co, action, cfg.RequestTimeout)
}
