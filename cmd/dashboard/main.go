package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tonk1e/RickBot/internal/archive"
	"github.com/Tonk1e/RickBot/internal/config"
	"github.com/Tonk1e/RickBot/internal/dashboard"
	"github.com/Tonk1e/RickBot/internal/logging"
	"github.com/Tonk1e/RickBot/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadDashboard()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)
	log.Info("starting dashboard")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer store.Close()

	var history dashboard.HistoryStore
	if cfg.MongoURL != "" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		archiveStore, err := archive.Open(connectCtx, cfg.MongoURL, cfg.MongoDatabase)
		connectCancel()
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = archiveStore.Close(closeCtx)
		}()
		history = archiveStore
	} else {
		log.Warn("MONGO_URL not set, command history disabled")
	}

	server := dashboard.NewServer(cfg, store, history, log)
	return server.Serve(ctx)
}
