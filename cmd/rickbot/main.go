package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tonk1e/RickBot/internal/archive"
	"github.com/Tonk1e/RickBot/internal/bot"
	"github.com/Tonk1e/RickBot/internal/command"
	"github.com/Tonk1e/RickBot/internal/config"
	"github.com/Tonk1e/RickBot/internal/logging"
	"github.com/Tonk1e/RickBot/internal/plugins/moderator"
	"github.com/Tonk1e/RickBot/internal/plugins/music"
	"github.com/Tonk1e/RickBot/internal/plugins/presence"
	"github.com/Tonk1e/RickBot/internal/plugins/search"
	"github.com/Tonk1e/RickBot/internal/storage"
	"github.com/Tonk1e/RickBot/internal/tasks"
)

const historyKeepPerGuild = 500

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadBot()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)
	log.Info("starting rickbot")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer store.Close()

	var recorder command.Recorder
	var history *archive.Store
	if cfg.MongoURL != "" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		history, err = archive.Open(connectCtx, cfg.MongoURL, cfg.MongoDatabase)
		connectCancel()
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = history.Close(closeCtx)
		}()
		recorder = history
	} else {
		log.Warn("MONGO_URL not set, command history disabled")
	}

	b, err := bot.New(cfg.DiscordToken, log)
	if err != nil {
		return err
	}
	platform := b.Platform()

	factory := &bot.AudioFactory{Session: b.Session, Log: log}
	coord := music.NewCoordinator(store, factory, cfg.PlayerVolume, log)

	var resolver music.TrackResolver
	searchPlugin := &search.Plugin{Urban: search.NewUrban(), Log: log}
	if cfg.GoogleAPIKey != "" {
		yt, err := search.NewYouTube(ctx, cfg.GoogleAPIKey)
		if err != nil {
			return err
		}
		searchPlugin.Videos = yt
		resolver = searchPlugin
	} else {
		log.Warn("GOOGLE_API_KEY not set, youtube lookups disabled")
	}

	mod := moderator.New(store, platform, platform, platform, platform, log)
	musicPlugin := &music.Plugin{
		Coord:       coord,
		Voice:       platform,
		Resolver:    resolver,
		PlaylistURL: cfg.PlaylistURL,
		Log:         log,
	}

	registry := command.NewRegistry()
	if err := registry.Register(mod.Commands()...); err != nil {
		return err
	}
	if err := registry.Register(musicPlugin.Commands()...); err != nil {
		return err
	}
	if searchPlugin.Videos != nil {
		if err := registry.Register(searchPlugin.Commands()...); err != nil {
			return err
		}
	}

	b.Dispatch = command.NewDispatcher(store, registry, platform, recorder, log)
	b.Moderator = mod
	b.Presence = presence.New(cfg.Game, log)

	runner := tasks.NewRunner(log)
	if history != nil {
		runner.Every(ctx, "archive-trim", time.Hour, func(ctx context.Context) error {
			guilds, err := history.Guilds(ctx)
			if err != nil {
				return err
			}
			for _, guildID := range guilds {
				if _, err := history.Trim(ctx, guildID, historyKeepPerGuild); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err = b.Run(ctx)
	runner.Wait()
	return err
}
