package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatnest/internal/platform/presencestore"
	"github.com/Tyrowin/chatnest/internal/platform/roomfeed"
	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/Tyrowin/chatnest/internal/server"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatnest terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()
	envCfg, err := server.NewConfigFromEnv()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	cfg := server.SetConfig(envCfg)

	logger := logs.GetLoggerFromString(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Core
	hub := realtime.NewHub(logger, cfg.HubOptions())
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error("Hub stopped", "error", err)
		}
	}()

	// 3. Optional integrations
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(presencestore.Options(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		defer func() {
			logger.Info("Closing Redis...")
			_ = rdb.Close()
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return exitRuntime, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		mirror := presencestore.NewMirror(logger, rdb, cfg.PresenceTTL)
		hub.Presence().AddListener(mirror)
		go func() {
			if err := mirror.Run(ctx); err != nil {
				logger.Error("Presence mirror stopped", "error", err)
			}
		}()
		logger.Info("Presence mirror enabled", "addr", cfg.RedisAddr)
	}

	if cfg.NATSURL != "" {
		feed, err := roomfeed.Connect(logger, roomfeed.Config{URL: cfg.NATSURL, Subject: cfg.RoomEventsSubject}, hub)
		if err != nil {
			return exitRuntime, err
		}
		defer func() {
			logger.Info("Draining room feed...")
			_ = feed.Close()
		}()
	}

	// 4. Gateway & HTTP
	verifier := server.NewTokenVerifier(cfg.JWTSecret)
	if verifier == nil {
		logger.Warn("JWT_SECRET not set; join frames are trusted without a token")
	}
	gateway := server.NewGateway(logger, hub, verifier)
	go gateway.Run()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(gateway))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(logger, httpServer)
	}()

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			code, runErr = exitRuntime, fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	// 5. Graceful shutdown
	if err := server.ShutdownServer(logger, httpServer, cfg.ShutdownTimeout); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := gateway.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("Gateway shutdown incomplete", "error", err)
	}
	return code, runErr
}
