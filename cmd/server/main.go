package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"room-chat/internal/api/handlers"
	"room-chat/internal/api/middleware"
	"room-chat/internal/api/routes"
	"room-chat/internal/config"
	"room-chat/internal/database"
	"room-chat/internal/repository"
	"room-chat/internal/services"
	"room-chat/internal/websocket"
	"room-chat/pkg/logger"

	"github.com/hashicorp/go-metrics"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	log.Info("Starting chat server", "version", version)

	// In-memory metrics served at /metrics, dumped to stderr on SIGUSR1
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	signalDump := metrics.DefaultInmemSignal(sink)
	defer signalDump.Stop()

	hubOpts := []websocket.Option{
		websocket.WithSendBufferSize(cfg.Hub.SendBufferSize),
		websocket.WithMaxFrameBytes(cfg.Hub.MaxFrameBytes),
		websocket.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		websocket.WithMetricSink(sink),
	}

	// Redis is optional: it mirrors the roster and rate limits /ws
	var limiter middleware.RateLimiter
	var mirror handlers.MirrorReader
	if cfg.Redis.Enabled() {
		redisClient, err := database.NewRedisConnection(cfg.Redis, log)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient, cfg.Redis.KeyPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
		if err := redisService.ResetPresence(ctx); err != nil {
			log.Warn("Failed to clear stale presence", "error", err)
		}
		cancel()

		hubOpts = append(hubOpts, websocket.WithPresenceMirror(redisService))
		limiter = redisService
		mirror = redisService
	} else {
		log.Info("REDIS_URL not set, running without presence mirror and rate limiting")
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(repository.NewPresenceRepository(), log, hubOpts...)
	go hub.Run()

	router := routes.NewRouter(hub, limiter, sink, routes.Settings{
		Version:        version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WSRateLimit:    cfg.Redis.RateLimit,
		WSRateWindow:   cfg.Redis.RateWindow,
		AccessLog:      true,
		Mirror:         mirror,
	})
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		hub.Stop()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Server shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop WebSocket hub first so every client sees a close frame
	hub.Stop()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped")
	return nil
}
