package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"workbench/internal/agent"
	"workbench/internal/config"
	"workbench/internal/events"
	"workbench/internal/executor"
	"workbench/internal/httpapi"
	"workbench/internal/limiter"
	"workbench/internal/providers/codexcli"
	"workbench/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("db_driver", cfg.DB.Driver).
		Bool("redis", cfg.Redis.Addr != "").
		Msg("starting agentd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	var rdb *redis.Client
	var rl *limiter.RateLimiter
	sinks := []events.Sink{&events.StoreSink{Store: store}}
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()

		rl = limiter.New(rdb, cfg.Rate.PerHour)
		sinks = append(sinks, &events.StreamSink{
			Redis:  rdb,
			Prefix: cfg.Redis.EventStream,
			TTL:    cfg.Redis.EventTTL,
		})
	}

	bus := events.NewBroadcaster(events.BroadcasterConfig{
		Buffer: cfg.Events.Buffer,
		Sinks:  sinks,
		Logger: log.Logger,
	})
	defer bus.Close()

	runtimeCfg := codexcli.Config{
		BinaryName:       cfg.Runtime.BinaryName,
		Args:             cfg.Runtime.DefaultArgs,
		Timeout:          cfg.Runtime.DefaultTimeout,
		TemplateReplies:  cfg.Runtime.TemplateReplies,
		ReinforcedSuffix: cfg.Runtime.ReinforcedSuffix,
	}

	exec := executor.New(executor.Config{Store: store, Bus: bus, Logger: log.Logger})
	router := agent.New(agent.Config{
		Store:      store,
		Bus:        bus,
		Executor:   exec,
		HTTPClient: &http.Client{Timeout: cfg.HTTP.ClientTimeout},
		Runtime:    runtimeCfg,
		Logger:     log.Logger,
	})

	api := httpapi.New(httpapi.Config{
		Router:  router,
		Exec:    exec,
		Store:   store,
		Bus:     bus,
		Runtime: codexcli.New(runtimeCfg),
		Limiter: rl,
		Logger:  log.Logger,
	})

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(cfg.MetricsPath, promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
