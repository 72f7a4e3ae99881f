package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/internal/balance"
	"github.com/tiloneee/tigo-booking-balance-gateway/internal/config"
	"github.com/tiloneee/tigo-booking-balance-gateway/internal/gateway"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/health"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/logger"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/metrics"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/redis"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("starting balance gateway")

	// All three Redis connections must be up before anything serves; a
	// partial store is worse than a crashed process a supervisor restarts.
	store, err := redis.Connect(redis.Config{
		Host:         cfg.RedisHost,
		Port:         cfg.RedisPort,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
		MaxRetries:   cfg.RedisMaxRetries,
	}, log)
	if err != nil {
		log.Error("failed to connect to Redis", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(log)
	cache := balance.NewCache(store, log)
	authn := gateway.NewAuthenticator(cfg.JWTSecret, log)
	gw := gateway.New(hub, store, cache, authn, cfg.WSAllowedOrigins, log)

	broadcaster := gateway.NewBroadcaster(hub, store, log)
	if err := broadcaster.Start(ctx); err != nil {
		log.Error("failed to start broadcaster", zap.Error(err))
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("redis", store.Ping)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	mux.HandleFunc("/healthz", checker.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("listening for WebSocket connections", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	go func() {
		if err := metrics.Serve(":"+cfg.MetricsPort, log); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	select {
	case err := <-errChan:
		log.Error("server failed", zap.Error(err))
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
