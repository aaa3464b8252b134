package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/hearth/internal/config"
	"github.com/dukerupert/hearth/internal/database"
	"github.com/dukerupert/hearth/internal/logging"
	"github.com/dukerupert/hearth/internal/push"
	"github.com/dukerupert/hearth/internal/server"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		defer rdb.Close()
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	} else {
		logger.Info("redis not configured, using in-memory presence")
	}

	if cfg.Push.VAPIDPublicKey == "" && cfg.Push.VAPIDPrivateKey == "" && cfg.Server.IsDevelopment() {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			logger.Error("failed to generate VAPID keys", "error", err)
			os.Exit(1)
		}
		cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey = pub, priv
		logger.Warn("using ephemeral VAPID keys; push subscriptions will not survive a restart")
	}

	srv := server.New(cfg, db, rdb, logger)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	srv.Scheduler().Start(bgCtx)
	go srv.RateLimiter().Run(bgCtx, time.Minute)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("hearth listening", "addr", cfg.Server.Addr(), "env", cfg.Server.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	srv.Scheduler().Stop()
	stopBackground()
	srv.Drain()
}
