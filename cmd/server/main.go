package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cleancity/server/internal/account"
	"cleancity/server/internal/config"
	"cleancity/server/internal/db"
	internalhttp "cleancity/server/internal/http"
	"cleancity/server/internal/logger"
	"cleancity/server/internal/report"
	"cleancity/server/internal/session"
	"cleancity/server/internal/store"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// With no DATABASE_URL the server runs on the in-memory store, which is
	// enough for local development.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			zlog.Fatal("db connection failed", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			zlog.Fatal("migrations failed", zap.Error(err))
		}
		st = store.NewPGStore(pool)
	} else {
		zlog.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var sessionStore session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			cancel()
			zlog.Fatal("redis connection failed", zap.Error(err))
		}
		cancel()
		sessionStore = session.NewRedisStore(client)
	} else {
		zlog.Warn("REDIS_ADDR not set, sessions are in-memory")
		sessionStore = session.NewMemoryStore()
	}

	sessions := session.NewManager(sessionStore, cfg.SessionTTL)
	sessions.StartPruner(ctx, cfg.SessionPruneInterval, zlog)

	if cfg.SecretCodeSeed != "" {
		seeded, err := account.SeedSecretCodes(ctx, st, cfg.SecretCodeSeed)
		if err != nil {
			zlog.Fatal("secret code seed failed", zap.Error(err))
		}
		if seeded > 0 {
			zlog.Info("seeded bootstrap secret codes", zap.Int("count", seeded))
		}
	}

	accounts := account.NewService(st, sessions)
	reports := report.NewService(st, accounts)
	server := internalhttp.NewServer(cfg, accounts, reports, zlog)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zlog.Info("cleancity server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
}
