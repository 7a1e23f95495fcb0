package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/session-cart/internal/cart"
	"github.com/fjod/go_cart/session-cart/internal/catalog"
	"github.com/fjod/go_cart/session-cart/internal/config"
	h "github.com/fjod/go_cart/session-cart/internal/http"
	"github.com/fjod/go_cart/session-cart/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	repo, err := catalog.NewRepository(cfg.DBPath, cfg.Lookups())
	if err != nil {
		logger.Fatal("failed to open catalog", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("catalog migrations completed", zap.String("db_path", cfg.DBPath))

	ctx := context.Background()
	store, closeStore, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to set up session store", zap.String("backend", cfg.SessionBackend), zap.Error(err))
	}
	defer closeStore()

	router := h.NewRouter(h.RouterConfig{
		Catalog:        catalog.NewService(repo),
		Store:          store,
		Cart:           cart.Config{SessionKey: cfg.CartSessionKey},
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("session cart service starting", zap.String("addr", srv.Addr), zap.String("session_backend", cfg.SessionBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		return session.NewRedisStore(client, cfg.SessionTTL), func() { client.Close() }, nil

	case config.BackendMongo:
		db, err := session.ConnectMongoDB(ctx, session.MongoConfig{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDBName,
			MaxPoolSize:    cfg.MongoMaxPoolSize,
			ConnectTimeout: cfg.MongoConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		store := session.NewMongoStore(db, cfg.SessionTTL)
		if err := store.CreateIndexes(ctx); err != nil {
			db.Client().Disconnect(ctx)
			return nil, nil, err
		}
		logger.Info("connected to mongodb", zap.String("database", cfg.MongoDBName))
		return store, func() { db.Client().Disconnect(context.Background()) }, nil

	default:
		logger.Warn("using in-memory sessions, carts are lost on restart")
		return session.NewMemoryStore(), func() {}, nil
	}
}
