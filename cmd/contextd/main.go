package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-context/internal/api"
	"github.com/nidhogg/nuka-context/internal/config"
	"github.com/nidhogg/nuka-context/internal/entity"
	"github.com/nidhogg/nuka-context/internal/store"
	"github.com/nidhogg/nuka-context/internal/telemetry"
	"github.com/nidhogg/nuka-context/internal/window"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/context.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Config loaded", zap.String("path", cfgPath))

	manager, err := window.NewManager(cfg.WindowLimits(), logger)
	if err != nil {
		logger.Fatal("invalid window limits", zap.Error(err))
	}
	handler := api.NewHandler(manager, logger)

	ctx := context.Background()

	// PostgreSQL conversation store
	var pgStore *store.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := store.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without conversation store", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			handler.SetStore(pgStore)
			logger.Info("PostgreSQL connected")
		}
	}

	// Redis retention telemetry
	var bus *telemetry.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := telemetry.NewBus(cfg.Database.Redis.URL, cfg.Telemetry.Stream, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without retention telemetry", zap.Error(busErr))
		} else {
			bus = b
			handler.SetPublisher(bus)
			logger.Info("Redis connected", zap.String("stream", bus.Stream()))
		}
	}

	// Neo4j entity graph
	var graph *entity.Graph
	if cfg.Database.Neo4j.URI != "" {
		g, gErr := entity.NewGraph(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr == nil {
			gErr = g.Ping(ctx)
			if gErr != nil {
				g.Close(ctx)
			}
		}
		if gErr != nil {
			logger.Warn("Neo4j unavailable, using stored entity counts", zap.Error(gErr))
		} else {
			graph = g
			handler.SetEntityGraph(graph)
			logger.Info("Neo4j connected")
		}
	}

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "3300"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Context service listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down context service...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if graph != nil {
		graph.Close(shutdownCtx)
	}
	if bus != nil {
		bus.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
	logger.Info("Context service stopped")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	switch level {
	case "", "debug":
		logger, err = zap.NewDevelopment()
	default:
		cfg := zap.NewProductionConfig()
		if lvl, lerr := zap.ParseAtomicLevel(level); lerr == nil {
			cfg.Level = lvl
		}
		logger, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
