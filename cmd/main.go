package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/retailgrid/inventory-engine/internal/cache"
	"github.com/retailgrid/inventory-engine/internal/catalog"
	"github.com/retailgrid/inventory-engine/internal/clients"
	"github.com/retailgrid/inventory-engine/internal/ops"
	"github.com/retailgrid/inventory-engine/internal/publisher"
	"github.com/retailgrid/inventory-engine/internal/repository"
	"github.com/retailgrid/inventory-engine/internal/service"
	"github.com/retailgrid/inventory-engine/internal/sweeper"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		logger.Fatal("DB_PORT must be an integer", zap.Error(err))
	}

	cred := &repository.Credentials{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              dbPort,
		User:              getEnv("DB_USER", "inventory"),
		Password:          getEnv("DB_PASSWORD", "inventory"),
		DBName:            getEnv("DB_NAME", "inventory"),
		MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}

	repo, err := repository.NewRepository(cred)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(cred); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Connected to postgres, schema up to date")

	redisClient := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})
	defer redisClient.Close()
	nameCache := cache.NewRedisNameCache(redisClient)

	catalogTimeout, err := strconv.Atoi(getEnv("CATALOG_TIMEOUT_SECONDS", "5"))
	if err != nil {
		catalogTimeout = 5
	}
	catalogClient := clients.NewCatalogClient(
		getEnv("CATALOG_SERVICE_URL", "http://localhost:8080"),
		time.Duration(catalogTimeout)*time.Second,
	)
	cachedCatalog := catalog.NewCachedCatalog(catalogClient, nameCache, logger)

	engine := service.NewInventoryService(repo, cachedCatalog, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	poller := publisher.NewOutboxPoller(repo, logger, brokers...)
	go poller.Run(ctx)

	sweepSeconds, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_SECONDS", "30"))
	if err != nil {
		sweepSeconds = 30
	}
	sw := sweeper.New(engine, time.Duration(sweepSeconds)*time.Second, logger)
	go sw.Run(ctx)

	opsSrv := &http.Server{
		Addr:    ":" + getEnv("OPS_PORT", "8090"),
		Handler: ops.NewRouter(engine, logger),
	}
	go func() {
		logger.Info("Ops server listening", zap.String("addr", opsSrv.Addr))
		if e := opsSrv.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
			logger.Fatal("Ops server failed", zap.Error(e))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down inventory engine")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops server shutdown failed", zap.Error(err))
	}
	if err := poller.Close(); err != nil {
		logger.Error("Failed to close kafka writer", zap.Error(err))
	}
	logger.Info("Inventory engine stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
