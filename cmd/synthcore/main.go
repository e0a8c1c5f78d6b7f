// Command synthcore boots the synthesis-and-consumption core: the KV
// store, the chat REST client, the durable job store, the Synthesis
// Engine, both Message Consumers, and the health/metrics HTTP surface,
// then hands lifecycle control to the Supervisor. Grounded on the
// teacher's worker/cmd/worker/main.go and api/cmd/server/main.go boot
// sequences, merged into a single process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi/httpclient"
	"github.com/sentinel-synth/synthcore/internal/config"
	"github.com/sentinel-synth/synthcore/internal/consumer/event"
	"github.com/sentinel-synth/synthcore/internal/consumer/interaction"
	"github.com/sentinel-synth/synthcore/internal/engine"
	"github.com/sentinel-synth/synthcore/internal/engine/store/postgres"
	"github.com/sentinel-synth/synthcore/internal/handlers"
	"github.com/sentinel-synth/synthcore/internal/healthapi"
	kvredis "github.com/sentinel-synth/synthcore/internal/kv/redis"
	"github.com/sentinel-synth/synthcore/internal/ratelimit"
	"github.com/sentinel-synth/synthcore/internal/supervisor"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("starting synthesis core")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping PostgreSQL", zap.Error(err))
	}
	logger.Info("connected to PostgreSQL")

	redisOpts, err := goredis.ParseURL(cfg.KV.URL)
	if err != nil {
		logger.Fatal("invalid KV_URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to KV store", zap.Error(err))
	}
	logger.Info("connected to KV store")

	kvStore := kvredis.New(redisClient)
	jobStore := postgres.New(dbPool)
	chatClient := httpclient.New(cfg.Chat.BaseURL, cfg.Chat.Token, logger)

	globalBucket := ratelimit.New(cfg.GlobalBucket.Capacity, cfg.GlobalBucket.RefillRate)

	synthEngine := engine.New(jobStore, kvStore, chatClient, globalBucket, cfg.Engine, cfg.Idempotency.TTLSec, logger)

	caps := &handlers.Capabilities{
		Chat:   chatClient,
		KV:     kvStore,
		Engine: synthEngine,
		Logger: logger,
	}

	eventConsumer := event.New(
		cfg.Broker.URL, cfg.Broker.EventQueue, cfg.Broker.EventPrefetch,
		caps.EventHandlers(), kvStore, time.Duration(cfg.Idempotency.TTLSec)*time.Second, logger,
	)
	interactionConsumer := interaction.New(
		cfg.Broker.URL, cfg.Broker.InteractionQueue, cfg.Broker.InteractionPrefetch,
		caps.InteractionHandlers(), chatClient, logger,
	)

	healthHandler := healthapi.New(logger, kvStore, map[string]healthapi.StatusReporter{
		"event":       eventConsumer,
		"interaction": interactionConsumer,
	}, cfg.Health.MemoryThresholdMb)
	healthRouter := healthapi.NewRouter(healthHandler, logger)

	healthSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:      healthRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("health/metrics server listening", zap.String("addr", healthSrv.Addr))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	sup := supervisor.New(synthEngine, []supervisor.Consumer{eventConsumer, interactionConsumer}, cfg.Shutdown.DrainTimeout, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", zap.Error(err))
	}

	logger.Info("synthesis core stopped")
}
