package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/huddle/matchmaker/internal/config"
	"github.com/huddle/matchmaker/internal/logging"
	"github.com/huddle/matchmaker/internal/matching"
	"github.com/huddle/matchmaker/internal/messaging"
	"github.com/huddle/matchmaker/internal/metrics"
	"github.com/huddle/matchmaker/internal/ratelimit"
	"github.com/huddle/matchmaker/internal/store"
)

func main() {
	log := logging.New("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("set log level")
	}

	log.Info().Msg("starting huddle matching service")

	// Redis backs the redis store and the submission rate limiter.
	var rdb *redis.Client
	if cfg.StoreBackend != config.BackendMemory {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		switch {
		case err != nil && cfg.StoreBackend == config.BackendRedis:
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect to Redis")
		case err != nil:
			log.Warn().Err(err).Msg("Redis unavailable, submissions will not be rate limited")
			rdb.Close()
			rdb = nil
		}
	}

	st, closeStore := openStore(cfg, rdb)
	defer closeStore()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}

	engineCfg := matching.DefaultConfig()
	engineCfg.MaxDistanceMiles = cfg.MaxDistanceMiles
	engine := matching.NewEngine(st, matching.NewNATSPublisher(natsClient), engineCfg)

	svcCfg := matching.DefaultServiceConfig()
	svcCfg.SweepInterval = cfg.SweepInterval
	svcCfg.SubmitRule.Limit = cfg.SubmitRateLimit
	svcCfg.SubmitRule.Window = cfg.SubmitRateWindow

	var limiter matching.RateLimiter
	if rdb != nil {
		limiter = ratelimit.NewLimiter(rdb)
	}

	svc := matching.NewService(engine, natsClient, limiter, svcCfg)
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("start matching service")
	}

	// Metrics and health.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("nats_url", cfg.NATSURL).
		Str("metrics_addr", cfg.MetricsAddr).
		Float64("max_distance_miles", cfg.MaxDistanceMiles).
		Msg("huddle matching service running")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	svc.Stop()
	natsClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
	if rdb != nil {
		rdb.Close()
	}
}

// openStore builds the configured document store and returns a cleanup func.
func openStore(cfg config.Config, rdb *redis.Client) (store.Store, func()) {
	log := logging.New("main")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return store.NewMemory(), func() {}

	case config.BackendRedis:
		return store.NewRedis(rdb), func() {}

	case config.BackendPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to Postgres")
		}
		if err := pg.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("migrate Postgres")
		}
		return pg, func() { pg.Close() }

	case config.BackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatal().Err(err).Msg("load AWS config")
		}
		return store.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), func() {}
	}

	log.Fatal().Str("backend", cfg.StoreBackend).Msg("unknown store backend")
	return nil, nil
}
