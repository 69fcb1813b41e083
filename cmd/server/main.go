package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/bluebricks/rba-harness/internal/batch"
	"github.com/bluebricks/rba-harness/internal/client"
	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/device"
	"github.com/bluebricks/rba-harness/internal/exchangelog"
	"github.com/bluebricks/rba-harness/internal/handler"
	"github.com/bluebricks/rba-harness/internal/middleware"
	"github.com/bluebricks/rba-harness/internal/payload"
	"github.com/bluebricks/rba-harness/internal/repository"
	"github.com/bluebricks/rba-harness/internal/service"
	"github.com/bluebricks/rba-harness/internal/telemetry"
	"github.com/bluebricks/rba-harness/internal/util/logger"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

var version = "development"

func main() {
	configPath := flag.String("config", "config/app-config.yaml", "path to the YAML config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	logger.ReplaceGlobal(&logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Encoding,
		Output:     cfg.Logger.Output,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	})
	defer logger.Sync()

	awsCtx, cancelAWS := context.WithTimeout(ctx, 10*time.Second)
	if err := config.ResolveAWS(awsCtx, cfg); err != nil {
		logger.Fatalf("AWS config resolution failed: %v", err)
	}
	cancelAWS()

	// Redis backs the token cache and shared rate limiting. It is optional.
	var rcli *client.RedisClient
	if cfg.RedisURL != "" {
		rcli, err = client.NewRedisClient(ctx, client.RedisConfig{
			URL:     cfg.RedisURL,
			Breaker: client.BreakerConfig{Enabled: true},
		})
		if err != nil {
			logger.Fatalf("Redis init failed: %v", err)
		}
		defer rcli.Close()
	}

	// Telemetry sinks
	kafkaShipper, err := telemetry.NewKafkaShipper(cfg.Telemetry.Kafka)
	if err != nil {
		logger.Fatalf("Kafka shipper: %v", err)
	}
	esShipper, err := telemetry.NewESShipper(cfg.Telemetry.ES)
	if err != nil {
		logger.Fatalf("Elasticsearch shipper: %v", err)
	}

	sinks := telemetry.Fanout{kafkaShipper}
	var k2es *telemetry.KafkaToES
	if cfg.Telemetry.ES.ConsumeKafka && cfg.Telemetry.Kafka.Enabled {
		k2es = telemetry.NewKafkaToES(cfg.Telemetry.Kafka, esShipper)
	} else {
		sinks = append(sinks, esShipper)
	}

	var db *sql.DB
	var archive *repository.Archive
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("DB open error: %v", err)
		}
		defer db.Close()

		repo := repository.NewPostgresExchangeRepository(db)
		schemaCtx, cancelSchema := context.WithTimeout(ctx, 10*time.Second)
		if err := repo.EnsureSchema(schemaCtx); err != nil {
			logger.Fatalf("exchange archive schema: %v", err)
		}
		cancelSchema()
		archive = repository.NewArchive(repo, repository.ArchiveOptions{})
		sinks = append(sinks, archive)
	}

	exchanges := exchangelog.NewBuffer(cfg.ExchangeLog.Capacity, sinks)

	// Domain services
	rng := random.New()
	api := client.NewRiskAPIClient(cfg.Upstream, nil)
	if !api.Configured() && !cfg.MockMode {
		logger.Warnf("upstream base_url is empty and mock mode is off; relayed requests need absolute target URLs")
	}

	var tokens *client.TokenCache
	if cfg.TokenCache.Enabled {
		var store client.TokenStore = client.NewMemoryTokenStore()
		if rcli != nil {
			store = client.NewRedisTokenStore(rcli)
		}
		tokens = client.NewTokenCache(store, client.TokenCacheConfig{
			KeyPrefix:  cfg.TokenCache.KeyPrefix,
			DefaultTTL: cfg.TokenCache.DefaultTTL,
			ExpirySkew: cfg.TokenCache.ExpirySkew,
		})
	}

	gen := device.NewGenerator(rng, time.Now)
	devices := service.NewDeviceService(device.NewStore(cfg.DeviceStore.Path, gen), gen, exchanges, api, cfg.Upstream.JWTUserID)
	mfa := service.NewMFAFollowUp(api, exchanges, tokens, rng, time.Now)
	relay := service.NewRelayService(api, exchanges, mfa, service.RelayConfig{MockMode: cfg.MockMode}, rng)
	runner := batch.NewRunner(relay, devices, payload.NewBuilder(rng, time.Now, cfg.Upstream.Secret), rng, time.Now)

	// Health
	health := handler.NewHealthHandler(cfg, version)
	if rcli != nil {
		health.AddChecker(handler.NewPingChecker("redis", rcli.HealthCheck, nil), false)
	}
	if cfg.Telemetry.ES.Enabled {
		health.AddChecker(handler.NewPingChecker("elasticsearch", esShipper.Ping, nil), false)
	}
	if db != nil {
		health.AddChecker(handler.NewPingChecker("postgres", db.PingContext, nil), true)
	}

	deps := handler.RouterDeps{
		Relay:          handler.NewRelayHandler(relay, exchanges),
		Devices:        handler.NewDeviceHandler(devices),
		Batch:          handler.NewBatchHandler(runner),
		Health:         health,
		AllowedOrigins: cfg.AllowedOrigins,
		Security:       middleware.DefaultSecurityConfig(),
		Audit:          middleware.NewRequestAuditMW(sinks, nil, nil),
		RequestTimeout: cfg.RequestTimeout,
		AccessLog:      true,
		Debug:          cfg.Env == "development",
	}
	if archive != nil {
		deps.Archive = archive
	}
	if cfg.RateLimit.Enabled {
		lc := middleware.LimiterConfig{
			RatePerInterval: cfg.RateLimit.RatePerInterval,
			Interval:        cfg.RateLimit.Interval,
			Burst:           cfg.RateLimit.Burst,
			IdleTTL:         cfg.RateLimit.IdleTTL,
		}
		if cfg.RateLimit.UseRedis && rcli != nil {
			lc.Redis = rcli
		}
		deps.RateLimiter = middleware.NewRateLimiter(lc)
	}

	// Start background workers only once everything is wired.
	kafkaShipper.Start()
	if k2es != nil {
		k2es.Start(ctx)
	} else {
		esShipper.Start()
	}
	if archive != nil {
		archive.Start()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Infof("RBA harness %s listening on %s (env=%s, mock=%t)", version, addr, cfg.Env, cfg.MockMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
	if archive != nil {
		archive.Stop(shutdownCtx)
	}
	if k2es != nil {
		k2es.Stop(shutdownCtx)
	} else {
		esShipper.Stop(shutdownCtx)
	}
	kafkaShipper.Stop(shutdownCtx)
	logger.Infof("Shutdown complete")
}
