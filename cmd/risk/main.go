package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/riskassessment/internal/risk/application"
	"github.com/wyfcoding/riskassessment/internal/risk/infrastructure/client"
	"github.com/wyfcoding/riskassessment/internal/risk/infrastructure/messaging"
	"github.com/wyfcoding/riskassessment/internal/risk/infrastructure/persistence/gormrepo"
	redisstore "github.com/wyfcoding/riskassessment/internal/risk/infrastructure/persistence/redis"
	"github.com/wyfcoding/riskassessment/internal/risk/interfaces/consumer"
	grpcserver "github.com/wyfcoding/riskassessment/internal/risk/interfaces/grpc"
	httphandler "github.com/wyfcoding/riskassessment/internal/risk/interfaces/http"
	"github.com/wyfcoding/riskassessment/pkg/async"
	"github.com/wyfcoding/riskassessment/pkg/cache"
	"github.com/wyfcoding/riskassessment/pkg/config"
	"github.com/wyfcoding/riskassessment/pkg/db"
	"github.com/wyfcoding/riskassessment/pkg/logger"
	"github.com/wyfcoding/riskassessment/pkg/metrics"
	"github.com/wyfcoding/riskassessment/pkg/middleware"
	"github.com/wyfcoding/riskassessment/pkg/mq"
	"github.com/wyfcoding/riskassessment/pkg/ratelimit"
	"github.com/wyfcoding/riskassessment/pkg/resilience"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/risk/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to load config", "path", configPath, "error", err)
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		logger.Fatal(context.Background(), "Failed to init logger", "error", err)
	}
	ctx := context.Background()
	logger.Info(ctx, "Starting risk assessment service",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment)

	if err := run(ctx, cfg); err != nil {
		logger.Fatal(ctx, "Service exited with error", "error", err)
	}
	logger.Info(ctx, "Service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// 3. Database
	database, err := db.Init(ctx, db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: time.Duration(cfg.Database.SlowQueryThreshold) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := gormrepo.AutoMigrate(database.DB); err != nil {
			return err
		}
		logger.Info(ctx, "Database schema migrated")
	}

	// 4. Redis
	redisCache, err := cache.New(ctx, cache.Config{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		ConnTimeout:  time.Duration(cfg.Redis.ConnTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Redis.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Redis.WriteTimeout) * time.Second,
	})
	if err != nil {
		return err
	}
	defer redisCache.Close()

	// 5. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(registry); err != nil {
		return err
	}
	collector := metrics.NewDefaultMetricsCollector(m)

	// 6. Kafka
	kafkaCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		MaxAttempts:    cfg.Kafka.MaxAttempts,
		SessionTimeout: time.Duration(cfg.Kafka.SessionTimeout) * time.Second,
	}
	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()
	scoringConsumer := mq.NewConsumer(kafkaCfg, cfg.Kafka.ScoringTopic)
	defer scoringConsumer.Close()

	// 7. Infrastructure
	pool := async.NewPool(cfg.Assessment.DBPoolSize)
	runner := async.NewRunner(cfg.Assessment.BackgroundTimeout, func(task string, err error) {
		collector.RecordBackgroundTask(task, err == nil)
	})
	cacheStore := redisstore.NewCacheStore(redisCache)
	assessmentRepo := gormrepo.NewAssessmentRepository(database)
	apiCallRepo := gormrepo.NewAPICallRepository(database)
	publisher := messaging.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionTopic, collector)
	bureauClient := client.NewCreditBureauClient(cfg.CreditBureau.BaseURL, cfg.CreditBureau.Timeout)

	policy := resilience.NewPolicy(resilience.Config{
		Name:               "credit-bureau",
		MaxConcurrentCalls: cfg.Resilience.MaxConcurrentCalls,
		MaxWait:            cfg.Resilience.MaxWait,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			FailureRatio:        cfg.Resilience.FailureRatio,
			MinimumCalls:        cfg.Resilience.MinimumCalls,
			ConsecutiveFailures: cfg.Resilience.ConsecutiveFailures,
			OpenTimeout:         cfg.Resilience.OpenTimeout,
			HalfOpenMaxCalls:    cfg.Resilience.HalfOpenMaxCalls,
			Interval:            cfg.Resilience.CountInterval,
		},
		Retry: resilience.RetryConfig{
			MaxAttempts:     cfg.Resilience.MaxAttempts,
			InitialInterval: cfg.Resilience.InitialBackoff,
			MaxInterval:     cfg.Resilience.MaxBackoff,
			Multiplier:      cfg.Resilience.BackoffMultiplier,
		},
		OnStateChange: func(name string, from, to resilience.State) {
			collector.RecordCircuitStateChange(name, string(from), string(to))
		},
		OnAttemptFailure: func(uint, error) {
			collector.RecordRetryAttemptFailure("credit-bureau")
		},
	})

	// 8. Application
	audit := application.NewAuditLogger(apiCallRepo, pool, runner)
	gateway := application.NewCreditGateway(bureauClient, cacheStore, policy, audit, runner, collector, cfg.CreditBureau.CacheTTL)
	svc := application.NewRiskAssessmentService(gateway, assessmentRepo, cacheStore, publisher, pool, runner, collector, application.ServiceConfig{
		Timeout:                cfg.Assessment.Timeout,
		CacheTTL:               cfg.Assessment.CacheTTL,
		FallbackPersistTimeout: cfg.Assessment.BackgroundTimeout,
	})

	// 9. Interfaces
	router := newRouter(cfg, svc, collector, registry, database, redisCache)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	grpcSrv := grpcserver.NewServer()
	scoringHandler := consumer.NewScoringHandler(svc, mq.NewDeadLetterQueue(producer, cfg.Kafka.DLQTopic), collector)

	// 10. Start
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			return err
		}
		logger.Info(gctx, "gRPC server starting", "addr", cfg.GRPC.Addr())
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", cfg.HTTP.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return scoringConsumer.Run(gctx, scoringHandler.Handle)
	})

	// 11. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		grpcSrv.GracefulStop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
		return nil
	})

	err = g.Wait()

	// 消费循环与 HTTP 请求都已结束，不再产生新的后台任务
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if derr := runner.Shutdown(drainCtx); derr != nil {
		logger.Warn(ctx, "Background tasks did not finish before shutdown", "error", derr)
	}
	succeeded, failed := runner.Stats()
	logger.Info(ctx, "Background tasks drained", "succeeded", succeeded, "failed", failed)
	return err
}

func newRouter(cfg *config.Config, svc httphandler.RiskService, collector metrics.MetricsCollector, gatherer prometheus.Gatherer, database *db.DB, redisCache *cache.RedisCache) *gin.Engine {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinMetricsMiddleware(collector),
	)

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := database.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_READY", "component": "database"})
				return
			}
			if err := redisCache.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_READY", "component": "redis"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "READY"})
		})
	}
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler(gatherer)))
	}
	if cfg.Environment != "prod" {
		pp := r.Group("/debug/pprof")
		{
			pp.GET("/", gin.WrapF(pprof.Index))
			pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
			pp.GET("/profile", gin.WrapF(pprof.Profile))
			pp.GET("/symbol", gin.WrapF(pprof.Symbol))
			pp.GET("/trace", gin.WrapF(pprof.Trace))
		}
	}

	api := r.Group("")
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.Client(), "risk:ratelimit:")
		api.Use(middleware.RateLimitMiddleware(limiter, ratelimit.PerSecond(cfg.RateLimit.QPS, cfg.RateLimit.Burst)))
	}
	httphandler.NewRiskHandler(svc).RegisterRoutes(api)
	return r
}
