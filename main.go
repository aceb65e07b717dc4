package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tcsintel/intelgraph/internal/activities"
	"github.com/tcsintel/intelgraph/internal/cache"
	"github.com/tcsintel/intelgraph/internal/circuitbreaker"
	"github.com/tcsintel/intelgraph/internal/config"
	"github.com/tcsintel/intelgraph/internal/constants"
	"github.com/tcsintel/intelgraph/internal/db"
	"github.com/tcsintel/intelgraph/internal/gateway"
	"github.com/tcsintel/intelgraph/internal/health"
	"github.com/tcsintel/intelgraph/internal/httpapi"
	"github.com/tcsintel/intelgraph/internal/session"
	"github.com/tcsintel/intelgraph/internal/streaming"
	temporalpkg "github.com/tcsintel/intelgraph/internal/temporal"
	"github.com/tcsintel/intelgraph/internal/tracing"
	"github.com/tcsintel/intelgraph/internal/workflows"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}
	defer tracing.Shutdown(context.Background())

	// Redis backs both the session store and the research cache, each behind
	// its own circuit breaker so cache trouble cannot take sessions down.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	sessionRedis := circuitbreaker.NewRedisWrapper(redisClient, "session", logger)
	cacheRedis := circuitbreaker.NewRedisWrapper(redisClient, "cache", logger)

	sessions := session.NewStore(sessionRedis, cfg.Session.TTL, cfg.Session.MirrorSize, logger)
	researchCache := cache.NewStore(cacheRedis, cfg.Cache.TTL, cfg.Research.DefaultMaxAgeDays, logger)
	streams := streaming.NewManager(cfg.Streaming.RingCapacity)

	limiter := gateway.NewLimiter(cfg.OpenAI.RateLimitFile, "openai", logger)
	agentGateway, err := gateway.NewOpenAIGateway(cfg.OpenAI, limiter, logger)
	if err != nil {
		logger.Fatal("Failed to initialize agent gateway", zap.Error(err))
	}

	cfgWatcher, werr := config.NewWatcher(config.ResolvePath(""), logger)
	if werr != nil {
		logger.Warn("Config watcher init failed", zap.Error(werr))
	}

	// The archive is optional: without it terminal sessions simply age out
	// of Redis with the session TTL.
	var archiver activities.Archiver
	var archiveDB *db.Client
	var archiveWriter *db.Writer
	if cfg.Archive.Enabled {
		archiveDB, err = db.Open(cfg.Archive, logger)
		if err != nil {
			logger.Fatal("Failed to open archive database", zap.Error(err))
		}
		defer archiveDB.Close()
		archiveWriter = db.NewWriter(archiveDB, cfg.Archive.QueueSize, logger)
		archiveWriter.Start()
		defer archiveWriter.Stop()
		archiver = archiveWriter
	}

	temporalClient, err := dialTemporal(cfg.Temporal, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	acts := activities.NewActivities(sessions, researchCache, agentGateway, streams, archiver, logger)

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.WorkerConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.WorkerConcurrency,
	})
	registerWorker(w, acts)
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start Temporal worker", zap.Error(err))
	}
	defer w.Stop()
	logger.Info("Temporal worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))

	hm := health.NewManager(cfg.Health.CheckInterval, logger)
	registerCheckers(hm, sessionRedis, temporalClient, archiveDB, cfg.OpenAI.Model, limiter, logger)
	hm.Start()
	defer hm.Stop()

	mux := http.NewServeMux()
	api := httpapi.NewServer(sessions, researchCache, streams, temporalClient, cfg.Research, cfg.Temporal, logger)
	api.RegisterRoutes(mux)
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Config file edits refresh the research roster and gateway rate limits
	// without a restart; structural settings still require one.
	if cfgWatcher != nil {
		cfgWatcher.OnReload(func(updated *config.Config) {
			api.UpdateResearch(updated.Research)
			if rerr := limiter.Reload(); rerr != nil {
				logger.Warn("Rate limit reload failed", zap.Error(rerr))
			}
		})
		if serr := cfgWatcher.Start(); serr != nil {
			logger.Warn("Config watcher start failed", zap.Error(serr))
		} else {
			defer cfgWatcher.Stop()
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           mux,
		ReadHeaderTimeout: cfg.Service.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Service.MaxHeaderBytes,
	}
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Service.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}
}

// registerWorker binds the workflow and activities under their stable names.
// The names are part of the Temporal history contract, so renaming a Go
// method never breaks replay.
func registerWorker(w worker.Worker, acts *activities.Activities) {
	w.RegisterWorkflowWithOptions(workflows.ResearchWorkflow, workflow.RegisterOptions{
		Name: constants.ResearchWorkflowName,
	})

	register := func(name string, fn interface{}) {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
	register(constants.MarkSessionRunningActivity, acts.MarkSessionRunning)
	register(constants.UpdateAgentProgressActivity, acts.UpdateAgentProgress)
	register(constants.AppendSessionMessageActivity, acts.AppendSessionMessage)
	register(constants.FetchCompetitorResearchActivity, acts.FetchCompetitorResearch)
	register(constants.SynthesizeReportActivity, acts.SynthesizeReport)
	register(constants.CompleteSessionActivity, acts.CompleteSession)
	register(constants.FailSessionActivity, acts.FailSession)
	register(constants.ArchiveSessionActivity, acts.ArchiveSession)
}

func registerCheckers(
	hm *health.Manager,
	redisWrapper *circuitbreaker.RedisWrapper,
	temporalClient client.Client,
	archiveDB *db.Client,
	model string,
	limiter *gateway.Limiter,
	logger *zap.Logger,
) {
	checkers := []health.Checker{
		health.NewRedisChecker(redisWrapper, logger),
		health.NewTemporalChecker(temporalClient, logger),
		health.NewGatewayChecker(model, limiter.Limits),
	}
	if archiveDB != nil {
		checkers = append(checkers, health.NewArchiveChecker(archiveDB.DB(), logger))
	}
	for _, c := range checkers {
		if err := hm.Register(c); err != nil {
			logger.Warn("Failed to register health checker", zap.String("checker", c.Name()), zap.Error(err))
		}
	}
}

// dialTemporal connects to the Temporal frontend, retrying until the connect
// timeout elapses. Temporal usually comes up after this service in compose
// environments, so the first attempts are expected to fail.
func dialTemporal(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	deadline := time.Now().Add(cfg.ConnectTimeout)
	var lastErr error
	for attempt := 1; ; attempt++ {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.HostPort,
			Namespace: cfg.Namespace,
			Logger:    temporalpkg.NewZapAdapter(logger),
		})
		if err == nil {
			return c, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			break
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.String("host_port", cfg.HostPort),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		time.Sleep(delay)
	}
	return nil, lastErr
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}
