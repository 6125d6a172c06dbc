package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"orderbridge/internal/config"
	"orderbridge/internal/core/automation"
	"orderbridge/internal/core/browser"
	"orderbridge/internal/core/formclient"
	"orderbridge/internal/core/job"
	"orderbridge/internal/core/order"
	"orderbridge/internal/core/session"
	"orderbridge/internal/health"
	"orderbridge/internal/logger"
	"orderbridge/internal/platform/events"
	rds "orderbridge/internal/platform/redis"
	"orderbridge/internal/platform/storage"
	tasks "orderbridge/internal/platform/tasks"
	"orderbridge/internal/server"
	"orderbridge/internal/telemetry"
	"orderbridge/internal/worker"
)

func main() {
	cfg := config.Load()

	// Every component logs through the same telemetry ring.
	logs := telemetry.New(cfg.LogCapacity)
	logr := logger.NewWithSink("main", logs)
	logr.LogInfof("starting at %s (env=%s, backend=%s)", cfg.HTTPAddr, cfg.AppEnv, cfg.Backend)

	site, err := config.LoadSite(cfg.SiteFile)
	if err != nil {
		logr.LogFatal("load site profile", err)
	}

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, logr)
	if err != nil {
		logr.LogFatal("connect redis", err)
	}
	defer redisSvc.Close()

	artifacts, err := storage.New(storage.Options{
		AppEnv:             cfg.AppEnv,
		DataDir:            cfg.DataDir,
		SupabaseURL:        cfg.SupabaseURL,
		SupabaseServiceKey: cfg.SupabaseServiceKey,
		Bucket:             cfg.SupabaseBucket,
	}, logr)
	if err != nil {
		logr.LogFatal("initialize artifact storage", err)
	}

	bus, err := events.New(events.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, logr)
	if err != nil {
		logr.LogFatal("initialize order events", err)
	}
	defer bus.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	defer taskClient.Close()
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{tasks.QueueOrders: 1},
	})

	backends := map[string]order.Factory{
		automation.BackendHTTP: func(c order.Credentials) (order.Transport, error) {
			return formclient.New(formclient.Options{
				Site:      site,
				Timeout:   cfg.StepTimeout,
				Artifacts: artifacts,
			}, c, logr)
		},
		automation.BackendBrowser: func(c order.Credentials) (order.Transport, error) {
			return browser.New(browser.Options{
				Site:        site,
				Headless:    cfg.Headless,
				TypingDelay: cfg.TypingDelay,
				Challenge: session.ChallengeWait{
					Timeout:  cfg.ChallengeTimeout,
					Interval: cfg.ChallengeInterval,
					Strict:   cfg.StrictChallenge,
				},
				Artifacts: artifacts,
			}, c, logr), nil
		},
	}

	automationSvc := automation.NewService(automation.Options{
		DefaultBackend: cfg.Backend,
		Pipeline: order.Options{
			StepTimeout:     cfg.StepTimeout,
			FinalizeTimeout: cfg.FinalizeTimeout,
			ProductDelay:    cfg.ProductDelay,
		},
	}, automation.Deps{
		Backends: backends,
		Jobs:     job.NewJobService(redisSvc),
		Tasks:    taskClient,
		Events:   bus,
	}, logr)

	// Worker mux
	mux := worker.NewMux(logr)
	mux.HandleFunc(tasks.TaskTypeOrder, automationSvc.HandleTask)

	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			logr.LogError("worker stopped", err)
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Order Bridge",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	// Failure artifacts saved locally are served from DATA_DIR under /files
	app.Static("/files", cfg.DataDir)

	healthHandler := health.NewHealthHandler(map[string]health.Check{
		"redis": redisSvc.HealthCheck,
	}, logr)
	server.RegisterRoutes(app, server.Dependencies{
		Automation: automationSvc,
		Logs:       logs,
		Health:     healthHandler,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if ok, err := automationSvc.TestConnection(ctx, ""); err != nil || !ok {
			logr.Warn().Err(err).Msg("portal not reachable at startup")
		}
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		logr.LogFatal("server listen", err)
	}
}
