package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"renderhub/internal/artifact"
	"renderhub/internal/config"
	"renderhub/internal/httpapi"
	"renderhub/internal/httpapi/handlers"
	"renderhub/internal/logbuf"
	"renderhub/internal/logsink"
	"renderhub/internal/logsink/amqpsink"
	"renderhub/internal/logsink/cwsink"
	"renderhub/internal/logsink/pgsink"
	"renderhub/internal/logstream"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/pkg/shutdown"
	"renderhub/internal/render"
	"renderhub/internal/renderer"
	"renderhub/internal/storage"
	"renderhub/internal/webhook"
)

var version = "dev"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "renderhub: invalid configuration:", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "renderhub-api",
		AddSource:   config.Env("LOG_SOURCE", "false") == "true",
	})
	log.Info("starting renderhub API", "version", version)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.Shutdown)
	checks := map[string]handlers.Pinger{}

	logs := logbuf.New(log, cfg.Log.BufferSize)

	// Webhook subscribers, optionally persisted in Redis
	var store webhook.Store
	if cfg.Webhook.RedisAddr != "" {
		log.Info("connecting to Redis", "addr", cfg.Webhook.RedisAddr)
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Webhook.RedisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		rs := webhook.NewRedisStore(rdb, cfg.Webhook.RedisKey)
		if err := rs.Ping(ctx); err != nil {
			log.Warn("Redis unreachable, webhooks start empty", "error", err.Error())
		}
		store = rs
		checks["redis"] = rs
	}
	registry := webhook.NewRegistry(log, store)
	if err := registry.Restore(ctx); err != nil {
		log.Warn("failed to restore webhooks", "error", err.Error())
	}
	dispatcher := webhook.NewDispatcher(registry, webhook.DispatcherOptions{
		Timeout:     cfg.Webhook.Timeout,
		Concurrency: cfg.Webhook.Concurrency,
	}, log)
	logs.Subscribe(dispatcher)
	shutdownMgr.Register("webhook-dispatcher", dispatcher.Wait)

	// Optional log sinks
	if cfg.Sinks.DatabaseURL != "" {
		log.Info("connecting log archive to PostgreSQL")
		w, err := pgsink.Dial(ctx, cfg.Sinks.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect log archive", err)
		}
		sink := logsink.New(w, logsink.Options{}, log)
		logs.Subscribe(sink)
		checks["postgres"] = w
		shutdownMgr.Register("postgres-log-sink", sink.Close)
	}
	if cfg.Sinks.AMQPURL != "" {
		log.Info("connecting log publisher to AMQP", "exchange", cfg.Sinks.AMQPExchange)
		w, err := amqpsink.Dial(cfg.Sinks.AMQPURL, cfg.Sinks.AMQPExchange)
		if err != nil {
			log.LogFatal("failed to connect log publisher", err)
		}
		sink := logsink.New(w, logsink.Options{}, log)
		logs.Subscribe(sink)
		shutdownMgr.Register("amqp-log-sink", sink.Close)
	}
	if cfg.Sinks.CloudWatchGroup != "" {
		log.Info("mirroring logs to CloudWatch",
			"group", cfg.Sinks.CloudWatchGroup, "stream", cfg.Sinks.CloudWatchStream)
		w, err := cwsink.Dial(ctx, cfg.Storage.S3.Region, cfg.Sinks.CloudWatchGroup, cfg.Sinks.CloudWatchStream)
		if err != nil {
			log.LogFatal("failed to connect CloudWatch log sink", err)
		}
		sink := logsink.New(w, logsink.Options{}, log)
		logs.Subscribe(sink)
		shutdownMgr.Register("cloudwatch-log-sink", sink.Close)
	}

	hub := logstream.NewHub(0)
	logs.Subscribe(hub)
	shutdownMgr.RegisterSimple("log-stream", hub.Close)

	// Artifact storage
	sp, missing, err := storage.NewProvider(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if sp == nil {
		log.Warn("artifact storage not configured", "reason", missing, "upload_required", cfg.Storage.UploadRequired)
	} else {
		log.Info("storage provider initialized", "provider", sp.Provider())
		checks["storage"] = sp
	}
	uploader := artifact.NewUploader(sp, artifact.Options{
		Required:      cfg.Storage.UploadRequired,
		KeyPrefix:     cfg.Storage.KeyPrefix,
		MissingDetail: missing,
	}, log)

	// Render engine
	engine := renderer.NewHTTPEngine(cfg.Render.RendererBaseURL)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := engine.Ping(pingCtx); err != nil {
		log.Warn("render engine unavailable, jobs will fail until it is up",
			"base_url", cfg.Render.RendererBaseURL, "error", err.Error())
	}
	cancel()
	checks["renderer"] = engine

	queue := render.NewQueue(engine, uploader, logs, render.Options{
		RendersDir:      cfg.Render.RendersDir,
		PublicBaseURL:   cfg.HTTP.PublicBaseURL,
		Codec:           cfg.Render.Codec,
		RetainCancelled: cfg.Render.RetainCancelled,
	}, log)
	if err := queue.Start(ctx); err != nil {
		log.LogFatal("failed to start render queue", err)
	}
	shutdownMgr.Register("render-queue", queue.Stop)

	// HTTP
	deps := handlers.Deps{
		Queue:    queue,
		Logs:     logs,
		Webhooks: registry,
		Stream:   hub,
		Checks:   checks,
		Log:      log,
		Version:  version,
	}
	if cfg.Storage.Provider == config.ProviderLocalFS {
		deps.Artifacts = sp
	}
	router := httpapi.NewRouter(handlers.New(deps), httpapi.Options{
		CORSAllowedOrigins: cfg.HTTP.CORSOrigins,
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		RateLimitRPS:       cfg.HTTP.RateLimitRPS,
		RateLimitBurst:     cfg.HTTP.RateLimitBurst,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr, "public_base_url", cfg.HTTP.PublicBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
		os.Exit(1)
	}
}
