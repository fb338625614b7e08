package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"travelai/internal/amqp"
	"travelai/internal/backend"
	"travelai/internal/cache"
	"travelai/internal/cli"
	"travelai/internal/core"
	apphttp "travelai/internal/http"
	"travelai/internal/log"
	"travelai/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)
	logger.Info("Starting travelai server", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	ws, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize workspace", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Error("Workspace cleanup failed", log.FieldError, err.Error())
		}
	}()

	summaries := cache.NewLRUCache[core.SessionSummary](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(summaries)

	opts := []services.Option{
		services.WithSummaryCache(summaries),
		services.WithLogger(logger),
		services.WithLocation(cfg.Location()),
	}

	// Events are optional: without a broker the server still serves the API.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.SessionEventsKey, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err.Error())
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - settlement events will not be published")
	}

	svc := services.NewSettlementService(ws.Workspace, opts...)

	serverOpts := []apphttp.ServerOption{apphttp.WithDefaultLocale(cfg.DefaultLocale)}
	if ws.Ready != nil {
		serverOpts = append(serverOpts, apphttp.WithReadinessCheck(ws.Ready))
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, logger, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return cacheManager.Run(gctx, time.Minute)
	})

	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.Consume(gctx, svc.ApplyEvent)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
