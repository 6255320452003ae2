package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"phishguard/config"
	"phishguard/db"
	qhttp "phishguard/http"
	"phishguard/logging"
	"phishguard/ml"
	"phishguard/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2. Load the model; serving without it is not allowed
	ictx, err := ml.LoadInferenceContext(cfg.Model.Dir)
	if err != nil {
		var missing *ml.ArtifactMissingError
		if errors.As(err, &missing) {
			logger.Fatal("model not found, run train_model first", zap.String("path", missing.Path), zap.Error(missing.Err))
		}
		logger.Fatal("failed to load model", zap.Error(err))
	}
	logger.Info("model loaded", zap.String("dir", cfg.Model.Dir), zap.Strings("features", ictx.Schema()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Prediction log
	var recorder *db.PredictionRecorder
	if err := db.InitDB(cfg.Database.Path); err != nil {
		logger.Warn("database unavailable, predictions will not be logged", zap.String("path", cfg.Database.Path), zap.Error(err))
	} else {
		logger.Info("database initialized", zap.String("path", cfg.Database.Path))
		recorder = db.NewPredictionRecorder(cfg.Database.Recorder, logger.Named("recorder"))
	}

	// 4. Monitoring
	metrics := monitoring.NewMetricsCollector()
	metrics.StartSystemMetrics(ctx, 10*time.Second)
	hub := monitoring.NewPredictionHub(logger.Named("ws"), cfg.HTTP.AllowedOrigins)
	go hub.Run(ctx)

	deps := qhttp.Dependencies{
		Inference: ictx,
		Metrics:   metrics,
		Hub:       hub,
		CacheSize: cfg.Cache.Size,
		Logger:    logger.Named("api"),
	}
	if recorder != nil {
		deps.Recorder = recorder
	}
	api, err := qhttp.NewAPI(deps)
	if err != nil {
		logger.Fatal("failed to build api", zap.Error(err))
	}

	// 5. Reload the log level when the config file changes
	if err := config.Watch(ctx, *configPath, logger.Logger, func(c *config.Config) {
		if err := logger.SetLevel(c.Log.Level); err != nil {
			logger.Warn("ignoring log level from reloaded config", zap.Error(err))
			return
		}
		logger.Info("log level updated", zap.String("level", logger.Level().String()))
	}); err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}

	// 6. Start HTTP server
	server := qhttp.NewServer(serverConfig(cfg), api, logger.Named("http"))
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 7. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	if recorder != nil {
		recorder.Close()
	}
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", zap.Error(err))
	}

	logger.Info("exiting")
}

func serverConfig(cfg *config.Config) qhttp.ServerConfig {
	return qhttp.ServerConfig{
		Port:              cfg.HTTP.Port,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		TrustedProxies:    cfg.HTTP.TrustedProxies,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
}
