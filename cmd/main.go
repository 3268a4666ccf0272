package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"heartrisk/config"
	"heartrisk/db"
	qhttp "heartrisk/http"
	"heartrisk/logger"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

func main() {
	configFlag := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Look for config in root even if run from cmd/
	cfg, configPath, err := config.LoadFile(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load config %q: %v", configPath, err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("config loaded", zap.String("path", configPath))

	// 2. Load the frozen pipeline; the service does not start without it
	pipeline, err := ml.LoadPipeline(cfg.Model.Path)
	if err != nil {
		zlog.Fatal("failed to load model", zap.String("path", cfg.Model.Path), zap.Error(err))
	}
	engine, err := ml.NewEngine(pipeline)
	if err != nil {
		zlog.Fatal("invalid model", zap.String("path", cfg.Model.Path), zap.Error(err))
	}
	info := engine.Info()
	zlog.Info("model loaded",
		zap.String("path", cfg.Model.Path),
		zap.Int("components", info.Components),
		zap.Int("support_vectors", info.SupportVectors),
		zap.String("created_at", info.CreatedAt))

	var predictor ml.Predictor = engine
	if cfg.Cache.Enabled {
		cached, err := ml.NewCachedEngine(engine, cfg.Cache.Size)
		if err != nil {
			zlog.Fatal("failed to build prediction cache", zap.Error(err))
		}
		predictor = cached
	}

	metrics := monitoring.NewPredictionMetrics(monitoring.NewMetricsCollector())
	metrics.SetModel(info)

	// 3. Initialize database; predictions keep working without it
	store, err := db.Open(db.Config{Path: cfg.Database.Path, EnableWAL: cfg.Database.EnableWAL})
	if err != nil {
		zlog.Warn("database unavailable, training log and audit disabled", zap.String("path", cfg.Database.Path), zap.Error(err))
	} else {
		defer store.Close()
		zlog.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := monitoring.NewWebSocketHub(zlog.Named("monitor"))
	go hub.Run(ctx)

	// 4. Start HTTP server
	server, err := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		StaticDir:      cfg.HTTP.StaticDir,
	}, qhttp.Services{
		Predictor:        predictor,
		Model:            engine,
		Metrics:          metrics,
		Store:            store,
		AuditPredictions: cfg.Database.AuditPredictions,
		Hub:              hub,
	}, zlog.Named("http"))
	if err != nil {
		zlog.Fatal("failed to build server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
		zlog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			zlog.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	zlog.Info("exiting")
}
