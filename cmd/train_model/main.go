package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"heartrisk/config"
	"heartrisk/db"
	"heartrisk/logger"
	"heartrisk/ml"
	"heartrisk/pipeline"
)

const watchDebounce = 2 * time.Second

type trainer struct {
	cfg       *config.Config
	build     pipeline.BuildConfig
	modelPath string
	noDB      bool
	logger    *zap.Logger
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml, defaults to ./config.yaml or ../config.yaml")
	dataPath := flag.String("data", "", "Cleveland dataset path, overrides training.data_path")
	modelPath := flag.String("model_path", "", "model output path, overrides model.path")
	encoding := flag.String("encoding", "", "dataset encoding: utf-8, latin1, windows-1252 or gbk")
	seed := flag.Int64("seed", -1, "split and calibration seed, overrides training.seed")
	testRatio := flag.Float64("test_ratio", 0, "held-out fraction, overrides training.test_ratio")
	strict := flag.Bool("strict", false, "fail when any row is rejected")
	noDB := flag.Bool("no_db", false, "do not record the run in the training log")
	watch := flag.Bool("watch", false, "retrain whenever the dataset file changes")
	flag.Parse()

	// Same lookup and path resolution as the server, so both agree on model.path
	cfg, resolved, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %q: %v", resolved, err)
	}
	if *dataPath != "" {
		cfg.Training.DataPath = *dataPath
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *encoding != "" {
		cfg.Training.Encoding = *encoding
	}
	if *seed >= 0 {
		cfg.Training.Seed = *seed
	}
	if *testRatio > 0 {
		cfg.Training.TestRatio = *testRatio
	}
	if *strict {
		cfg.Training.StrictRows = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("config loaded", zap.String("path", resolved))

	t := &trainer{
		cfg:       cfg,
		build:     buildConfig(cfg),
		modelPath: cfg.Model.Path,
		noDB:      *noDB,
		logger:    zlog,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := t.run(ctx); err != nil {
		if !*watch {
			zlog.Fatal("training failed", zap.Error(err))
		}
		zlog.Error("training failed, waiting for dataset changes", zap.Error(err))
	}
	if !*watch {
		return
	}
	if err := t.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zlog.Fatal("watch failed", zap.Error(err))
	}
}

func buildConfig(cfg *config.Config) pipeline.BuildConfig {
	return pipeline.BuildConfig{
		DataPath:    cfg.Training.DataPath,
		Ingestion:   pipeline.IngestionConfig{Encoding: cfg.Training.Encoding},
		TestRatio:   cfg.Training.TestRatio,
		Seed:        cfg.Training.Seed,
		NComponents: cfg.Training.Components,
		C:           cfg.Training.C,
		Folds:       cfg.Training.Folds,
		StrictRows:  cfg.Training.StrictRows,
	}
}

// run builds, evaluates and saves one pipeline, then records the run.
func (t *trainer) run(ctx context.Context) error {
	result, err := pipeline.NewBuilder(t.build, t.logger).Build(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("train=%d test=%d rejected=%d\n", result.TrainSize, result.TestSize, len(result.Issues))
	fmt.Println(result.Report.String())

	if err := ml.SavePipeline(t.modelPath, result.Pipeline); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	t.logger.Info("model saved",
		zap.String("path", t.modelPath),
		zap.Float64("accuracy", result.Report.Accuracy),
		zap.Duration("duration", result.Duration))

	if t.noDB {
		return nil
	}
	store, err := db.Open(db.Config{Path: t.cfg.Database.Path, EnableWAL: t.cfg.Database.EnableWAL})
	if err != nil {
		t.logger.Warn("training log unavailable", zap.String("path", t.cfg.Database.Path), zap.Error(err))
		return nil
	}
	defer store.Close()

	entry := db.TrainingLogFromBuild(t.cfg.Training.ModelName, t.modelPath, result)
	runID, err := store.SaveTrainingRun(ctx, entry, result.Issues)
	if err != nil {
		t.logger.Warn("failed to record training run", zap.Error(err))
		return nil
	}
	t.logger.Info("training run recorded", zap.Int64("run_id", runID))
	return nil
}

// watch retrains after the dataset stops changing for watchDebounce. The
// parent directory is watched so editors that replace the file by rename
// are still seen.
func (t *trainer) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target, err := filepath.Abs(t.build.DataPath)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	t.logger.Info("watching dataset", zap.String("path", target))

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			t.logger.Debug("dataset changed", zap.String("op", event.Op.String()))
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			if _, err := os.Stat(target); err != nil {
				t.logger.Warn("dataset missing, skipping retrain", zap.Error(err))
				continue
			}
			if err := t.run(ctx); err != nil {
				t.logger.Error("retrain failed", zap.Error(err))
			}
		}
	}
}
