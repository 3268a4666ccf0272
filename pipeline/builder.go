package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"heartrisk/ml"
)

// BuildConfig 训练配置
type BuildConfig struct {
	DataPath    string
	Ingestion   IngestionConfig
	TestRatio   float64
	Seed        int64
	NComponents int
	C           float64
	Folds       int
	// StrictRows 为 true 时任何被拒绝的行都会使构建失败
	StrictRows bool
}

func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		TestRatio:   0.2,
		Seed:        42,
		NComponents: ml.DefaultNComponents,
		C:           1.0,
		Folds:       5,
	}
}

func (c BuildConfig) fitOptions() ml.FitOptions {
	opts := ml.DefaultFitOptions()
	if c.NComponents > 0 {
		opts.NComponents = c.NComponents
	}
	if c.C > 0 {
		opts.SVC.C = c.C
	}
	if c.Folds > 0 {
		opts.SVC.Folds = c.Folds
	}
	opts.SVC.Seed = c.Seed
	return opts
}

// BuildResult 一次训练的产出
type BuildResult struct {
	Pipeline  *ml.Pipeline
	Report    Report
	Stats     CleaningStats
	Issues    []QualityIssue
	Medians   map[string]float64
	TrainSize int
	TestSize  int
	Duration  time.Duration
}

// Builder 离线训练器：清洗、切分、填补、拟合、评估
type Builder struct {
	config BuildConfig
	logger *zap.Logger
}

func NewBuilder(config BuildConfig, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{config: config, logger: logger}
}

// Build 从 DataPath 读取数据集并训练
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	if b.config.DataPath == "" {
		return nil, errors.New("data path is required")
	}
	rows, err := LoadDataset(b.config.DataPath, b.config.Ingestion)
	if err != nil {
		return nil, err
	}
	b.logger.Info("dataset loaded", zap.String("path", b.config.DataPath), zap.Int("rows", len(rows)))
	return b.BuildFrom(ctx, rows)
}

// BuildFrom 在已读取的原始行上训练。任何数值退化都返回错误，不产出模型。
func (b *Builder) BuildFrom(ctx context.Context, rows []RawRow) (*BuildResult, error) {
	start := time.Now()

	cleaner := NewDataCleaner()
	ds, issues := cleaner.Clean(rows)
	stats := cleaner.GetStats()
	for _, issue := range issues {
		b.logger.Warn("row rejected",
			zap.Int("line", issue.Line),
			zap.String("column", issue.Column),
			zap.String("value", issue.Value),
			zap.String("reason", issue.Message))
	}
	if b.config.StrictRows {
		if err := IssuesError(issues); err != nil {
			return nil, fmt.Errorf("dataset has rejected rows: %w", err)
		}
	}
	b.logger.Info("dataset cleaned",
		zap.Int("passed", stats.Passed),
		zap.Int("rejected", stats.Rejected),
		zap.Any("missing", stats.Missing),
		zap.Int("positives", stats.Positives),
		zap.Int("negatives", stats.Negatives))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	train, test, err := SplitDataset(ds, b.config.TestRatio, b.config.Seed)
	if err != nil {
		return nil, err
	}
	opts := b.config.fitOptions()
	if opts.NComponents != ml.DefaultNComponents {
		b.logger.Warn("projection width differs from the standard pipeline",
			zap.Int("components", opts.NComponents),
			zap.Int("standard", ml.DefaultNComponents))
	}
	if train.Len() <= opts.NComponents {
		return nil, fmt.Errorf("%w: %d training rows for %d components", ErrInsufficientData, train.Len(), opts.NComponents)
	}

	imputer, err := FitMedianImputer(train, cleaner.Imputable)
	if err != nil {
		return nil, err
	}
	filledTrain := imputer.Apply(train)
	filledTest := imputer.Apply(test)
	b.logger.Info("missing values imputed",
		zap.Any("medians", imputer.MedianMap()),
		zap.Int("train_filled", filledTrain),
		zap.Int("test_filled", filledTest))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.logger.Info("fitting pipeline",
		zap.Int("train_size", train.Len()),
		zap.Int("components", opts.NComponents),
		zap.Float64("c", opts.SVC.C),
		zap.Int("folds", opts.SVC.Folds))
	p, err := ml.FitPipeline(ml.HeartSchema(), train.Features, train.Labels, opts)
	if err != nil {
		return nil, err
	}

	predictions := make([]int, test.Len())
	for i, row := range test.Features {
		predictions[i] = p.Predict(row)
	}
	report, err := ClassificationReport(test.Labels, predictions)
	if err != nil {
		return nil, err
	}

	result := &BuildResult{
		Pipeline:  p,
		Report:    report,
		Stats:     stats,
		Issues:    issues,
		Medians:   imputer.MedianMap(),
		TrainSize: train.Len(),
		TestSize:  test.Len(),
		Duration:  time.Since(start),
	}
	b.logger.Info("pipeline fitted",
		zap.Float64("accuracy", report.Accuracy),
		zap.Int("support_vectors", len(p.Classifier.SupportVectors)),
		zap.Duration("duration", result.Duration))
	return result, nil
}
