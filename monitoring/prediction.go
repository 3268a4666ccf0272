package monitoring

import (
	"strconv"
	"time"

	"heartrisk/ml"
)

const (
	metricPredictions    = "heartrisk_predictions_total"
	metricRejections     = "heartrisk_prediction_rejections_total"
	metricLatency        = "heartrisk_prediction_latency_seconds"
	metricProbability    = "heartrisk_prediction_probability"
	metricModelInfo      = "heartrisk_model_info"
	metricSupportVectors = "heartrisk_model_support_vectors"
)

// PredictionMetrics 推理相关的业务指标
type PredictionMetrics struct {
	collector *MetricsCollector
}

// NewPredictionMetrics 在收集器上注册推理指标的说明
func NewPredictionMetrics(collector *MetricsCollector) *PredictionMetrics {
	collector.SetHelp(metricPredictions, "Predictions served, by transport and class")
	collector.SetHelp(metricRejections, "Records rejected before scoring, by transport and reason")
	collector.SetHelp(metricLatency, "Time spent validating and scoring one record")
	collector.SetHelp(metricProbability, "Reported probability of heart disease")
	collector.SetHelp(metricModelInfo, "Loaded model artifact")
	collector.SetHelp(metricSupportVectors, "Support vectors in the loaded classifier")
	return &PredictionMetrics{collector: collector}
}

// Collector 返回底层收集器
func (pm *PredictionMetrics) Collector() *MetricsCollector {
	return pm.collector
}

// RecordPrediction 记录一次成功的推理
func (pm *PredictionMetrics) RecordPrediction(transport string, result ml.Result, latency time.Duration) {
	pm.collector.IncrCounter(metricPredictions, 1, map[string]string{
		"transport": transport,
		"class":     strconv.Itoa(result.Prediction),
	})
	pm.collector.RecordHistogram(metricLatency, latency.Seconds(), map[string]string{"transport": transport}, DefaultLatencyBuckets)
	pm.collector.RecordHistogram(metricProbability, result.Probability, nil, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1})
}

// RecordRejection 记录一次被拒绝的输入
func (pm *PredictionMetrics) RecordRejection(transport, reason string) {
	pm.collector.IncrCounter(metricRejections, 1, map[string]string{
		"transport": transport,
		"reason":    reason,
	})
}

// SetModel 导出模型元数据
func (pm *PredictionMetrics) SetModel(info ml.ModelInfo) {
	pm.collector.SetGauge(metricModelInfo, 1, map[string]string{
		"version":    strconv.Itoa(info.Version),
		"components": strconv.Itoa(info.Components),
		"created_at": info.CreatedAt,
	})
	pm.collector.SetGauge(metricSupportVectors, float64(info.SupportVectors), nil)
}
