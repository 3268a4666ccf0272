package monitoring

import (
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// DefaultLatencyBuckets 请求延迟直方图的默认桶（秒）
var DefaultLatencyBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metric 指标的一条时间序列
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`

	// 仅直方图使用
	Buckets []float64 `json:"buckets,omitempty"`
	Counts  []uint64  `json:"counts,omitempty"`
	Sum     float64   `json:"sum,omitempty"`
	Count   uint64    `json:"count,omitempty"`
}

func (m *Metric) clone() *Metric {
	c := *m
	if m.Labels != nil {
		c.Labels = make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			c.Labels[k] = v
		}
	}
	c.Buckets = append([]float64(nil), m.Buckets...)
	c.Counts = append([]uint64(nil), m.Counts...)
	return &c
}

// MetricsCollector 指标收集器，按 名称+标签 聚合
type MetricsCollector struct {
	series      map[string]map[string]*Metric
	help        map[string]string
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		series:    make(map[string]map[string]*Metric),
		help:      make(map[string]string),
		startTime: time.Now(),
	}
}

// SetHelp 设置指标说明
func (mc *MetricsCollector) SetHelp(name, help string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.help[name] = help
}

func (mc *MetricsCollector) lookup(name string, typ MetricType, labels map[string]string) *Metric {
	byLabels, ok := mc.series[name]
	if !ok {
		byLabels = make(map[string]*Metric)
		mc.series[name] = byLabels
	}
	key := labelString(labels)
	m, ok := byLabels[key]
	if !ok {
		m = &Metric{Name: name, Type: typ}
		if len(labels) > 0 {
			m.Labels = make(map[string]string, len(labels))
			for k, v := range labels {
				m.Labels[k] = v
			}
		}
		byLabels[key] = m
	}
	return m
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m := mc.lookup(name, MetricTypeCounter, labels)
	m.Value += value
	m.Timestamp = time.Now()
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m := mc.lookup(name, MetricTypeGauge, labels)
	m.Value = value
	m.Timestamp = time.Now()
}

// RecordHistogram 记录直方图观测值，桶在第一次观测时固定
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string, buckets []float64) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m := mc.lookup(name, MetricTypeHistogram, labels)
	if m.Buckets == nil {
		if len(buckets) == 0 {
			buckets = DefaultLatencyBuckets
		}
		m.Buckets = append([]float64(nil), buckets...)
		sort.Float64s(m.Buckets)
		m.Counts = make([]uint64, len(m.Buckets))
	}
	for i, upper := range m.Buckets {
		if value <= upper {
			m.Counts[i]++
		}
	}
	m.Sum += value
	m.Count++
	m.Value = value
	m.Timestamp = time.Now()
}

// GetMetric 获取指标的所有序列
func (mc *MetricsCollector) GetMetric(name string) ([]*Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	byLabels, ok := mc.series[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}
	return sortedSeries(byLabels), nil
}

// GetAllMetrics 获取所有指标的副本
func (mc *MetricsCollector) GetAllMetrics() map[string][]*Metric {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	result := make(map[string][]*Metric, len(mc.series))
	for name, byLabels := range mc.series {
		result[name] = sortedSeries(byLabels)
	}
	return result
}

func sortedSeries(byLabels map[string]*Metric) []*Metric {
	keys := make([]string, 0, len(byLabels))
	for k := range byLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Metric, len(keys))
	for i, k := range keys {
		out[i] = byLabels[k].clone()
	}
	return out
}

// collectSystemMetrics 采集运行时指标
func (mc *MetricsCollector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.SetGauge("process_uptime_seconds", mc.GetUptime().Seconds(), nil)
	mc.SetGauge("go_goroutines", float64(runtime.NumGoroutine()), nil)
	mc.SetGauge("go_memstats_heap_alloc_bytes", float64(m.HeapAlloc), nil)
	mc.SetGauge("go_memstats_heap_sys_bytes", float64(m.HeapSys), nil)
	mc.SetGauge("go_gc_cycles_total", float64(m.NumGC), nil)
}

// ExportPrometheus 导出 Prometheus 文本格式，先刷新运行时指标
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.collectSystemMetrics()

	metrics := mc.GetAllMetrics()
	mc.metricsLock.RLock()
	help := make(map[string]string, len(mc.help))
	for k, v := range mc.help {
		help[k] = v
	}
	mc.metricsLock.RUnlock()

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		list := metrics[name]
		if len(list) == 0 {
			continue
		}
		h := help[name]
		if h == "" {
			h = fmt.Sprintf("Metric %s", name)
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", name, h)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, list[0].Type)

		for _, m := range list {
			if m.Type != MetricTypeHistogram {
				fmt.Fprintf(&b, "%s%s %s\n", name, formatLabels(m.Labels, "", ""), formatValue(m.Value))
				continue
			}
			for i, upper := range m.Buckets {
				fmt.Fprintf(&b, "%s_bucket%s %d\n", name, formatLabels(m.Labels, "le", formatValue(upper)), m.Counts[i])
			}
			fmt.Fprintf(&b, "%s_bucket%s %d\n", name, formatLabels(m.Labels, "le", "+Inf"), m.Count)
			fmt.Fprintf(&b, "%s_sum%s %s\n", name, formatLabels(m.Labels, "", ""), formatValue(m.Sum))
			fmt.Fprintf(&b, "%s_count%s %d\n", name, formatLabels(m.Labels, "", ""), m.Count)
		}
	}
	return b.String()
}

// ExportJSON 导出JSON格式
func (mc *MetricsCollector) ExportJSON() (string, error) {
	data, err := json.MarshalIndent(mc.GetAllMetrics(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return strings.Join(parts, ",")
}

func formatLabels(labels map[string]string, extraKey, extraValue string) string {
	merged := labels
	if extraKey != "" {
		merged = make(map[string]string, len(labels)+1)
		for k, v := range labels {
			merged[k] = v
		}
		merged[extraKey] = extraValue
	}
	s := labelString(merged)
	if s == "" {
		return ""
	}
	return "{" + s + "}"
}

func formatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return fmt.Sprintf("%g", v)
}
