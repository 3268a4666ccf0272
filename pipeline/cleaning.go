package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/montanaflynn/stats"
	"go.uber.org/multierr"

	"heartrisk/ml"
)

var (
	ErrEmptyDataset     = errors.New("dataset is empty")
	ErrInsufficientData = errors.New("insufficient data")
)

// QualityIssue 质量问题，一行被拒绝时记录
type QualityIssue struct {
	Line     int    `json:"line"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Severity string `json:"severity"` // low, high
	Message  string `json:"message"`
}

func (q QualityIssue) Error() string {
	return fmt.Sprintf("line %d column %s: %s", q.Line, q.Column, q.Message)
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Missing        map[string]int `json:"missing"`
	Positives      int            `json:"positives"`
	Negatives      int            `json:"negatives"`
}

// Dataset 清洗后的特征矩阵与二值标签，缺失值以 NaN 表示
type Dataset struct {
	Features [][]float64
	Labels   []int
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{
		Features: make([][]float64, len(idx)),
		Labels:   make([]int, len(idx)),
	}
	for i, j := range idx {
		row := make([]float64, len(d.Features[j]))
		copy(row, d.Features[j])
		out.Features[i] = row
		out.Labels[i] = d.Labels[j]
	}
	return out
}

// DataCleaner 数据清洗器
//
// 占位符 "?" 视为缺失。Imputable 中的列允许缺失，无法解析时同样记为缺失；
// 其他列必须是有限实数，否则整行被拒绝。
type DataCleaner struct {
	Sentinel  string
	Imputable []string

	stats CleaningStats
}

// NewDataCleaner 创建数据清洗器，ca 和 thal 为可填补列
func NewDataCleaner() *DataCleaner {
	return &DataCleaner{
		Sentinel:  MissingSentinel,
		Imputable: []string{"ca", "thal"},
		stats:     CleaningStats{Missing: make(map[string]int)},
	}
}

// Clean 清洗数据并二值化标签：num > 0 为 1
func (dc *DataCleaner) Clean(rows []RawRow) (*Dataset, []QualityIssue) {
	columns := Columns()
	imputable := make(map[string]bool, len(dc.Imputable))
	for _, name := range dc.Imputable {
		imputable[name] = true
	}

	ds := &Dataset{}
	var issues []QualityIssue
	for _, row := range rows {
		dc.stats.TotalProcessed++

		features := make([]float64, len(columns)-1)
		var rowIssue *QualityIssue
		missing := make([]string, 0, 2)
		for i, name := range columns[:len(columns)-1] {
			raw := row.Values[i]
			v, ok := dc.parse(raw)
			if ok {
				features[i] = v
				continue
			}
			if imputable[name] {
				features[i] = math.NaN()
				missing = append(missing, name)
				continue
			}
			rowIssue = &QualityIssue{
				Line:     row.Line,
				Column:   name,
				Value:    raw,
				Severity: "high",
				Message:  "value is not a finite number",
			}
			break
		}

		var label int
		if rowIssue == nil {
			raw := row.Values[len(columns)-1]
			num, ok := dc.parse(raw)
			switch {
			case !ok || num < 0:
				rowIssue = &QualityIssue{
					Line:     row.Line,
					Column:   LabelColumn,
					Value:    raw,
					Severity: "high",
					Message:  "label is not a non-negative number",
				}
			case num > 0:
				label = ml.PositiveClass
			default:
				label = ml.NegativeClass
			}
		}

		if rowIssue != nil {
			dc.stats.Rejected++
			issues = append(issues, *rowIssue)
			continue
		}

		for _, name := range missing {
			dc.stats.Missing[name]++
		}
		if label == ml.PositiveClass {
			dc.stats.Positives++
		} else {
			dc.stats.Negatives++
		}
		dc.stats.Passed++
		ds.Features = append(ds.Features, features)
		ds.Labels = append(ds.Labels, label)
	}
	return ds, issues
}

func (dc *DataCleaner) parse(raw string) (float64, bool) {
	if raw == "" || raw == dc.Sentinel {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	out := dc.stats
	out.Missing = make(map[string]int, len(dc.stats.Missing))
	for k, v := range dc.stats.Missing {
		out.Missing[k] = v
	}
	return out
}

// IssuesError 将质量问题合并为一个错误，没有问题时返回 nil
func IssuesError(issues []QualityIssue) error {
	var err error
	for _, issue := range issues {
		err = multierr.Append(err, issue)
	}
	return err
}

// MedianImputer 中位数填补器，只在训练集上拟合
type MedianImputer struct {
	Columns []string
	Medians []float64

	index []int
}

// FitMedianImputer 计算各列非缺失值的中位数
func FitMedianImputer(ds *Dataset, columns []string) (*MedianImputer, error) {
	schema := ml.HeartSchema()
	imp := &MedianImputer{
		Columns: append([]string(nil), columns...),
		Medians: make([]float64, len(columns)),
		index:   make([]int, len(columns)),
	}
	for i, name := range columns {
		j := schema.Index(name)
		if j < 0 {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		imp.index[i] = j

		observed := make(stats.Float64Data, 0, ds.Len())
		for _, row := range ds.Features {
			if !math.IsNaN(row[j]) {
				observed = append(observed, row[j])
			}
		}
		if len(observed) == 0 {
			return nil, fmt.Errorf("%w: column %s has no observed values", ErrInsufficientData, name)
		}
		median, err := stats.Median(observed)
		if err != nil {
			return nil, fmt.Errorf("median of %s: %w", name, err)
		}
		imp.Medians[i] = median
	}
	return imp, nil
}

// Apply 用拟合的中位数填补缺失值，返回填补的数量
func (imp *MedianImputer) Apply(ds *Dataset) int {
	filled := 0
	for _, row := range ds.Features {
		for i, j := range imp.index {
			if math.IsNaN(row[j]) {
				row[j] = imp.Medians[i]
				filled++
			}
		}
	}
	return filled
}

// MedianMap 返回 列名 -> 中位数
func (imp *MedianImputer) MedianMap() map[string]float64 {
	out := make(map[string]float64, len(imp.Columns))
	for i, name := range imp.Columns {
		out[name] = imp.Medians[i]
	}
	return out
}
