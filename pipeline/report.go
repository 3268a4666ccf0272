package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// ClassMetrics 单个类别（或平均）的指标
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report 分类评估报告
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Total       int            `json:"total"`
}

// ClassificationReport 计算每个出现过的类别的 precision/recall/F1，
// 分母为零时指标记为 0
func ClassificationReport(yTrue, yPred []int) (Report, error) {
	if len(yTrue) != len(yPred) {
		return Report{}, fmt.Errorf("labels and predictions size mismatch: %d vs %d", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return Report{}, ErrEmptyDataset
	}

	seen := make(map[int]bool)
	for i := range yTrue {
		seen[yTrue[i]] = true
		seen[yPred[i]] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	report := Report{Total: len(yTrue)}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(yTrue))

	for _, c := range classes {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yTrue[i] == c && yPred[i] == c:
				tp++
			case yTrue[i] != c && yPred[i] == c:
				fp++
			case yTrue[i] == c && yPred[i] != c:
				fn++
			}
		}
		m := ClassMetrics{
			Label:     fmt.Sprint(c),
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			Support:   tp + fn,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)
	}

	report.MacroAvg = ClassMetrics{Label: "macro avg", Support: report.Total}
	report.WeightedAvg = ClassMetrics{Label: "weighted avg", Support: report.Total}
	k := float64(len(report.Classes))
	for _, m := range report.Classes {
		w := float64(m.Support) / float64(report.Total)
		report.MacroAvg.Precision += m.Precision / k
		report.MacroAvg.Recall += m.Recall / k
		report.MacroAvg.F1 += m.F1 / k
		report.WeightedAvg.Precision += m.Precision * w
		report.WeightedAvg.Recall += m.Recall * w
		report.WeightedAvg.F1 += m.F1 * w
	}
	return report, nil
}

// Class 返回指定类别的指标
func (r Report) Class(label int) (ClassMetrics, bool) {
	want := fmt.Sprint(label)
	for _, m := range r.Classes {
		if m.Label == want {
			return m, true
		}
	}
	return ClassMetrics{}, false
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
	for _, m := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	return b.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
