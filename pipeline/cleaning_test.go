package pipeline

import (
	"math"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func mustRows(t *testing.T, input string) []RawRow {
	t.Helper()
	rows, err := ReadDataset(strings.NewReader(input), IngestionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rows
}

func TestDataCleanerBinarizesLabels(t *testing.T) {
	cleaner := NewDataCleaner()
	ds, issues := cleaner.Clean(mustRows(t, sampleRows))
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	want := []int{0, 1, 1, 0}
	for i, label := range ds.Labels {
		if label != want[i] {
			t.Fatalf("row %d: expected label %d, got %d", i, want[i], label)
		}
	}
	stats := cleaner.GetStats()
	if stats.Passed != 4 || stats.Positives != 2 || stats.Negatives != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDataCleanerMissingValues(t *testing.T) {
	input := `63.0,1.0,1.0,145.0,233.0,1.0,2.0,150.0,0.0,2.3,3.0,?,6.0,0
67.0,1.0,4.0,160.0,286.0,0.0,2.0,108.0,1.0,1.5,2.0,3.0,?,2
67.0,1.0,4.0,120.0,229.0,0.0,2.0,129.0,1.0,2.6,2.0,x,7.0,1
`
	cleaner := NewDataCleaner()
	ds, issues := cleaner.Clean(mustRows(t, input))
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if !math.IsNaN(ds.Features[0][11]) || !math.IsNaN(ds.Features[1][12]) || !math.IsNaN(ds.Features[2][11]) {
		t.Fatalf("expected NaN placeholders, got %v", ds.Features)
	}
	stats := cleaner.GetStats()
	if stats.Missing["ca"] != 2 || stats.Missing["thal"] != 1 {
		t.Fatalf("unexpected missing counts: %v", stats.Missing)
	}
}

func TestDataCleanerRejectsRows(t *testing.T) {
	input := `63.0,1.0,1.0,145.0,?,1.0,2.0,150.0,0.0,2.3,3.0,0.0,6.0,0
67.0,1.0,4.0,160.0,286.0,0.0,2.0,108.0,1.0,1.5,2.0,3.0,3.0,?
67.0,1.0,4.0,120.0,229.0,0.0,2.0,129.0,1.0,2.6,2.0,2.0,7.0,-1
37.0,1.0,3.0,130.0,250.0,0.0,0.0,Inf,0.0,3.5,3.0,0.0,3.0,0
41.0,0.0,2.0,130.0,204.0,0.0,2.0,172.0,0.0,1.4,1.0,0.0,3.0,0
`
	cleaner := NewDataCleaner()
	ds, issues := cleaner.Clean(mustRows(t, input))
	if ds.Len() != 1 {
		t.Fatalf("expected 1 clean row, got %d", ds.Len())
	}

	wantColumns := []string{"chol", LabelColumn, LabelColumn, "thalach"}
	if len(issues) != len(wantColumns) {
		t.Fatalf("expected %d issues, got %v", len(wantColumns), issues)
	}
	for i, issue := range issues {
		if issue.Column != wantColumns[i] || issue.Line != i+1 {
			t.Fatalf("issue %d: unexpected %+v", i, issue)
		}
	}

	err := IssuesError(issues)
	if got := len(multierr.Errors(err)); got != len(issues) {
		t.Fatalf("expected %d combined errors, got %d", len(issues), got)
	}
	if IssuesError(nil) != nil {
		t.Fatal("expected nil error without issues")
	}
}

func TestMedianImputer(t *testing.T) {
	nan := math.NaN()
	ds := &Dataset{
		Features: [][]float64{
			{63, 1, 1, 145, 233, 1, 2, 150, 0, 2.3, 3, 0, 6},
			{67, 1, 4, 160, 286, 0, 2, 108, 1, 1.5, 2, 3, nan},
			{67, 1, 4, 120, 229, 0, 2, 129, 1, 2.6, 2, 2, 7},
			{37, 1, 3, 130, 250, 0, 0, 187, 0, 3.5, 3, nan, 3},
		},
		Labels: []int{0, 1, 1, 0},
	}
	imp, err := FitMedianImputer(ds, []string{"ca", "thal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	medians := imp.MedianMap()
	if medians["ca"] != 2 || medians["thal"] != 6 {
		t.Fatalf("unexpected medians: %v", medians)
	}

	other := &Dataset{
		Features: [][]float64{{50, 0, 2, 120, 200, 0, 0, 160, 0, 0, 1, nan, nan}},
		Labels:   []int{0},
	}
	if filled := imp.Apply(other); filled != 2 {
		t.Fatalf("expected 2 filled values, got %d", filled)
	}
	if other.Features[0][11] != 2 || other.Features[0][12] != 6 {
		t.Fatalf("unexpected imputed row: %v", other.Features[0])
	}

	if filled := imp.Apply(ds); filled != 2 {
		t.Fatalf("expected 2 filled values, got %d", filled)
	}
}

func TestMedianImputerErrors(t *testing.T) {
	nan := math.NaN()
	ds := &Dataset{
		Features: [][]float64{{63, 1, 1, 145, 233, 1, 2, 150, 0, 2.3, 3, nan, 6}},
		Labels:   []int{0},
	}
	if _, err := FitMedianImputer(ds, []string{"ca"}); err == nil {
		t.Fatal("expected error for column without observed values")
	}
	if _, err := FitMedianImputer(ds, []string{"weight"}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}
