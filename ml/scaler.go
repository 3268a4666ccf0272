package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres each feature on its fit-time mean and divides by
// its fit-time population standard deviation.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func FitScaler(features [][]float64, names []string) (*StandardScaler, error) {
	if len(features) == 0 {
		return nil, errors.New("features is empty")
	}
	dim := len(features[0])
	if len(names) != 0 && len(names) != dim {
		return nil, fmt.Errorf("got %d names for %d columns", len(names), dim)
	}

	scaler := &StandardScaler{
		Mean:  make([]float64, dim),
		Scale: make([]float64, dim),
	}
	column := make([]float64, len(features))
	for j := 0; j < dim; j++ {
		for i, row := range features {
			if len(row) != dim {
				return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), dim)
			}
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) || math.IsNaN(mean) || math.IsInf(mean, 0) {
			return nil, fmt.Errorf("%w: column %s has mean %v and scale %v", ErrDegenerateFeature, columnName(names, j), mean, std)
		}
		scaler.Mean[j] = mean
		scaler.Scale[j] = std
	}
	return scaler, nil
}

func (s *StandardScaler) Transform(x []float64) []float64 {
	z := make([]float64, len(x))
	for i := range x {
		z[i] = (x[i] - s.Mean[i]) / s.Scale[i]
	}
	return z
}

func (s *StandardScaler) TransformAll(features [][]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		out[i] = s.Transform(row)
	}
	return out
}

func (s *StandardScaler) validate(dim int) error {
	if len(s.Mean) != dim || len(s.Scale) != dim {
		return invalidModel("scaler has %d means and %d scales, want %d", len(s.Mean), len(s.Scale), dim)
	}
	for i, scale := range s.Scale {
		if scale == 0 || !finite(scale) || !finite(s.Mean[i]) {
			return invalidModel("scaler column %d has mean %v and scale %v", i, s.Mean[i], scale)
		}
	}
	return nil
}

func columnName(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return fmt.Sprintf("#%d", j)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
