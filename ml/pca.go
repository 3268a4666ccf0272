package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA is a fitted linear projection onto the leading principal components.
// Components is laid out input-dimension by component, so projecting is a
// row-vector times matrix product.
type PCA struct {
	NComponents            int         `json:"n_components"`
	Mean                   []float64   `json:"mean"`
	Components             [][]float64 `json:"components"`
	ExplainedVariance      []float64   `json:"explained_variance"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio"`
}

func FitPCA(features [][]float64, nComponents int) (*PCA, error) {
	rows := len(features)
	if rows == 0 {
		return nil, errors.New("features is empty")
	}
	dim := len(features[0])
	if nComponents <= 0 || nComponents > dim {
		return nil, fmt.Errorf("n_components=%d must be in [1, %d]", nComponents, dim)
	}
	if rows < 2 || nComponents > rows {
		return nil, fmt.Errorf("%w: %d rows cannot support %d components", ErrDegenerateFeature, rows, nComponents)
	}

	data := make([]float64, 0, rows*dim)
	for i, row := range features {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), dim)
		}
		data = append(data, row...)
	}
	x := mat.NewDense(rows, dim, data)

	mean := make([]float64, dim)
	for j := 0; j < dim; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}

	cov := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(cov, x, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, errors.New("eigendecomposition of covariance matrix failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, dim)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	total := 0.0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 || !finite(total) {
		return nil, fmt.Errorf("%w: total variance is %v", ErrDegenerateFeature, total)
	}

	pca := &PCA{
		NComponents:            nComponents,
		Mean:                   mean,
		Components:             make([][]float64, dim),
		ExplainedVariance:      make([]float64, nComponents),
		ExplainedVarianceRatio: make([]float64, nComponents),
	}
	for i := range pca.Components {
		pca.Components[i] = make([]float64, nComponents)
	}
	for k := 0; k < nComponents; k++ {
		src := order[k]
		column := mat.Col(nil, src, &vectors)
		flipSign(column)
		for i := 0; i < dim; i++ {
			pca.Components[i][k] = column[i]
		}
		variance := math.Max(values[src], 0)
		pca.ExplainedVariance[k] = variance
		pca.ExplainedVarianceRatio[k] = variance / total
	}
	return pca, nil
}

// flipSign makes the largest-magnitude loading of a component positive so
// repeated fits on the same data yield the same axes.
func flipSign(v []float64) {
	best := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[best]) {
			best = i
		}
	}
	if v[best] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
}

func (p *PCA) Transform(z []float64) []float64 {
	out := make([]float64, p.NComponents)
	for i, row := range p.Components {
		centred := z[i] - p.Mean[i]
		for k, w := range row {
			out[k] += centred * w
		}
	}
	return out
}

func (p *PCA) TransformAll(features [][]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		out[i] = p.Transform(row)
	}
	return out
}

func (p *PCA) validate(dim int) error {
	if p.NComponents <= 0 || p.NComponents > dim {
		return invalidModel("projection has %d components for %d inputs", p.NComponents, dim)
	}
	if len(p.Mean) != dim || len(p.Components) != dim {
		return invalidModel("projection is %dx? with %d means, want %d rows", len(p.Components), len(p.Mean), dim)
	}
	for i, row := range p.Components {
		if len(row) != p.NComponents {
			return invalidModel("projection row %d has %d columns, want %d", i, len(row), p.NComponents)
		}
		for _, w := range row {
			if !finite(w) {
				return invalidModel("projection row %d is not finite", i)
			}
		}
		if !finite(p.Mean[i]) {
			return invalidModel("projection mean %d is not finite", i)
		}
	}
	return nil
}
