package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	NegativeClass = 0
	PositiveClass = 1
)

// SVCParams controls how the kernel classifier is fitted.
type SVCParams struct {
	C         float64
	Gamma     float64 // <= 0 selects 1 / (n_features * Var(X))
	Tolerance float64
	MaxIter   int
	// Folds is the number of internal cross-validation folds used to fit
	// the probability sigmoid. Zero disables calibration.
	Folds int
	Seed  int64
}

func DefaultSVCParams() SVCParams {
	return SVCParams{
		C:         1.0,
		Tolerance: 1e-3,
		Folds:     5,
		Seed:      42,
	}
}

// SVC is a fitted binary support vector classifier with an RBF kernel.
// DualCoef holds alpha_i * y_i for each support vector, where y_i is +1 for
// PositiveClass.
type SVC struct {
	Classes        []int       `json:"classes"`
	ClassPrior     []float64   `json:"class_prior"`
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoef       []float64   `json:"dual_coef"`
	Intercept      float64     `json:"intercept"`
	Gamma          float64     `json:"gamma"`
	C              float64     `json:"c"`
	Probability    bool        `json:"probability"`
	ProbA          float64     `json:"prob_a"`
	ProbB          float64     `json:"prob_b"`
}

func TrainSVC(features [][]float64, labels []int, params SVCParams) (*SVC, error) {
	if len(features) == 0 || len(labels) == 0 {
		return nil, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	if params.C <= 0 {
		return nil, fmt.Errorf("C must be positive, got %v", params.C)
	}
	if params.Tolerance <= 0 {
		params.Tolerance = 1e-3
	}

	y := make([]float64, len(labels))
	var positives, negatives int
	for i, label := range labels {
		switch label {
		case PositiveClass:
			y[i] = 1
			positives++
		case NegativeClass:
			y[i] = -1
			negatives++
		default:
			return nil, fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}

	gamma := params.Gamma
	if gamma <= 0 {
		gamma = scaleGamma(features)
	}

	total := float64(len(labels))
	if positives == 0 || negatives == 0 {
		class := NegativeClass
		if positives > 0 {
			class = PositiveClass
		}
		return &SVC{
			Classes:    []int{class},
			ClassPrior: []float64{1},
			Gamma:      gamma,
			C:          params.C,
		}, nil
	}

	model := solveSVC(features, y, gamma, params)
	model.Classes = []int{NegativeClass, PositiveClass}
	model.ClassPrior = []float64{float64(negatives) / total, float64(positives) / total}

	if params.Folds > 1 {
		decisions := crossValidatedDecisions(features, y, gamma, params)
		model.ProbA, model.ProbB = fitSigmoid(decisions, y)
		model.Probability = true
	}
	return model, nil
}

// scaleGamma mirrors the "scale" heuristic: 1 / (n_features * Var(X)).
func scaleGamma(features [][]float64) float64 {
	dim := len(features[0])
	all := make([]float64, 0, len(features)*dim)
	for _, row := range features {
		all = append(all, row...)
	}
	variance := stat.PopVariance(all, nil)
	if variance == 0 || !finite(variance) {
		return 1.0
	}
	return 1.0 / (float64(dim) * variance)
}

func rbf(a, b []float64, gamma float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Exp(-gamma * sum)
}

// Decision returns the signed distance to the separating surface; positive
// values favour PositiveClass.
func (s *SVC) Decision(x []float64) float64 {
	sum := s.Intercept
	for i, sv := range s.SupportVectors {
		sum += s.DualCoef[i] * rbf(sv, x, s.Gamma)
	}
	return sum
}

// PredictProba returns one probability per entry of Classes, or nil when the
// model was fitted without calibration.
func (s *SVC) PredictProba(x []float64) []float64 {
	if len(s.Classes) == 1 {
		return []float64{1}
	}
	if !s.Probability {
		return nil
	}
	p := sigmoidPredict(s.Decision(x), s.ProbA, s.ProbB)
	return []float64{1 - p, p}
}

func (s *SVC) Predict(x []float64) int {
	if len(s.Classes) == 1 {
		return s.Classes[0]
	}
	if s.Decision(x) > 0 {
		return PositiveClass
	}
	return NegativeClass
}

func (s *SVC) ClassIndex(class int) int {
	for i, c := range s.Classes {
		if c == class {
			return i
		}
	}
	return -1
}

func (s *SVC) validate(dim int) error {
	switch len(s.Classes) {
	case 1:
		if c := s.Classes[0]; c != NegativeClass && c != PositiveClass {
			return invalidModel("classifier class %d is not binary", c)
		}
		return nil
	case 2:
		if s.Classes[0] != NegativeClass || s.Classes[1] != PositiveClass {
			return invalidModel("classifier classes %v, want [%d %d]", s.Classes, NegativeClass, PositiveClass)
		}
	default:
		return invalidModel("classifier has %d classes", len(s.Classes))
	}
	if len(s.ClassPrior) != len(s.Classes) {
		return invalidModel("classifier has %d priors for %d classes", len(s.ClassPrior), len(s.Classes))
	}
	if len(s.SupportVectors) == 0 || len(s.SupportVectors) != len(s.DualCoef) {
		return invalidModel("classifier has %d support vectors and %d coefficients", len(s.SupportVectors), len(s.DualCoef))
	}
	for i, sv := range s.SupportVectors {
		if len(sv) != dim {
			return invalidModel("support vector %d has %d dims, want %d", i, len(sv), dim)
		}
	}
	if s.Gamma <= 0 || !finite(s.Gamma) || !finite(s.Intercept) {
		return invalidModel("classifier has gamma %v and intercept %v", s.Gamma, s.Intercept)
	}
	if !s.Probability {
		return invalidModel("two-class classifier has no probability calibration")
	}
	if !finite(s.ProbA) || !finite(s.ProbB) {
		return invalidModel("probability sigmoid is not finite")
	}
	return nil
}
