package ml

import "time"

// Predictor scores a single record.
type Predictor interface {
	Predict(record Record) (Result, error)
}

// ModelInfo is the read-only summary served alongside predictions.
type ModelInfo struct {
	Version                int       `json:"version"`
	Features               []string  `json:"features"`
	Components             int       `json:"components"`
	ExplainedVarianceRatio []float64 `json:"explained_variance_ratio"`
	SupportVectors         int       `json:"support_vectors"`
	Gamma                  float64   `json:"gamma"`
	Classes                []int     `json:"classes"`
	ClassPrior             []float64 `json:"class_prior"`
	Calibrated             bool      `json:"calibrated"`
	TrainSize              int       `json:"train_size"`
	CreatedAt              string    `json:"created_at"`
}

func (p *Pipeline) Info() ModelInfo {
	ratio := make([]float64, len(p.Projection.ExplainedVarianceRatio))
	copy(ratio, p.Projection.ExplainedVarianceRatio)
	return ModelInfo{
		Version:                p.Version,
		Features:               p.Schema.Names(),
		Components:             p.Projection.NComponents,
		ExplainedVarianceRatio: ratio,
		SupportVectors:         len(p.Classifier.SupportVectors),
		Gamma:                  p.Classifier.Gamma,
		Classes:                append([]int(nil), p.Classifier.Classes...),
		ClassPrior:             append([]float64(nil), p.Classifier.ClassPrior...),
		Calibrated:             p.Classifier.Probability,
		TrainSize:              p.TrainSize,
		CreatedAt:              p.CreatedAt.Format(time.RFC3339),
	}
}
