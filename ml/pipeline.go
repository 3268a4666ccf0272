package ml

import (
	"errors"
	"fmt"
	"time"
)

const (
	FormatVersion      = 1
	DefaultNComponents = 8
)

// Pipeline holds every parameter fitted by the builder: standardisation,
// projection and the calibrated kernel classifier. It is never mutated after
// FitPipeline or LoadPipeline returns, so one value may be shared by any
// number of goroutines.
type Pipeline struct {
	Version    int             `json:"version"`
	Schema     Schema          `json:"schema"`
	Scaler     *StandardScaler `json:"scaler"`
	Projection *PCA            `json:"projection"`
	Classifier *SVC            `json:"classifier"`
	CreatedAt  time.Time       `json:"created_at"`
	TrainSize  int             `json:"train_size"`
}

type FitOptions struct {
	NComponents int
	SVC         SVCParams
}

func DefaultFitOptions() FitOptions {
	return FitOptions{
		NComponents: DefaultNComponents,
		SVC:         DefaultSVCParams(),
	}
}

// FitPipeline fits scaler, projection and classifier in order, each stage on
// the output of the previous fitted stage.
func FitPipeline(schema Schema, features [][]float64, labels []int, opts FitOptions) (*Pipeline, error) {
	if len(features) == 0 {
		return nil, errors.New("features is empty")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	for i, row := range features {
		if len(row) != schema.Len() {
			return nil, fmt.Errorf("row %d has %d features, schema has %d", i, len(row), schema.Len())
		}
	}

	scaler, err := FitScaler(features, schema.Names())
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	scaled := scaler.TransformAll(features)

	projection, err := FitPCA(scaled, opts.NComponents)
	if err != nil {
		return nil, fmt.Errorf("fit projection: %w", err)
	}
	projected := projection.TransformAll(scaled)

	classifier, err := TrainSVC(projected, labels, opts.SVC)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}

	p := &Pipeline{
		Version:    FormatVersion,
		Schema:     schema,
		Scaler:     scaler,
		Projection: projection,
		Classifier: classifier,
		CreatedAt:  time.Now().UTC(),
		TrainSize:  len(features),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) Validate() error {
	if p.Version != FormatVersion {
		return invalidModel("unsupported format version %d", p.Version)
	}
	if !p.Schema.Equal(HeartSchema()) {
		return invalidModel("schema %v does not match %v", p.Schema.Names(), FeatureNames())
	}
	if p.Scaler == nil || p.Projection == nil || p.Classifier == nil {
		return invalidModel("pipeline is missing a stage")
	}
	dim := p.Schema.Len()
	if err := p.Scaler.validate(dim); err != nil {
		return err
	}
	if err := p.Projection.validate(dim); err != nil {
		return err
	}
	return p.Classifier.validate(p.Projection.NComponents)
}

// Transform runs standardisation and projection on a schema-ordered vector.
func (p *Pipeline) Transform(x []float64) []float64 {
	return p.Projection.Transform(p.Scaler.Transform(x))
}

func (p *Pipeline) PredictProba(x []float64) []float64 {
	return p.Classifier.PredictProba(p.Transform(x))
}

func (p *Pipeline) Predict(x []float64) int {
	return p.Classifier.Predict(p.Transform(x))
}
