package ml

import (
	"errors"
	"math"
)

const (
	MessageNoDisease = "No heart disease detected"
	MessageDisease   = "Heart disease detected"
)

type Result struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	Message     string  `json:"message"`
}

// Engine scores records against a loaded pipeline. It keeps no state besides
// the pipeline itself, so Predict is safe for concurrent use without locks.
type Engine struct {
	pipeline *Pipeline
}

func NewEngine(p *Pipeline) (*Engine, error) {
	if p == nil {
		return nil, errors.New("pipeline is nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{pipeline: p}, nil
}

func (e *Engine) Schema() Schema {
	return e.pipeline.Schema
}

func (e *Engine) Info() ModelInfo {
	return e.pipeline.Info()
}

func (e *Engine) Predict(record Record) (Result, error) {
	vector, err := e.pipeline.Schema.Vector(record)
	if err != nil {
		return Result{}, err
	}
	return e.Score(vector), nil
}

// Score runs the frozen chain on an already validated, schema-ordered vector.
func (e *Engine) Score(vector []float64) Result {
	projected := e.pipeline.Transform(vector)
	class, probability := classify(e.pipeline.Classifier, projected)
	return Result{
		Prediction:  class,
		Probability: roundProbability(probability),
		Message:     messageFor(class),
	}
}

// classify picks the most probable class at full precision and reports the
// probability of PositiveClass.
func classify(clf *SVC, x []float64) (int, float64) {
	proba := clf.PredictProba(x)
	if proba == nil {
		class := clf.Predict(x)
		return class, winningClassFallback(nil)
	}

	best := 0
	for i := range proba {
		if proba[i] > proba[best] {
			best = i
		}
	}
	class := clf.Classes[best]

	positive := clf.ClassIndex(PositiveClass)
	if positive < 0 {
		return class, winningClassFallback(proba[best : best+1])
	}
	return class, proba[positive]
}

// winningClassFallback covers models that cannot put a probability on
// PositiveClass, such as one fitted on a single class. The winning class's
// own probability is reported instead; with nothing to report it is 1.
func winningClassFallback(winner []float64) float64 {
	if len(winner) == 0 {
		return 1
	}
	return winner[0]
}

func roundProbability(p float64) float64 {
	return math.Round(p*1000) / 1000
}

func messageFor(class int) string {
	if class == PositiveClass {
		return MessageDisease
	}
	return MessageNoDisease
}
