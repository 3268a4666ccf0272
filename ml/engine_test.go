package ml

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestEnginePredictRange(t *testing.T) {
	engine := testEngine(t)
	features, _ := syntheticDataset(200, 99)
	for i, vector := range features {
		result, err := engine.Predict(recordFrom(vector))
		if err != nil {
			t.Fatalf("row %d: unexpected error: %v", i, err)
		}
		if result.Prediction != 0 && result.Prediction != 1 {
			t.Fatalf("row %d: prediction %d not binary", i, result.Prediction)
		}
		if result.Probability < 0 || result.Probability > 1 {
			t.Fatalf("row %d: probability %v out of range", i, result.Probability)
		}
		if result.Message != messageFor(result.Prediction) {
			t.Fatalf("row %d: message %q does not match class %d", i, result.Message, result.Prediction)
		}
	}
}

func TestEnginePredictDeterministic(t *testing.T) {
	engine := testEngine(t)
	first, err := engine.Predict(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Predict(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second || math.Float64bits(first.Probability) != math.Float64bits(second.Probability) {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestEnginePredictConcurrent(t *testing.T) {
	engine := testEngine(t)
	want, err := engine.Predict(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.Predict(sampleRecord())
			if err != nil {
				errs <- err
				return
			}
			if got != want {
				errs <- errors.New("concurrent result differs")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestEngineRoundingKeepsClass(t *testing.T) {
	engine := testEngine(t)
	features, _ := syntheticDataset(300, 5)
	for i, vector := range features {
		raw := engine.pipeline.PredictProba(vector)
		result := engine.Score(vector)
		if result.Prediction == PositiveClass && (raw[1] < 0.5 || result.Probability < 0.5) {
			t.Fatalf("row %d: class 1 with raw %v rounded %v", i, raw[1], result.Probability)
		}
		if result.Prediction == NegativeClass && (raw[1] > 0.5 || result.Probability > 0.5) {
			t.Fatalf("row %d: class 0 with raw %v rounded %v", i, raw[1], result.Probability)
		}
		if math.Abs(result.Probability-raw[1]) > 0.0005+1e-12 {
			t.Fatalf("row %d: rounded %v too far from %v", i, result.Probability, raw[1])
		}
	}
}

func TestEngineSampleRecord(t *testing.T) {
	engine := testEngine(t)
	result, err := engine.Predict(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	switch result.Prediction {
	case 0:
		if result.Message != "No heart disease detected" || result.Probability > 0.5 {
			t.Fatalf("inconsistent result: %+v", result)
		}
	case 1:
		if result.Message != "Heart disease detected" || result.Probability < 0.5 {
			t.Fatalf("inconsistent result: %+v", result)
		}
	default:
		t.Fatalf("unexpected prediction: %+v", result)
	}
}

func TestEngineValidationErrors(t *testing.T) {
	engine := testEngine(t)

	record := sampleRecord()
	delete(record, "thal")
	if _, err := engine.Predict(record); !errors.Is(err, ErrMissingFeature) {
		t.Fatalf("expected ErrMissingFeature, got %v", err)
	}

	record = sampleRecord()
	record["chol"] = "high"
	if _, err := engine.Predict(record); !errors.Is(err, ErrInvalidFeatureType) {
		t.Fatalf("expected ErrInvalidFeatureType, got %v", err)
	}
}

func TestEngineSingleClassFallback(t *testing.T) {
	tests := []struct {
		class   int
		message string
	}{
		{NegativeClass, MessageNoDisease},
		{PositiveClass, MessageDisease},
	}
	for _, tt := range tests {
		engine, err := NewEngine(singleClassPipeline(tt.class))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		result, err := engine.Predict(sampleRecord())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Prediction != tt.class || result.Probability != 1 || result.Message != tt.message {
			t.Fatalf("class %d: unexpected result %+v", tt.class, result)
		}
	}
}

func TestNewEngineRejectsInvalidPipeline(t *testing.T) {
	if _, err := NewEngine(nil); err == nil {
		t.Fatal("expected error for nil pipeline")
	}
	p := singleClassPipeline(NegativeClass)
	p.Scaler.Scale[4] = 0
	if _, err := NewEngine(p); !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel, got %v", err)
	}
}

func TestFitPipelineStages(t *testing.T) {
	p := testPipeline(t)
	if p.Projection.NComponents != DefaultNComponents {
		t.Fatalf("expected %d components, got %d", DefaultNComponents, p.Projection.NComponents)
	}
	if len(p.Projection.Components) != len(FeatureNames()) {
		t.Fatalf("expected %d projection rows, got %d", len(FeatureNames()), len(p.Projection.Components))
	}
	if p.TrainSize != 120 {
		t.Fatalf("expected train size 120, got %d", p.TrainSize)
	}
	if !p.Classifier.Probability {
		t.Fatal("expected calibrated classifier")
	}
	for _, sv := range p.Classifier.SupportVectors {
		if len(sv) != DefaultNComponents {
			t.Fatalf("support vector has %d dims", len(sv))
		}
	}
}

func TestFitPipelineDegenerateColumn(t *testing.T) {
	features, labels := syntheticDataset(40, 11)
	for _, row := range features {
		row[5] = 0
	}
	_, err := FitPipeline(HeartSchema(), features, labels, DefaultFitOptions())
	if !errors.Is(err, ErrDegenerateFeature) {
		t.Fatalf("expected ErrDegenerateFeature, got %v", err)
	}
}
