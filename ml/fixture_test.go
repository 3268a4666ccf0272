package ml

import (
	"math"
	"math/rand"
	"sync"
	"testing"
)

// syntheticDataset draws records whose label shifts age, max heart rate,
// exercise angina and ST depression, loosely following the clinical data.
func syntheticDataset(n int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	bernoulli := func(p float64) float64 {
		if rnd.Float64() < p {
			return 1
		}
		return 0
	}
	thal := []float64{3, 6, 7}

	features := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		label := i % 2
		shift := float64(label)
		features[i] = []float64{
			math.Round(50 + 5*shift + 8*rnd.NormFloat64()),
			bernoulli(0.5 + 0.2*shift),
			float64(1 + rnd.Intn(4)),
			math.Round(130 + 15*rnd.NormFloat64()),
			math.Round(240 + 40*rnd.NormFloat64()),
			bernoulli(0.15),
			float64(rnd.Intn(3)),
			math.Round(160 - 20*shift + 15*rnd.NormFloat64()),
			bernoulli(0.15 + 0.4*shift),
			math.Abs(0.5 + 1.2*shift + 0.7*rnd.NormFloat64()),
			float64(1 + rnd.Intn(3)),
			float64(rnd.Intn(2) + label*rnd.Intn(3)),
			thal[rnd.Intn(len(thal))],
		}
		labels[i] = label
	}
	return features, labels
}

func recordFrom(vector []float64) Record {
	record := make(Record, len(vector))
	for i, name := range FeatureNames() {
		record[name] = vector[i]
	}
	return record
}

func sampleRecord() Record {
	return Record{
		"age": 63, "sex": 1, "cp": 3, "trestbps": 145, "chol": 233, "fbs": 1, "restecg": 0,
		"thalach": 150, "exang": 0, "oldpeak": 2.3, "slope": 0, "ca": 0, "thal": 1,
	}
}

var fixture struct {
	once     sync.Once
	pipeline *Pipeline
	err      error
}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	fixture.once.Do(func() {
		features, labels := syntheticDataset(120, 7)
		fixture.pipeline, fixture.err = FitPipeline(HeartSchema(), features, labels, DefaultFitOptions())
	})
	if fixture.err != nil {
		t.Fatalf("fit pipeline: %v", fixture.err)
	}
	return fixture.pipeline
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(testPipeline(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return engine
}

// singleClassPipeline is the degenerate shape produced when every training
// row carried the same label.
func singleClassPipeline(class int) *Pipeline {
	dim := len(FeatureNames())
	mean := make([]float64, dim)
	scale := make([]float64, dim)
	components := make([][]float64, dim)
	for i := range scale {
		scale[i] = 1
		components[i] = make([]float64, DefaultNComponents)
		if i < DefaultNComponents {
			components[i][i] = 1
		}
	}
	return &Pipeline{
		Version:    FormatVersion,
		Schema:     HeartSchema(),
		Scaler:     &StandardScaler{Mean: mean, Scale: scale},
		Projection: &PCA{NComponents: DefaultNComponents, Mean: make([]float64, dim), Components: components},
		Classifier: &SVC{Classes: []int{class}, ClassPrior: []float64{1}, Gamma: 0.1, C: 1},
	}
}
