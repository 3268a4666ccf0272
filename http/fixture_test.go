package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"heartrisk/ml"
)

type fakePredictor struct {
	result ml.Result
	err    error
	panics bool
}

func (f *fakePredictor) Predict(record ml.Record) (ml.Result, error) {
	if f.panics {
		panic("scoring exploded")
	}
	return f.result, f.err
}

// handcraftedEngine builds a small valid pipeline: unit scaling, projection
// onto the first components, and two opposite support vectors.
func handcraftedEngine(t *testing.T) *ml.Engine {
	t.Helper()
	schema := ml.HeartSchema()
	dim := schema.Len()
	k := ml.DefaultNComponents

	mean := []float64{54, 0.7, 3.2, 131, 246, 0.15, 1, 150, 0.3, 1, 1.6, 0.7, 4.7}
	scale := []float64{9, 0.46, 0.96, 17.6, 51.8, 0.36, 0.99, 22.9, 0.47, 1.16, 0.62, 0.94, 1.94}
	components := make([][]float64, dim)
	for i := range components {
		components[i] = make([]float64, k)
		if i < k {
			components[i][i] = 1
		}
	}
	pos := make([]float64, k)
	neg := make([]float64, k)
	for i := range pos {
		pos[i] = 0.5
		neg[i] = -0.5
	}

	p := &ml.Pipeline{
		Version:    ml.FormatVersion,
		Schema:     schema,
		Scaler:     &ml.StandardScaler{Mean: mean, Scale: scale},
		Projection: &ml.PCA{NComponents: k, Mean: make([]float64, dim), Components: components},
		Classifier: &ml.SVC{
			Classes:        []int{ml.NegativeClass, ml.PositiveClass},
			ClassPrior:     []float64{0.5, 0.5},
			SupportVectors: [][]float64{pos, neg},
			DualCoef:       []float64{1, -1},
			Gamma:          0.125,
			C:              1,
			Probability:    true,
			ProbA:          -3,
			ProbB:          0,
		},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TrainSize: 242,
	}
	engine, err := ml.NewEngine(p)
	if err != nil {
		t.Fatalf("handcrafted pipeline is invalid: %v", err)
	}
	return engine
}

func sampleRecord() map[string]any {
	return map[string]any{
		"age": 63, "sex": 1, "cp": 3, "trestbps": 145, "chol": 233, "fbs": 1, "restecg": 0,
		"thalach": 150, "exang": 0, "oldpeak": 2.3, "slope": 0, "ca": 0, "thal": 1,
	}
}

func newTestServer(t *testing.T, config ServerConfig, services Services) http.Handler {
	t.Helper()
	server, err := NewServer(config, services, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server.Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case string:
		payload = []byte(b)
	default:
		var err error
		if payload, err = json.Marshal(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return payload
}
