package ml

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is one patient's measurements as received from a client, keyed by
// feature name. Values are whatever the transport decoded: JSON numbers,
// json.Number or numeric strings.
type Record map[string]any

type FieldKind string

const (
	Continuous  FieldKind = "continuous"
	Categorical FieldKind = "categorical"
)

type Field struct {
	Name        string    `json:"name"`
	Kind        FieldKind `json:"kind"`
	Description string    `json:"description,omitempty"`
}

// Schema is the ordered list of fields the pipeline was fitted on. Position i
// of a feature vector always holds Fields[i].
type Schema struct {
	Fields []Field `json:"fields"`
}

var heartSchema = Schema{Fields: []Field{
	{Name: "age", Kind: Continuous, Description: "age in years"},
	{Name: "sex", Kind: Categorical, Description: "1 = male, 0 = female"},
	{Name: "cp", Kind: Categorical, Description: "chest pain type"},
	{Name: "trestbps", Kind: Continuous, Description: "resting blood pressure (mm Hg)"},
	{Name: "chol", Kind: Continuous, Description: "serum cholesterol (mg/dl)"},
	{Name: "fbs", Kind: Categorical, Description: "fasting blood sugar > 120 mg/dl"},
	{Name: "restecg", Kind: Categorical, Description: "resting electrocardiographic results"},
	{Name: "thalach", Kind: Continuous, Description: "maximum heart rate achieved"},
	{Name: "exang", Kind: Categorical, Description: "exercise induced angina"},
	{Name: "oldpeak", Kind: Continuous, Description: "ST depression induced by exercise"},
	{Name: "slope", Kind: Categorical, Description: "slope of the peak exercise ST segment"},
	{Name: "ca", Kind: Categorical, Description: "number of major vessels colored by fluoroscopy"},
	{Name: "thal", Kind: Categorical, Description: "thalassemia"},
}}

// HeartSchema returns the 13-field clinical schema.
func HeartSchema() Schema {
	fields := make([]Field, len(heartSchema.Fields))
	copy(fields, heartSchema.Fields)
	return Schema{Fields: fields}
}

func FeatureNames() []string {
	return HeartSchema().Names()
}

func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func (s Schema) Len() int {
	return len(s.Fields)
}

func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != other.Fields[i].Name {
			return false
		}
	}
	return true
}

// Vector validates a record and lays its values out in schema order. Fields
// are checked in order and the first failure is returned; names outside the
// schema are ignored.
func (s Schema) Vector(record Record) ([]float64, error) {
	vector := make([]float64, len(s.Fields))
	for i, f := range s.Fields {
		raw, ok := record[f.Name]
		if !ok {
			return nil, &FeatureError{Field: f.Name, Err: ErrMissingFeature}
		}
		value, ok := toFloat(raw)
		if !ok {
			return nil, &FeatureError{Field: f.Name, Value: raw, Err: ErrInvalidFeatureType}
		}
		vector[i] = value
	}
	return vector, nil
}

func toFloat(raw any) (float64, bool) {
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int32:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		value = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		value = f
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}
