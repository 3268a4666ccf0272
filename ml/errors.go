package ml

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFeature     = errors.New("missing feature")
	ErrInvalidFeatureType = errors.New("invalid feature type")

	// ErrDegenerateFeature is returned at fit time when a column carries no
	// usable variance. The builder must not emit an artifact in that case.
	ErrDegenerateFeature = errors.New("degenerate feature")

	ErrInvalidModel = errors.New("invalid model")
)

// FeatureError reports which field of a record failed validation.
type FeatureError struct {
	Field string
	Value any
	Err   error
}

func (e *FeatureError) Error() string {
	if errors.Is(e.Err, ErrMissingFeature) {
		return fmt.Sprintf("%s: %q", e.Err, e.Field)
	}
	return fmt.Sprintf("%s: %q has value %v", e.Err, e.Field, e.Value)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

func invalidModel(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidModel, fmt.Sprintf(format, args...))
}
