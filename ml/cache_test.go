package ml

import (
	"errors"
	"testing"
)

func TestCachedEngine(t *testing.T) {
	engine := testEngine(t)
	cached, err := NewCachedEngine(engine, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, _ := engine.Predict(sampleRecord())
	for i := 0; i < 3; i++ {
		got, err := cached.Predict(sampleRecord())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}
	if cached.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", cached.Len())
	}

	record := sampleRecord()
	delete(record, "ca")
	if _, err := cached.Predict(record); !errors.Is(err, ErrMissingFeature) {
		t.Fatalf("expected ErrMissingFeature, got %v", err)
	}
	if cached.Len() != 1 {
		t.Fatalf("invalid records must not be cached, got %d entries", cached.Len())
	}
}

func TestNewCachedEngineErrors(t *testing.T) {
	if _, err := NewCachedEngine(nil, 8); err == nil {
		t.Fatal("expected error for nil engine")
	}
	if _, err := NewCachedEngine(testEngine(t), 0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
