package pipeline

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const sampleRows = `63.0,1.0,1.0,145.0,233.0,1.0,2.0,150.0,0.0,2.3,3.0,0.0,6.0,0
67.0,1.0,4.0,160.0,286.0,0.0,2.0,108.0,1.0,1.5,2.0,3.0,3.0,2
67.0,1.0,4.0,120.0,229.0,0.0,2.0,129.0,1.0,2.6,2.0,2.0,7.0,1
37.0,1.0,3.0,130.0,250.0,0.0,0.0,187.0,0.0,3.5,3.0,0.0,3.0,0
`

func TestReadDataset(t *testing.T) {
	rows, err := ReadDataset(strings.NewReader(sampleRows), IngestionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if rows[1].Line != 2 {
		t.Fatalf("expected line 2, got %d", rows[1].Line)
	}
	if len(rows[0].Values) != len(Columns()) {
		t.Fatalf("expected %d values, got %d", len(Columns()), len(rows[0].Values))
	}
	if rows[0].Values[9] != "2.3" || rows[1].Values[13] != "2" {
		t.Fatalf("unexpected values: %v %v", rows[0].Values, rows[1].Values)
	}
}

func TestReadDatasetErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		encoding string
	}{
		{name: "empty", input: ""},
		{name: "short row", input: "63,1,1,145\n"},
		{name: "unknown encoding", input: sampleRows, encoding: "ebcdic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadDataset(strings.NewReader(tt.input), IngestionConfig{Encoding: tt.encoding}); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := ReadDataset(strings.NewReader(""), IngestionConfig{}); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestReadDatasetLatin1(t *testing.T) {
	// 0xA0 is a non-breaking space in ISO-8859-1 and invalid UTF-8 on its own.
	input := "63.0,1.0,1.0,145.0,233.0,1.0,2.0,150.0,0.0,2.3,3.0,0.0,6.0,\xa00\n"
	rows, err := ReadDataset(strings.NewReader(input), IngestionConfig{Encoding: "latin1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rows[0].Values[13]; got != "0" {
		t.Fatalf("expected decoded label 0, got %q", got)
	}
}

func TestLoadDatasetFile(t *testing.T) {
	rows, err := LoadDataset(filepath.Join("testdata", "cleveland_sample.data"), IngestionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 80 {
		t.Fatalf("expected 80 rows, got %d", len(rows))
	}

	if _, err := LoadDataset(filepath.Join(t.TempDir(), "missing.data"), IngestionConfig{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
