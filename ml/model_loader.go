package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LoadPipeline reads and validates a pipeline artifact. Any error here is
// meant to stop the process before it serves a single prediction.
func LoadPipeline(path string) (*Pipeline, error) {
	if path == "" {
		return nil, errors.New("model path is required")
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var p Pipeline
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &p, nil
}

// SavePipeline writes the artifact through a temporary file and renames it
// into place, so a reader never observes a partial file.
func SavePipeline(path string, p *Pipeline) error {
	if p == nil {
		return errors.New("model not trained")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
