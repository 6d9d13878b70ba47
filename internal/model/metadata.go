package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jupiter-voice/jupiter/internal/errors"
)

// Metadata is the optional sidecar describing a model file. For
// hey_jupiter.tflite it is read from hey_jupiter.yaml.
type Metadata struct {
	Architecture  Architecture `yaml:"architecture"`
	NMFCC         int          `yaml:"n_mfcc"`
	NumFrames     int          `yaml:"num_frames"`
	Probabilities bool         `yaml:"probabilities"`
	Description   string       `yaml:"description,omitempty"`
}

// MetadataPath returns the sidecar location for a model path.
func MetadataPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".yaml"
}

// LoadMetadata reads the sidecar for modelPath. A missing sidecar yields nil
// without error.
func LoadMetadata(modelPath string) (*Metadata, error) {
	path := MetadataPath(modelPath)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(err).
			Component(componentModel).
			Category(errors.CategoryFileIO).
			Context("metadata_path", path).
			Build()
	}

	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, errors.New(err).
			Component(componentModel).
			Category(errors.CategoryModelLoad).
			Context("metadata_path", path).
			Build()
	}
	return &meta, nil
}

// CheckShape compares declared feature dimensions with the extractor's
// output shape. Undeclared dimensions and an unset shape always pass.
func (m *Metadata) CheckShape(shape [3]int) error {
	if shape == [3]int{} {
		return nil
	}
	if m.NMFCC > 0 && m.NMFCC != shape[1] {
		return fmt.Errorf("model expects %d MFCC coefficients, extractor produces %d", m.NMFCC, shape[1])
	}
	if m.NumFrames > 0 && m.NumFrames != shape[2] {
		return fmt.Errorf("model expects %d frames, extractor produces %d", m.NumFrames, shape[2])
	}
	return nil
}
