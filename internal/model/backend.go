package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/atk-classifier/internal/tensor"
)

// Backend runs a deserialized model. Infer must be safe for concurrent use
// and must not mutate shared state.
type Backend interface {
	Infer(t tensor.Tensor) ([]float64, error)
	Name() string
	Close() error
}

// BackendKind selects the runtime used for a model artifact.
type BackendKind string

const (
	BackendAuto       BackendKind = "auto"
	BackendONNX       BackendKind = "onnx"
	BackendSavedModel BackendKind = "savedmodel"
)

// BackendLoader deserializes the artifact at path into a Backend producing
// numClasses probabilities.
type BackendLoader func(path string, cfg PredictorConfig, numClasses int) (Backend, error)

func loadBackend(path string, cfg PredictorConfig, numClasses int) (Backend, error) {
	kind := cfg.Backend
	if kind == "" || kind == BackendAuto {
		kind = detectBackend(path)
	}
	switch kind {
	case BackendONNX:
		return newONNXBackend(path, cfg, numClasses)
	case BackendSavedModel:
		return newSavedModelBackend(path, cfg, numClasses)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArtifact, path)
	}
}

func detectBackend(path string) BackendKind {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return BackendSavedModel
	}
	if strings.EqualFold(filepath.Ext(path), ".onnx") {
		return BackendONNX
	}
	return ""
}

// MetadataPath returns where the sidecar record for a model artifact lives.
func MetadataPath(modelPath string) string {
	clean := filepath.Clean(modelPath)
	return strings.TrimSuffix(clean, filepath.Ext(clean)) + ".json"
}

// readMetadata returns nil without error when no sidecar exists.
func readMetadata(modelPath string) (*Metadata, error) {
	raw, err := os.ReadFile(MetadataPath(modelPath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}
