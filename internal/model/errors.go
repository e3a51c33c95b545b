package model

import (
	"errors"
	"fmt"
)

var (
	ErrRuntimeUnavailable  = errors.New("model runtime unavailable")
	ErrModelNotFound       = errors.New("model artifact not found")
	ErrUnsupportedArtifact = errors.New("unsupported model artifact")
	ErrOutputSize          = errors.New("model output size does not match class names")
)

// InferenceError wraps a failure inside a loaded model call.
type InferenceError struct {
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Backend, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
