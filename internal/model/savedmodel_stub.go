//go:build !tensorflow

package model

import "fmt"

func newSavedModelBackend(path string, _ PredictorConfig, _ int) (Backend, error) {
	return nil, fmt.Errorf("%w: built without the tensorflow tag, cannot load %s", ErrRuntimeUnavailable, path)
}
