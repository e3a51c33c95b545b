package preprocess

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyImage        = errors.New("empty image")
	ErrUnsupportedSource = errors.New("unsupported image source")
)

// LoadError is returned when a source cannot be read or decoded.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load image from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// UploadError carries a message meant to be shown to whoever uploaded the file.
type UploadError struct {
	Filename string
	Msg      string
}

func (e *UploadError) Error() string {
	return e.Msg
}
