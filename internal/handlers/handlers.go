package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/atk-classifier/internal/model"
	"github.com/Brownie44l1/atk-classifier/internal/preprocess"
	"github.com/rs/zerolog/log"
)

// Pipeline is what the handler needs from the inference pipeline.
type Pipeline interface {
	ValidateUpload(filename string, size int64) error
	ImageInfo(src preprocess.Source) (preprocess.ImageInfo, error)
	IsDemoMode() bool
}

// Predictor classifies a source; the pipeline or a cache in front of it.
type Predictor interface {
	Predict(src preprocess.Source, topK int) (model.PredictionResult, error)
}

// Response is the outcome for one file. Error is set instead of Info and
// Result when the file was rejected or could not be classified.
type Response struct {
	File   string                  `json:"file"`
	Info   *preprocess.ImageInfo   `json:"info,omitempty"`
	Result *model.PredictionResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

type Handler struct {
	pipeline  Pipeline
	predictor Predictor
	topK      int
}

func NewHandler(pipeline Pipeline, predictor Predictor, topK int) *Handler {
	return &Handler{
		pipeline:  pipeline,
		predictor: predictor,
		topK:      topK,
	}
}

// ClassifyFile validates, decodes and classifies the file at path.
func (h *Handler) ClassifyFile(path string) (Response, error) {
	resp := Response{File: path}

	fi, err := os.Stat(path)
	if err != nil {
		return resp, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := h.pipeline.ValidateUpload(filepath.Base(path), fi.Size()); err != nil {
		return resp, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return resp, fmt.Errorf("failed to read %s: %w", path, err)
	}
	src := preprocess.FromBytes(data)

	info, err := h.pipeline.ImageInfo(src)
	if err != nil {
		return resp, err
	}
	log.Debug().
		Str("file", path).
		Int64("size", fi.Size()).
		Str("format", info.Format).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("received image")

	result, err := h.predictor.Predict(src, h.topK)
	if err != nil {
		return resp, err
	}
	if result.IsLowConfidence {
		log.Warn().Str("file", path).Float64("confidence", result.Confidence).Msg("low confidence prediction")
	}

	resp.Info = &info
	resp.Result = &result
	return resp, nil
}

// ClassifyFiles runs ClassifyFile for every path, recording failures in the
// response instead of stopping. It reports how many files failed.
func (h *Handler) ClassifyFiles(paths []string) ([]Response, int) {
	responses := make([]Response, 0, len(paths))
	failed := 0
	for _, path := range paths {
		resp, err := h.ClassifyFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("classification failed")
			resp.Error = err.Error()
			failed++
		}
		responses = append(responses, resp)
	}
	return responses, failed
}

// Encode writes v as indented JSON.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
