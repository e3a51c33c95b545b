// Package model owns the classifier lifecycle and turns tensors into ranked
// predictions, falling back to synthetic demo predictions when no model can
// be loaded.
package model

import (
	"errors"
	"fmt"
	"os"

	"github.com/Brownie44l1/atk-classifier/internal/tensor"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTopK                   = 3
	DefaultLowConfidenceThreshold = 0.5
)

// DefaultClassNames is used when no class names are configured.
var DefaultClassNames = []string{"eraser", "kertas", "pensil"}

type PredictorConfig struct {
	ModelPath  string
	ClassNames []string
	// LowConfidenceThreshold defaults to 0.5 when zero.
	LowConfidenceThreshold float64
	Backend                BackendKind
	// SharedLibraryPath points at the onnxruntime library; empty uses the
	// platform default.
	SharedLibraryPath string
	InputName         string
	OutputName        string
}

// state is either loaded or demo and never changes after NewPredictor.
type state interface {
	isState()
}

type loaded struct {
	backend  Backend
	metadata *Metadata
}

type demo struct {
	reason string
}

func (loaded) isState() {}
func (demo) isState() {}

// Predictor is constructed once and shared. All fields are read-only after
// NewPredictor returns.
type Predictor struct {
	state      state
	modelPath  string
	classNames []string
	threshold  float64
	sampler    Sampler
	loader     BackendLoader
}

type PredictorOption func(*Predictor)

// WithSampler replaces the demo-mode distribution.
func WithSampler(s Sampler) PredictorOption {
	return func(p *Predictor) { p.sampler = s }
}

// WithBackendLoader replaces the artifact deserializer.
func WithBackendLoader(l BackendLoader) PredictorOption {
	return func(p *Predictor) { p.loader = l }
}

// NewPredictor tries to load the model at cfg.ModelPath. Any failure leaves
// the predictor in demo mode; it is logged and never returned. To pick up a
// model that appears later, construct a new Predictor.
func NewPredictor(cfg PredictorConfig, opts ...PredictorOption) *Predictor {
	p := &Predictor{
		modelPath:  cfg.ModelPath,
		classNames: append([]string(nil), cfg.ClassNames...),
		threshold:  cfg.LowConfidenceThreshold,
		loader:     loadBackend,
	}
	if len(p.classNames) == 0 {
		p.classNames = append([]string(nil), DefaultClassNames...)
	}
	if p.threshold == 0 {
		p.threshold = DefaultLowConfidenceThreshold
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sampler == nil {
		p.sampler = NewDirichletSampler(nil)
	}

	s, err := p.load(cfg)
	if err != nil {
		log.Warn().Err(err).Str("model_path", cfg.ModelPath).Msg("model unavailable, running in demo mode")
		p.state = demo{reason: err.Error()}
		return p
	}
	p.state = s
	log.Info().
		Str("model_path", cfg.ModelPath).
		Str("backend", s.backend.Name()).
		Strs("classes", p.classNames).
		Msg("model loaded")
	return p
}

func (p *Predictor) load(cfg PredictorConfig) (loaded, error) {
	if cfg.ModelPath == "" {
		return loaded{}, fmt.Errorf("%w: no model path configured", ErrModelNotFound)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return loaded{}, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
		}
		return loaded{}, err
	}

	metadata, err := readMetadata(cfg.ModelPath)
	if err != nil {
		return loaded{}, err
	}
	classNames := p.classNames
	if metadata != nil && len(metadata.ClassNames) > 0 {
		classNames = append([]string(nil), metadata.ClassNames...)
	}

	backend, err := p.loader(cfg.ModelPath, cfg, len(classNames))
	if err != nil {
		return loaded{}, err
	}
	p.classNames = classNames
	return loaded{backend: backend, metadata: metadata}, nil
}

func (p *Predictor) IsDemoMode() bool {
	_, ok := p.state.(demo)
	return ok
}

// ClassNames returns a copy of the effective class list.
func (p *Predictor) ClassNames() []string {
	return append([]string(nil), p.classNames...)
}

func (p *Predictor) LowConfidenceThreshold() float64 { return p.threshold }

// Predict ranks the class probabilities for t. topK larger than the number
// of classes is clamped; topK <= 0 means DefaultTopK. Demo mode never fails.
func (p *Predictor) Predict(t tensor.Tensor, topK int) (PredictionResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var probs []float64
	switch s := p.state.(type) {
	case loaded:
		out, err := s.backend.Infer(t)
		if err != nil {
			return PredictionResult{}, &InferenceError{Backend: s.backend.Name(), Err: err}
		}
		if len(out) != len(p.classNames) {
			return PredictionResult{}, &InferenceError{
				Backend: s.backend.Name(),
				Err:     fmt.Errorf("%w: got %d, want %d", ErrOutputSize, len(out), len(p.classNames)),
			}
		}
		probs = out
	case demo:
		probs = p.sampler.Sample(len(p.classNames))
	}

	top := topPredictions(probs, p.classNames, topK)
	best := top[0]
	return PredictionResult{
		PredictedClass:  best.Class,
		Confidence:      best.Confidence,
		Percentage:      best.Confidence * 100,
		TopPredictions:  top,
		IsDemo:          p.IsDemoMode(),
		IsLowConfidence: best.Confidence < p.threshold,
	}, nil
}

// Info describes the running model.
func (p *Predictor) Info() ModelInfo {
	info := ModelInfo{
		Mode:       "demo",
		ClassNames: p.ClassNames(),
		NumClasses: len(p.classNames),
	}
	switch s := p.state.(type) {
	case loaded:
		info.Mode = "production"
		info.ModelLoaded = true
		info.ModelPath = p.modelPath
		info.Backend = s.backend.Name()
		info.Metadata = s.metadata
	case demo:
		info.Reason = s.reason
	}
	return info
}

// Close releases the runtime. The predictor must not be used afterwards.
func (p *Predictor) Close() error {
	if s, ok := p.state.(loaded); ok {
		return s.backend.Close()
	}
	return nil
}
