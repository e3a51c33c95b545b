// Package pipeline wires preprocessing, validation and prediction behind a
// single Predict call.
package pipeline

import (
	"fmt"

	"github.com/Brownie44l1/atk-classifier/internal/model"
	"github.com/Brownie44l1/atk-classifier/internal/preprocess"
)

type Config struct {
	ModelPath         string
	Backend           model.BackendKind
	SharedLibraryPath string
	InputName         string
	OutputName        string
	ClassNames        []string

	Width  int
	Height int
	Filter string
	// Normalize scales pixels to [0, 1]. Leave it off when the model has its
	// own rescaling layer.
	Normalize bool

	LowConfidenceThreshold float64
	TopK                   int

	MaxUploadBytes    int64
	AllowedExtensions []string
}

// DefaultConfig matches the trained stationery CNN, which rescales its
// 0-255 input internally.
func DefaultConfig() Config {
	return Config{
		ModelPath:              "models/best_model.onnx",
		Backend:                model.BackendAuto,
		ClassNames:             append([]string(nil), model.DefaultClassNames...),
		Width:                  preprocess.DefaultWidth,
		Height:                 preprocess.DefaultHeight,
		Filter:                 preprocess.DefaultFilter,
		Normalize:              false,
		LowConfidenceThreshold: model.DefaultLowConfidenceThreshold,
		TopK:                   model.DefaultTopK,
		MaxUploadBytes:         5 * 1024 * 1024,
		AllowedExtensions:      []string{"jpg", "jpeg", "png", "bmp"},
	}
}

type Pipeline struct {
	cfg          Config
	preprocessor *preprocess.Preprocessor
	predictor    *model.Predictor
	validator    preprocess.Validator
	ownsModel    bool
}

type Option func(*options)

type options struct {
	predictor     *model.Predictor
	predictorOpts []model.PredictorOption
}

// WithPredictor shares an already constructed predictor instead of loading
// the model again.
func WithPredictor(p *model.Predictor) Option {
	return func(o *options) { o.predictor = p }
}

// WithPredictorOptions is passed through to model.NewPredictor.
func WithPredictorOptions(opts ...model.PredictorOption) Option {
	return func(o *options) { o.predictorOpts = append(o.predictorOpts, opts...) }
}

// New builds the pipeline. Only invalid preprocessing settings fail; a
// missing or broken model yields a pipeline in demo mode.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = model.DefaultTopK
	}

	ppOpts := []preprocess.Option{preprocess.WithNormalize(cfg.Normalize)}
	if cfg.Width != 0 || cfg.Height != 0 {
		ppOpts = append(ppOpts, preprocess.WithTargetSize(cfg.Width, cfg.Height))
	}
	if cfg.Filter != "" {
		ppOpts = append(ppOpts, preprocess.WithFilter(cfg.Filter))
	}
	pp, err := preprocess.New(ppOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid preprocessing config: %w", err)
	}

	predictor, owns := o.predictor, false
	if predictor == nil {
		owns = true
		predictor = model.NewPredictor(model.PredictorConfig{
			ModelPath:              cfg.ModelPath,
			ClassNames:             cfg.ClassNames,
			LowConfidenceThreshold: cfg.LowConfidenceThreshold,
			Backend:                cfg.Backend,
			SharedLibraryPath:      cfg.SharedLibraryPath,
			InputName:              cfg.InputName,
			OutputName:             cfg.OutputName,
		}, o.predictorOpts...)
	}

	return &Pipeline{
		cfg:          cfg,
		preprocessor: pp,
		predictor:    predictor,
		ownsModel:    owns,
	}, nil
}

// Predict classifies src. topK <= 0 uses the configured default.
func (p *Pipeline) Predict(src preprocess.Source, topK int) (model.PredictionResult, error) {
	if topK <= 0 {
		topK = p.cfg.TopK
	}
	t, err := p.preprocessor.Preprocess(src)
	if err != nil {
		return model.PredictionResult{}, err
	}
	return p.predictor.Predict(t, topK)
}

func (p *Pipeline) IsDemoMode() bool {
	return p.predictor.IsDemoMode()
}

// ImageInfo decodes src for display metadata only; nothing is resized.
func (p *Pipeline) ImageInfo(src preprocess.Source) (preprocess.ImageInfo, error) {
	decoded, err := p.preprocessor.Load(src)
	if err != nil {
		return preprocess.ImageInfo{}, err
	}
	return p.validator.ImageInfo(decoded.Image, decoded.Format), nil
}

// ValidateUpload checks a file name and size against the configured limits.
func (p *Pipeline) ValidateUpload(filename string, size int64) error {
	return p.validator.ValidateUpload(filename, size, p.cfg.AllowedExtensions, p.cfg.MaxUploadBytes)
}

func (p *Pipeline) ModelInfo() model.ModelInfo {
	return p.predictor.Info()
}

func (p *Pipeline) DefaultTopK() int { return p.cfg.TopK }

// Close releases the model unless it was shared through WithPredictor.
func (p *Pipeline) Close() error {
	if !p.ownsModel {
		return nil
	}
	return p.predictor.Close()
}
