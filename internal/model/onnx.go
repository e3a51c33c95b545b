package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Brownie44l1/atk-classifier/internal/tensor"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// The onnxruntime environment is process wide; every onnx backend holds a
// reference to it.
var environment struct {
	sync.Mutex
	refs int
}

func acquireEnvironment(sharedLibraryPath string) error {
	environment.Lock()
	defer environment.Unlock()

	if environment.refs == 0 && !ort.IsInitialized() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	environment.refs++
	return nil
}

func releaseEnvironment() {
	environment.Lock()
	defer environment.Unlock()

	environment.refs--
	if environment.refs > 0 {
		return
	}
	environment.refs = 0
	if err := ort.DestroyEnvironment(); err != nil {
		log.Warn().Err(err).Msg("failed to destroy ONNX environment")
	}
}

// onnxBackend allocates input and output tensors per call, so the session
// itself is only read and concurrent Infer calls are safe.
type onnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	numClasses int
	closeOnce  sync.Once
}

func newONNXBackend(path string, cfg PredictorConfig, numClasses int) (Backend, error) {
	if err := acquireEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}

	inputName, outputName, err := ioNames(path, cfg)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputName}, []string{outputName}, nil)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxBackend{
		session:    session,
		inputName:  inputName,
		outputName: outputName,
		numClasses: numClasses,
	}, nil
}

func ioNames(path string, cfg PredictorConfig) (string, string, error) {
	if cfg.InputName != "" && cfg.OutputName != "" {
		return cfg.InputName, cfg.OutputName, nil
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read model inputs/outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return "", "", errors.New("model declares no inputs or outputs")
	}

	inputName, outputName := cfg.InputName, cfg.OutputName
	if inputName == "" {
		inputName = inputs[0].Name
	}
	if outputName == "" {
		outputName = outputs[0].Name
	}
	return inputName, outputName, nil
}

func (b *onnxBackend) Name() string { return string(BackendONNX) }

func (b *onnxBackend) Infer(t tensor.Tensor) ([]float64, error) {
	input, err := ort.NewTensor(ort.NewShape(t.Int64Shape()...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(b.numClasses)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := b.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, err
	}

	outputData := output.GetData()
	probs := make([]float64, len(outputData))
	for i, v := range outputData {
		probs[i] = float64(v)
	}
	return probs, nil
}

func (b *onnxBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.session != nil {
			err = b.session.Destroy()
		}
		releaseEnvironment()
	})
	return err
}
