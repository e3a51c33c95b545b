//go:build tensorflow

package model

import (
	"fmt"
	"sync"

	"github.com/Brownie44l1/atk-classifier/internal/tensor"
	tf "github.com/wamuir/graft/tensorflow"
)

const (
	defaultSavedModelInput  = "serve_keras_tensor"
	defaultSavedModelOutput = "StatefulPartitionedCall"
)

type savedModelBackend struct {
	model      *tf.SavedModel
	input      tf.Output
	output     tf.Output
	numClasses int
	closeOnce  sync.Once
}

func newSavedModelBackend(path string, cfg PredictorConfig, numClasses int) (Backend, error) {
	model, err := tf.LoadSavedModel(path, []string{"serve"}, &tf.SessionOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not load saved model: %w", err)
	}

	inputName, outputName := cfg.InputName, cfg.OutputName
	if inputName == "" {
		inputName = defaultSavedModelInput
	}
	if outputName == "" {
		outputName = defaultSavedModelOutput
	}

	inputOp := model.Graph.Operation(inputName)
	if inputOp == nil {
		model.Session.Close()
		return nil, fmt.Errorf("input operation %q not found", inputName)
	}
	outputOp := model.Graph.Operation(outputName)
	if outputOp == nil {
		model.Session.Close()
		return nil, fmt.Errorf("output operation %q not found", outputName)
	}

	return &savedModelBackend{
		model:      model,
		input:      inputOp.Output(0),
		output:     outputOp.Output(0),
		numClasses: numClasses,
	}, nil
}

func (b *savedModelBackend) Name() string { return string(BackendSavedModel) }

func (b *savedModelBackend) Infer(t tensor.Tensor) ([]float64, error) {
	in, err := tf.NewTensor(t.Nested())
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}

	results, err := b.model.Session.Run(
		map[tf.Output]*tf.Tensor{b.input: in},
		[]tf.Output{b.output},
		nil,
	)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("session returned no outputs")
	}

	batch, ok := results[0].Value().([][]float32)
	if !ok || len(batch) == 0 {
		return nil, fmt.Errorf("unexpected output type %T", results[0].Value())
	}
	probs := make([]float64, len(batch[0]))
	for i, v := range batch[0] {
		probs[i] = float64(v)
	}
	return probs, nil
}

func (b *savedModelBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.model.Session.Close()
	})
	return err
}
