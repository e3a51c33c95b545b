package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Brownie44l1/atk-classifier/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var atkClasses = []string{"eraser", "kertas", "pensil"}

type fakeBackend struct {
	probs  []float64
	err    error
	calls  int
	closed bool
	mu     sync.Mutex
}

func (f *fakeBackend) Infer(tensor.Tensor) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.probs, f.err
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

// fixedSampler always returns the same vector.
type fixedSampler []float64

func (s fixedSampler) Sample(int) []float64 { return s }

func writeArtifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o600))
	return path
}

func loadedPredictor(t *testing.T, backend Backend, classNames []string, threshold float64) *Predictor {
	t.Helper()
	p := NewPredictor(PredictorConfig{
		ModelPath:              writeArtifact(t, "best_model.onnx"),
		ClassNames:             classNames,
		LowConfidenceThreshold: threshold,
	}, WithBackendLoader(func(string, PredictorConfig, int) (Backend, error) {
		return backend, nil
	}))
	require.False(t, p.IsDemoMode())
	return p
}

func TestDemoModeWithoutModelPath(t *testing.T) {
	p := NewPredictor(PredictorConfig{ClassNames: atkClasses})

	assert.True(t, p.IsDemoMode())
	info := p.Info()
	assert.Equal(t, "demo", info.Mode)
	assert.False(t, info.ModelLoaded)
	assert.NotEmpty(t, info.Reason)
}

func TestDemoModeWhenArtifactMissing(t *testing.T) {
	called := false
	p := NewPredictor(PredictorConfig{
		ModelPath:  filepath.Join(t.TempDir(), "best_model.onnx"),
		ClassNames: atkClasses,
	}, WithBackendLoader(func(string, PredictorConfig, int) (Backend, error) {
		called = true
		return &fakeBackend{}, nil
	}))

	assert.True(t, p.IsDemoMode())
	assert.False(t, called)
}

func TestDemoModeWhenDeserializationFails(t *testing.T) {
	p := NewPredictor(PredictorConfig{
		ModelPath:  writeArtifact(t, "best_model.onnx"),
		ClassNames: atkClasses,
	}, WithBackendLoader(func(string, PredictorConfig, int) (Backend, error) {
		return nil, errors.New("corrupt protobuf")
	}))

	require.True(t, p.IsDemoMode())
	res, err := p.Predict(tensor.New(2, 2), 3)
	require.NoError(t, err)
	assert.True(t, res.IsDemo)
	assert.Contains(t, p.Info().Reason, "corrupt protobuf")
}

func TestDemoModeForUnsupportedArtifact(t *testing.T) {
	p := NewPredictor(PredictorConfig{
		ModelPath:  writeArtifact(t, "best_model.keras"),
		ClassNames: atkClasses,
	})

	assert.True(t, p.IsDemoMode())
}

func TestEmptySavedModelDirFallsBackToDemo(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, BackendSavedModel, detectBackend(dir))

	p := NewPredictor(PredictorConfig{ModelPath: dir, ClassNames: atkClasses})

	assert.True(t, p.IsDemoMode())
}

func TestDetectBackend(t *testing.T) {
	assert.Equal(t, BackendONNX, detectBackend("models/best_model.ONNX"))
	assert.Equal(t, BackendKind(""), detectBackend("models/best_model.h5"))
}

func TestDefaults(t *testing.T) {
	p := NewPredictor(PredictorConfig{})

	assert.Equal(t, DefaultClassNames, p.ClassNames())
	assert.Equal(t, 0.5, p.LowConfidenceThreshold())

	res, err := p.Predict(tensor.New(1, 1), 0)
	require.NoError(t, err)
	assert.Len(t, res.TopPredictions, DefaultTopK)
}

func TestDemoTopKLargerThanClassCount(t *testing.T) {
	p := NewPredictor(PredictorConfig{ClassNames: atkClasses})

	res, err := p.Predict(tensor.New(300, 300), 10)

	require.NoError(t, err)
	assert.Len(t, res.TopPredictions, 3)
	assert.True(t, res.IsDemo)
}

func TestTopKLengthAndOrdering(t *testing.T) {
	p := NewPredictor(PredictorConfig{}, WithSampler(NewDirichletSampler(rand.NewPCG(7, 11))))

	for n := 1; n <= 20; n++ {
		names := make([]string, n)
		for i := range names {
			names[i] = string(rune('a' + i))
		}
		pn := NewPredictor(PredictorConfig{ClassNames: names}, WithSampler(p.sampler))

		for k := 1; k <= 20; k++ {
			res, err := pn.Predict(tensor.New(1, 1), k)
			require.NoError(t, err)
			require.Len(t, res.TopPredictions, min(k, n), "k=%d n=%d", k, n)

			for i := 1; i < len(res.TopPredictions); i++ {
				assert.GreaterOrEqual(t, res.TopPredictions[i-1].Confidence, res.TopPredictions[i].Confidence)
			}
			assert.Equal(t, res.TopPredictions[0].Class, res.PredictedClass)
			assert.Equal(t, res.TopPredictions[0].Confidence, res.Confidence)
		}
	}
}

func TestDemoDistributionIsOnSimplex(t *testing.T) {
	p := NewPredictor(PredictorConfig{ClassNames: atkClasses}, WithSampler(NewDirichletSampler(rand.NewPCG(1, 2))))

	var firsts []float64
	for i := 0; i < 50; i++ {
		res, err := p.Predict(tensor.New(1, 1), 3)
		require.NoError(t, err)

		sum := 0.0
		for _, tp := range res.TopPredictions {
			assert.GreaterOrEqual(t, tp.Confidence, 0.0)
			assert.LessOrEqual(t, tp.Confidence, 1.0)
			assert.InDelta(t, tp.Confidence*100, tp.Percentage, 1e-9)
			sum += tp.Confidence
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		firsts = append(firsts, res.Confidence)
	}

	distinct := map[float64]bool{}
	for _, f := range firsts {
		distinct[f] = true
	}
	assert.Greater(t, len(distinct), 1, "demo draws should vary")
	for _, f := range firsts {
		assert.Greater(t, f, 1.0/3.0-1e-12, "best class of a 3-way split is at least a third")
	}
}

func TestDirichletSamplerSeededIsReproducible(t *testing.T) {
	a := NewDirichletSampler(rand.NewPCG(42, 42)).Sample(5)
	b := NewDirichletSampler(rand.NewPCG(42, 42)).Sample(5)

	assert.Equal(t, a, b)
	assert.Len(t, a, 5)
	assert.NotEqual(t, []float64{0.2, 0.2, 0.2, 0.2, 0.2}, a)
}

func TestDirichletSamplerSingleClass(t *testing.T) {
	s := NewDirichletSampler(rand.NewPCG(3, 4)).Sample(1)

	require.Len(t, s, 1)
	assert.InDelta(t, 1.0, s[0], 1e-12)
}

func TestLowConfidenceIsStrict(t *testing.T) {
	tests := []struct {
		name      string
		best      float64
		threshold float64
		want      bool
	}{
		{"equal", 0.5, 0.5, false},
		{"below", 0.49, 0.5, true},
		{"above", 0.51, 0.5, false},
		{"high threshold", 0.7, 0.9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rest := (1 - tt.best) / 2
			p := NewPredictor(PredictorConfig{
				ClassNames:             atkClasses,
				LowConfidenceThreshold: tt.threshold,
			}, WithSampler(fixedSampler{rest, tt.best, rest}))

			res, err := p.Predict(tensor.New(1, 1), 3)
			require.NoError(t, err)
			assert.Equal(t, "kertas", res.PredictedClass)
			assert.Equal(t, tt.want, res.IsLowConfidence)
		})
	}
}

func TestLowConfidenceMatchesThresholdSweep(t *testing.T) {
	backend := &fakeBackend{probs: []float64{0.1, 0.62, 0.28}}
	for th := 0.05; th < 1; th += 0.05 {
		p := loadedPredictor(t, backend, atkClasses, th)
		res, err := p.Predict(tensor.New(1, 1), 1)
		require.NoError(t, err)
		assert.Equal(t, res.Confidence < th, res.IsLowConfidence, "threshold %v", th)
	}
}

func TestTiesKeepIndexOrder(t *testing.T) {
	p := NewPredictor(PredictorConfig{ClassNames: []string{"a", "b", "c", "d"}},
		WithSampler(fixedSampler{0.2, 0.3, 0.3, 0.2}))

	res, err := p.Predict(tensor.New(1, 1), 4)
	require.NoError(t, err)

	var order []string
	for _, tp := range res.TopPredictions {
		order = append(order, tp.Class)
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, order)
}

func TestLoadedPredict(t *testing.T) {
	backend := &fakeBackend{probs: []float64{0.05, 0.15, 0.8}}
	p := loadedPredictor(t, backend, atkClasses, 0.5)

	res, err := p.Predict(tensor.New(300, 300), 2)
	require.NoError(t, err)

	assert.False(t, res.IsDemo)
	assert.False(t, res.IsLowConfidence)
	assert.Equal(t, "pensil", res.PredictedClass)
	assert.InDelta(t, 80.0, res.Percentage, 1e-9)
	assert.Equal(t, []TopPrediction{
		{Class: "pensil", Confidence: 0.8, Percentage: 0.8 * 100},
		{Class: "kertas", Confidence: 0.15, Percentage: 0.15 * 100},
	}, res.TopPredictions)
	assert.Equal(t, 1, backend.calls)

	info := p.Info()
	assert.Equal(t, "production", info.Mode)
	assert.True(t, info.ModelLoaded)
	assert.Equal(t, "fake", info.Backend)

	require.NoError(t, p.Close())
	assert.True(t, backend.closed)
}

func TestLoadedInferenceErrorIsSurfaced(t *testing.T) {
	p := loadedPredictor(t, &fakeBackend{err: errors.New("bad input shape")}, atkClasses, 0.5)

	_, err := p.Predict(tensor.New(1, 1), 3)

	var ierr *InferenceError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "fake", ierr.Backend)
	assert.False(t, p.IsDemoMode(), "a failed call must not demote the predictor")
}

func TestLoadedOutputSizeMismatch(t *testing.T) {
	p := loadedPredictor(t, &fakeBackend{probs: []float64{0.5, 0.5}}, atkClasses, 0.5)

	_, err := p.Predict(tensor.New(1, 1), 3)

	assert.ErrorIs(t, err, ErrOutputSize)
}

func TestSidecarOverridesClassNames(t *testing.T) {
	modelPath := writeArtifact(t, "best_model.onnx")
	sidecar := `{"class_names": ["pulpen", "penggaris", "stapler", "gunting"], "image_size": 300}`
	require.NoError(t, os.WriteFile(MetadataPath(modelPath), []byte(sidecar), 0o600))

	var gotClasses int
	p := NewPredictor(PredictorConfig{ModelPath: modelPath, ClassNames: atkClasses},
		WithBackendLoader(func(_ string, _ PredictorConfig, n int) (Backend, error) {
			gotClasses = n
			return &fakeBackend{probs: []float64{0.1, 0.2, 0.6, 0.1}}, nil
		}))

	assert.Equal(t, 4, gotClasses)
	assert.Equal(t, []string{"pulpen", "penggaris", "stapler", "gunting"}, p.ClassNames())

	res, err := p.Predict(tensor.New(1, 1), 10)
	require.NoError(t, err)
	assert.Equal(t, "stapler", res.PredictedClass)
	assert.Len(t, res.TopPredictions, 4)
	require.NotNil(t, p.Info().Metadata)
	assert.Equal(t, 300, p.Info().Metadata.ImageSize)
}

func TestSidecarIgnoredWhenLoadFails(t *testing.T) {
	modelPath := writeArtifact(t, "best_model.onnx")
	require.NoError(t, os.WriteFile(MetadataPath(modelPath), []byte(`{"class_names": ["x"]}`), 0o600))

	p := NewPredictor(PredictorConfig{ModelPath: modelPath, ClassNames: atkClasses},
		WithBackendLoader(func(string, PredictorConfig, int) (Backend, error) {
			return nil, ErrRuntimeUnavailable
		}))

	assert.True(t, p.IsDemoMode())
	assert.Equal(t, atkClasses, p.ClassNames())
}

func TestMalformedSidecarDegradesToDemo(t *testing.T) {
	modelPath := writeArtifact(t, "best_model.onnx")
	require.NoError(t, os.WriteFile(MetadataPath(modelPath), []byte(`{"class_names": `), 0o600))

	p := NewPredictor(PredictorConfig{ModelPath: modelPath, ClassNames: atkClasses},
		WithBackendLoader(func(string, PredictorConfig, int) (Backend, error) {
			return &fakeBackend{}, nil
		}))

	assert.True(t, p.IsDemoMode())
}

func TestClassNamesAreCopied(t *testing.T) {
	names := []string{"eraser", "kertas", "pensil"}
	p := NewPredictor(PredictorConfig{ClassNames: names})

	names[0] = "mutated"
	got := p.ClassNames()
	got[1] = "mutated"

	assert.Equal(t, atkClasses, p.ClassNames())
}

func TestConcurrentPredict(t *testing.T) {
	demoP := NewPredictor(PredictorConfig{ClassNames: atkClasses})
	loadedP := loadedPredictor(t, &fakeBackend{probs: []float64{0.2, 0.3, 0.5}}, atkClasses, 0.5)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for _, p := range []*Predictor{demoP, loadedP} {
					res, err := p.Predict(tensor.New(1, 1), 3)
					if err != nil || len(res.TopPredictions) != 3 || math.IsNaN(res.Confidence) {
						t.Errorf("unexpected result %+v, %v", res, err)
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestMetadataPath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "best_model.json"), MetadataPath(filepath.Join("models", "best_model.onnx")))
	assert.Equal(t, filepath.Join("models", "saved.json"), MetadataPath(filepath.Join("models", "saved")+string(filepath.Separator)))
}

func TestResultClone(t *testing.T) {
	r := PredictionResult{TopPredictions: []TopPrediction{{Class: "eraser"}}}

	c := r.Clone()
	c.TopPredictions[0].Class = "kertas"

	assert.Equal(t, "eraser", r.TopPredictions[0].Class)
}
