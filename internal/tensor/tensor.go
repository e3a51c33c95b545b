// Package tensor holds the model input type shared by the preprocessor and
// the predictor.
package tensor

import "fmt"

// Channels is the channel count of every tensor fed to the model.
const Channels = 3

// Tensor is a single-item NHWC float32 batch with shape [1, H, W, 3].
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// New allocates a zeroed [1, height, width, 3] tensor.
func New(height, width int) Tensor {
	return Tensor{
		Shape: [4]int{1, height, width, Channels},
		Data:  make([]float32, height*width*Channels),
	}
}

func (t Tensor) Height() int { return t.Shape[1] }

func (t Tensor) Width() int { return t.Shape[2] }

// Index returns the offset of (y, x, c) in Data.
func (t Tensor) Index(y, x, c int) int {
	return (y*t.Shape[2]+x)*Channels + c
}

func (t Tensor) At(y, x, c int) float32 {
	return t.Data[t.Index(y, x, c)]
}

// Int64Shape returns the shape in the form runtimes expect.
func (t Tensor) Int64Shape() []int64 {
	return []int64{int64(t.Shape[0]), int64(t.Shape[1]), int64(t.Shape[2]), int64(t.Shape[3])}
}

// Range returns the smallest and largest element.
func (t Tensor) Range() (lo, hi float32) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	lo, hi = t.Data[0], t.Data[0]
	for _, v := range t.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Validate checks that the shape is a single-item 3-channel batch and that
// Data matches it.
func (t Tensor) Validate() error {
	if t.Shape[0] != 1 || t.Shape[3] != Channels || t.Shape[1] <= 0 || t.Shape[2] <= 0 {
		return fmt.Errorf("tensor shape %v, want [1 H W %d]", t.Shape, Channels)
	}
	if want := t.Shape[1] * t.Shape[2] * Channels; len(t.Data) != want {
		return fmt.Errorf("tensor holds %d values, shape %v needs %d", len(t.Data), t.Shape, want)
	}
	return nil
}

// Nested copies the data into a [1][H][W][3] slice, the layout TensorFlow
// bindings accept.
func (t Tensor) Nested() [][][][]float32 {
	h, w := t.Height(), t.Width()
	rows := make([][][]float32, h)
	for y := 0; y < h; y++ {
		row := make([][]float32, w)
		for x := 0; x < w; x++ {
			i := t.Index(y, x, 0)
			row[x] = t.Data[i : i+Channels : i+Channels]
		}
		rows[y] = row
	}
	return [][][][]float32{rows}
}
