package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShape(t *testing.T) {
	tn := New(4, 5)

	assert.Equal(t, [4]int{1, 4, 5, 3}, tn.Shape)
	assert.Len(t, tn.Data, 4*5*3)
	assert.Equal(t, 4, tn.Height())
	assert.Equal(t, 5, tn.Width())
	require.NoError(t, tn.Validate())
}

func TestIndexIsRowMajorNHWC(t *testing.T) {
	tn := New(2, 3)
	for i := range tn.Data {
		tn.Data[i] = float32(i)
	}

	assert.Equal(t, 0, tn.Index(0, 0, 0))
	assert.Equal(t, 5, tn.Index(0, 1, 2))
	assert.Equal(t, 9, tn.Index(1, 0, 0))
	assert.Equal(t, float32(17), tn.At(1, 2, 2))
}

func TestRange(t *testing.T) {
	tn := New(1, 2)
	copy(tn.Data, []float32{3, 1, 4, 1, 5, 9})

	lo, hi := tn.Range()
	assert.Equal(t, float32(1), lo)
	assert.Equal(t, float32(9), hi)

	lo, hi = Tensor{}.Range()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestValidateRejectsMismatch(t *testing.T) {
	tn := New(2, 2)
	tn.Data = tn.Data[:5]
	assert.Error(t, tn.Validate())

	bad := Tensor{Shape: [4]int{2, 2, 2, 3}, Data: make([]float32, 24)}
	assert.Error(t, bad.Validate())

	fourChannel := Tensor{Shape: [4]int{1, 1, 1, 4}, Data: make([]float32, 4)}
	assert.Error(t, fourChannel.Validate())
}

func TestNested(t *testing.T) {
	tn := New(2, 2)
	for i := range tn.Data {
		tn.Data[i] = float32(i)
	}

	n := tn.Nested()
	require.Len(t, n, 1)
	require.Len(t, n[0], 2)
	require.Len(t, n[0][1], 2)
	assert.Equal(t, []float32{9, 10, 11}, n[0][1][1])
	assert.Equal(t, []int64{1, 2, 2, 3}, tn.Int64Shape())
}
