package model

import (
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distmv"
)

// Sampler produces synthetic probability vectors for demo mode.
type Sampler interface {
	// Sample returns n non-negative values summing to 1.
	Sample(n int) []float64
}

// DirichletSampler draws from a symmetric Dirichlet distribution with all
// concentrations equal to 1, so every point of the simplex is equally likely.
type DirichletSampler struct {
	mu  sync.Mutex
	src rand.Source
}

// NewDirichletSampler uses src for randomness, or a randomly seeded source
// when src is nil.
func NewDirichletSampler(src rand.Source) *DirichletSampler {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &DirichletSampler{src: src}
}

func (s *DirichletSampler) Sample(n int) []float64 {
	alpha := make([]float64, n)
	for i := range alpha {
		alpha[i] = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return distmv.NewDirichlet(alpha, s.src).Rand(make([]float64, n))
}
