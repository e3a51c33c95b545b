// Package cache memoizes predictions for identical uploads.
package cache

import (
	"fmt"

	"github.com/Brownie44l1/atk-classifier/internal/model"
	"github.com/Brownie44l1/atk-classifier/internal/preprocess"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Classifier is the part of the pipeline the cache wraps.
type Classifier interface {
	Predict(src preprocess.Source, topK int) (model.PredictionResult, error)
	IsDemoMode() bool
}

type key struct {
	sum  uint64
	topK int
}

// Cache is a read-through LRU keyed by the hash of the image bytes. Only
// byte sources from a loaded model are cached; demo results are meant to vary
// between calls.
type Cache struct {
	next    Classifier
	entries *lru.Cache[key, model.PredictionResult]
}

// New wraps next. A size <= 0 disables caching.
func New(next Classifier, size int) (*Cache, error) {
	c := &Cache{next: next}
	if size <= 0 {
		return c, nil
	}
	entries, err := lru.New[key, model.PredictionResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) Predict(src preprocess.Source, topK int) (model.PredictionResult, error) {
	data, ok := src.Bytes()
	if !ok || c.entries == nil || c.next.IsDemoMode() {
		return c.next.Predict(src, topK)
	}

	k := key{sum: xxhash.Sum64(data), topK: topK}
	if res, hit := c.entries.Get(k); hit {
		log.Debug().Uint64("hash", k.sum).Msg("prediction cache hit")
		return res.Clone(), nil
	}

	res, err := c.next.Predict(src, topK)
	if err != nil {
		return res, err
	}
	c.entries.Add(k, res.Clone())
	return res, nil
}

func (c *Cache) IsDemoMode() bool {
	return c.next.IsDemoMode()
}

// Len reports the number of cached results.
func (c *Cache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
