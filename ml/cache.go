package ml

import (
	"errors"
	"math"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEngine memoises results by feature vector. Scoring is a pure function
// of the vector and the frozen pipeline, so a hit is always identical to a
// fresh computation.
type CachedEngine struct {
	engine *Engine
	cache  *lru.Cache[string, Result]
}

func NewCachedEngine(engine *Engine, size int) (*CachedEngine, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}
	return &CachedEngine{engine: engine, cache: cache}, nil
}

func (c *CachedEngine) Predict(record Record) (Result, error) {
	vector, err := c.engine.Schema().Vector(record)
	if err != nil {
		return Result{}, err
	}
	key := vectorKey(vector)
	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}
	result := c.engine.Score(vector)
	c.cache.Add(key, result)
	return result, nil
}

func (c *CachedEngine) Len() int {
	return c.cache.Len()
}

func vectorKey(vector []float64) string {
	var b strings.Builder
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
	}
	return b.String()
}

func (c *CachedEngine) Info() ModelInfo {
	return c.engine.Info()
}
