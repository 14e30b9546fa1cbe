package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Memo serves JSON-encoded results from a Cache, computing and storing them on
// a miss. Two concurrent misses on one key may both compute; the last write wins.
type Memo struct {
	cache Cache
	log   logrus.FieldLogger
}

// NewMemo creates a memoizer over cache.
func NewMemo(cache Cache, logger logrus.FieldLogger) *Memo {
	return &Memo{cache: cache, log: logger}
}

// Do returns the cached JSON for key, or runs compute and caches its encoded
// result. Cache backend failures are logged and the result is computed directly.
func (m *Memo) Do(ctx context.Context, key string, compute func(context.Context) (interface{}, error)) ([]byte, error) {
	if b, ok, err := m.cache.Get(ctx, key); err != nil {
		m.log.WithError(err).WithField("key", key).Warn("stats cache read failed")
	} else if ok {
		return b, nil
	}

	v, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cached value: %w", err)
	}
	if err := m.cache.Set(ctx, key, b); err != nil {
		m.log.WithError(err).WithField("key", key).Warn("stats cache write failed")
	}
	return b, nil
}
