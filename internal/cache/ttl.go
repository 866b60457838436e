package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// TTLCache is a ristretto-backed cache where every entry costs 1 and
// expires after ttl.
type TTLCache[T any] struct {
	c   *ristretto.Cache[string, T]
	ttl time.Duration
}

var _ Cache[int] = (*TTLCache[int])(nil)

func NewTTLCache[T any](maxItems int64, ttl time.Duration) (*TTLCache[T], error) {
	if maxItems <= 0 {
		maxItems = 256
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, T]{
		NumCounters:        maxItems * 10, // number of keys to track frequency of
		MaxCost:            maxItems,
		BufferItems:        64, // number of keys per Get buffer
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &TTLCache[T]{c: c, ttl: ttl}, nil
}

func (t *TTLCache[T]) Get(key string) (T, bool) {
	return t.c.Get(key)
}

// Set waits for the write buffer so a following Get observes the entry.
func (t *TTLCache[T]) Set(key string, data T) {
	t.c.SetWithTTL(key, data, 1, t.ttl)
	t.c.Wait()
}

func (t *TTLCache[T]) Delete(key string) {
	t.c.Del(key)
}

func (t *TTLCache[T]) Clear() {
	t.c.Clear()
}

func (t *TTLCache[T]) Close() {
	t.c.Close()
}
