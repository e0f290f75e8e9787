package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		r := New[int]()
		r.GetOrAdd("a", func() int { return 1 })

		v, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)

		_, ok = r.Get("missing")
		assert.False(t, ok)
	})

	t.Run("get or add creates once", func(t *testing.T) {
		r := New[string]()
		v, loaded := r.GetOrAdd("top", func() string { return "first" })
		assert.False(t, loaded)
		assert.Equal(t, "first", v)

		v, loaded = r.GetOrAdd("top", func() string { return "second" })
		assert.True(t, loaded)
		assert.Equal(t, "first", v)
	})

	t.Run("delete", func(t *testing.T) {
		r := New[int]()
		r.GetOrAdd("a", func() int { return 1 })
		r.Del("a")
		_, ok := r.Get("a")
		assert.False(t, ok)
		assert.Empty(t, r.Names())

		v, loaded := r.GetOrAdd("a", func() int { return 2 })
		assert.False(t, loaded)
		assert.Equal(t, 2, v)
	})

	t.Run("names", func(t *testing.T) {
		r := New[int]()
		r.GetOrAdd("a", func() int { return 1 })
		r.GetOrAdd("b", func() int { return 2 })
		assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
	})

	t.Run("concurrent get or add agrees on one value", func(t *testing.T) {
		r := New[*int64]()
		var created atomic.Int64

		const workers = 32
		results := make([]*int64, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := range workers {
			go func(i int) {
				defer wg.Done()
				v, _ := r.GetOrAdd("top", func() *int64 {
					n := created.Add(1)
					return &n
				})
				results[i] = v
			}(i)
		}
		wg.Wait()

		for _, v := range results {
			assert.Same(t, results[0], v)
		}
		assert.Equal(t, int64(1), created.Load())
	})
}
