package store_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/store"
)

func TestGetSetDelete(t *testing.T) {
	s := store.New()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("count", store.Of(int64(3)))
	v, ok := s.Get("count")
	require.True(t, ok)
	n, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	s.Delete("count")
	_, ok = s.Get("count")
	assert.False(t, ok)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := store.New()
	s.Set("a", store.Of("one"))

	snap := s.Snapshot()
	s.Set("a", store.Of("two"))
	s.Set("b", store.Of("three"))

	v, ok := snap["a"].AsString()
	require.True(t, ok)
	assert.Equal(t, "one", v, "snapshot must not observe later mutations")
	_, ok = snap["b"]
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	s := store.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set(keyFor(i), store.Of(int64(i)))
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Get(keyFor(i))
		}()
	}
	wg.Wait()
	assert.Len(t, s.Keys(), 50)
}

func keyFor(i int) string {
	return fmt.Sprintf("key-%d", i)
}

func TestValueAsFloatWidensInt(t *testing.T) {
	v := store.Of(int64(7))
	f, ok := v.AsFloat()
	require.True(t, ok)
	assert.Equal(t, float64(7), f)
}

func TestValueOfPanicsOnUnsupportedType(t *testing.T) {
	assert.Panics(t, func() {
		store.Of(struct{}{})
	})
}

func TestNullValueIsNull(t *testing.T) {
	assert.True(t, store.Null.IsNull())
	assert.False(t, store.Of("x").IsNull())
}
