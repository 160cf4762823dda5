package safeset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeSet(t *testing.T) {
	s := NewSafeSet[string]()
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Size())
	assert.False(t, s.Contains("x"))
}

func TestSafeSet_Add(t *testing.T) {
	s := NewSafeSet[string]()

	t.Run("add new element reports true", func(t *testing.T) {
		assert.True(t, s.Add("a"))
		assert.True(t, s.Contains("a"))
		assert.Equal(t, 1, s.Size())
	})

	t.Run("adding duplicate reports false and keeps size", func(t *testing.T) {
		assert.False(t, s.Add("a"))
		assert.Equal(t, 1, s.Size())
	})
}

func TestSafeSet_Remove(t *testing.T) {
	s := NewSafeSet[string]()
	s.Add("a")
	s.Add("b")

	t.Run("remove present element reports true", func(t *testing.T) {
		assert.True(t, s.Remove("a"))
		assert.False(t, s.Contains("a"))
		assert.True(t, s.Contains("b"))
	})

	t.Run("remove missing reports false", func(t *testing.T) {
		assert.False(t, s.Remove("nonexistent"))
		assert.Equal(t, 1, s.Size())
	})
}

func TestSafeSet_Values(t *testing.T) {
	s := NewSafeSet[int]()
	s.Add(1)
	s.Add(2)
	s.Add(3)

	values := s.Values()
	assert.ElementsMatch(t, []int{1, 2, 3}, values)

	t.Run("snapshot can be used to mutate the set", func(t *testing.T) {
		for _, v := range values {
			s.Remove(v)
		}
		assert.Equal(t, 0, s.Size())
		assert.Len(t, values, 3)
	})
}

func TestSafeSet_Range(t *testing.T) {
	s := NewSafeSet[int]()
	s.Add(1)
	s.Add(2)

	sum := 0
	s.Range(func(v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 3, sum)

	count := 0
	s.Range(func(int) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestSafeSet_Concurrent(t *testing.T) {
	s := NewSafeSet[int]()
	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s.Add(i)
			s.Contains(i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, s.Size())
}
