package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeq_Next(t *testing.T) {
	s := NewSeq(0)
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())
}

func TestSeq_StartAt(t *testing.T) {
	s := NewSeq(41)
	assert.Equal(t, int64(42), s.Next())
}

func TestSeq_SkipLeavesGap(t *testing.T) {
	s := NewSeq(0)
	s.Next()
	s.Skip(3)
	assert.Equal(t, int64(5), s.Next())
}

func TestSeq_Reset(t *testing.T) {
	s := NewSeq(7)
	s.Next()
	s.Reset()
	assert.Equal(t, int64(1), s.Next())
}

func TestSeq_ConcurrentNextIsUnique(t *testing.T) {
	s := NewSeq(0)
	const workers, calls = 50, 200

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool, workers*calls)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, calls)
			for range calls {
				local = append(local, s.Next())
			}
			mu.Lock()
			for _, v := range local {
				seen[v] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*calls)
	assert.Equal(t, int64(workers*calls), s.Current())
}
