package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_Sequence(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Zero(t, clock.Current())

	for want := int64(1); want <= 3; want++ {
		assert.Equal(t, want, clock.Next())
	}
	assert.Equal(t, int64(3), clock.Current())
}

func TestDeterministicClock_Rewind(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Next()
	clock.Next()

	clock.Rewind()
	assert.Zero(t, clock.Current())
	assert.Equal(t, int64(1), clock.Next(), "a rewound clock replays the same seqs")
}

func TestDeterministicClock_ConcurrentCallersCoverEverySeq(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, perWorker = 20, 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				seq := clock.Next()
				mu.Lock()
				assert.False(t, seen[seq], "seq %d handed out twice", seq)
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for seq := int64(1); seq <= workers*perWorker; seq++ {
		assert.True(t, seen[seq], "seq %d never handed out", seq)
	}
}
