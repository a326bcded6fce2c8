package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatLock_MutualExclusion(t *testing.T) {
	cl := NewChatLock()

	const workers = 16
	const iterations = 200

	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				_ = cl.WithLock(42, func() error {
					counter++
					return nil
				})
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, workers*iterations, counter)
}

func TestChatLock_IndependentChats(t *testing.T) {
	cl := NewChatLock()

	cl.Lock(1)
	defer cl.Unlock(1)

	// A different chat's lock is not held.
	assert.True(t, cl.TryLock(2))
	cl.Unlock(2)

	// The same chat's lock is.
	assert.False(t, cl.TryLock(1))
}
