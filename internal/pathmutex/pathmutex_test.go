package pathmutex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAtomicRunsFn(t *testing.T) {
	c := New()
	ran := false
	err := c.Atomic(context.Background(), "a/b.txt", func() error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran)
}

func TestAtomicSerializesSameKey(t *testing.T) {
	c := New()
	var mu sync.Mutex
	var order []int
	var active, maxActive int
	var wg sync.WaitGroup

	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			c.Atomic(context.Background(), "shared", func() error {
				mu.Lock()
				order = append(order, i)
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Len(t, order, n, "every goroutine's fn must run exactly once")
	assert.Equal(t, 1, maxActive, "no two same-key fns may run at the same time")
}

func TestAtomicDifferentKeysRunConcurrently(t *testing.T) {
	c := New()
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]bool, 2)

	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			<-start
			c.Atomic(context.Background(), keyFor(i), func() error {
				results[i] = true
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()

	assert.True(t, results[0])
	assert.True(t, results[1])
}

func keyFor(i int) string {
	if i == 0 {
		return "one"
	}
	return "two"
}

func TestAtomicCancelledContextAbortsWait(t *testing.T) {
	c := New()
	held := make(chan struct{})
	release := make(chan struct{})

	go c.Atomic(context.Background(), "k", func() error {
		close(held)
		<-release
		return nil
	})
	<-held

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Atomic(ctx, "k", func() error {
		t.Fatal("fn must not run once context is already cancelled")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestAtomicMultiLocksInSortedOrderWithoutDeadlock(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.AtomicMulti(context.Background(), []string{"b", "a"}, func() error {
			time.Sleep(time.Millisecond)
			return nil
		})
	}()
	go func() {
		defer wg.Done()
		c.AtomicMulti(context.Background(), []string{"a", "b"}, func() error {
			time.Sleep(time.Millisecond)
			return nil
		})
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AtomicMulti deadlocked on overlapping key sets")
	}
}

func TestClearDropsBookkeeping(t *testing.T) {
	c := New()
	c.Atomic(context.Background(), "k", func() error { return nil })
	c.Clear()
	assert.Empty(t, c.locks)
}
