package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireRelease(t *testing.T) {
	l := New(50 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, l.Acquire(ctx, "r1"))

	// Second acquire on the same resource times out.
	err := l.Acquire(ctx, "r1")
	assert.ErrorIs(t, err, ErrBusy)

	l.Release("r1")
	assert.NoError(t, l.Acquire(ctx, "r1"))
	l.Release("r1")
}

func TestDistinctResourcesParallel(t *testing.T) {
	l := New(50 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, l.Acquire(ctx, "r1"))
	assert.NoError(t, l.Acquire(ctx, "r2"))
	l.Release("r1")
	l.Release("r2")
}

func TestTryAcquire(t *testing.T) {
	l := New(time.Second)

	assert.True(t, l.TryAcquire("r1"))
	assert.False(t, l.TryAcquire("r1"))
	l.Release("r1")
	assert.True(t, l.TryAcquire("r1"))
	l.Release("r1")
}

func TestContextCancellation(t *testing.T) {
	l := New(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	assert.NoError(t, l.Acquire(ctx, "r1"))
	defer l.Release("r1")

	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, "r1") }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("acquire did not honor context cancellation")
	}
}

func TestContention(t *testing.T) {
	l := New(2 * time.Second)
	ctx := context.Background()

	var held int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx, "shared"); err != nil {
				return
			}
			mu.Lock()
			held++
			assert.Equal(t, 1, held)
			held--
			mu.Unlock()
			l.Release("shared")
		}()
	}
	wg.Wait()
}
