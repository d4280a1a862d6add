package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTimesOutWhileHeld(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	require.True(t, lm.Lock(ctx, "account:user:1", time.Second))
	start := time.Now()
	assert.False(t, lm.Lock(ctx, "account:user:1", 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// other rows are independent
	assert.True(t, lm.Lock(ctx, "account:user:2", 30*time.Millisecond))
}

func TestLockHonoursContext(t *testing.T) {
	lm := NewLockManager()
	require.True(t, lm.Lock(context.Background(), "position:1", time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, lm.Lock(ctx, "position:1", time.Second))
}

func TestUnlockHandsOverToWaiter(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()
	require.True(t, lm.Lock(ctx, "opportunity:1", time.Second))

	acquired := make(chan bool)
	go func() { acquired <- lm.Lock(ctx, "opportunity:1", time.Second) }()

	time.Sleep(20 * time.Millisecond)
	lm.Unlock("opportunity:1")
	assert.True(t, <-acquired)

	// unlocking a free row is a no-op
	lm.Unlock("opportunity:1")
	lm.Unlock("opportunity:1")
	assert.True(t, lm.Lock(ctx, "opportunity:1", time.Second))
}

func TestLockIsMutuallyExclusive(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !lm.Lock(ctx, "account:user:1", 5*time.Second) {
				t.Error("lock timed out")
				return
			}
			counter++
			lm.Unlock("account:user:1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
