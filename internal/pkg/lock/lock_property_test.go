package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Concurrent read-modify-write sections on the same key produce the result
// of some sequential execution.
func TestConcurrentSectionsSerializeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.IntRange(0, 1000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 30).Draw(t, "numOps")
		key := rapid.StringMatching(`user-[a-z0-9]{1,8}`).Draw(t, "key")

		deltas := make([]int, numOps)
		expected := initial
		for i := range deltas {
			deltas[i] = rapid.IntRange(-50, 50).Draw(t, "delta")
			expected += deltas[i]
		}

		kl := NewKeyedLock()
		total := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, d := range deltas {
			go func(d int) {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					current := total
					total = current + d
					return nil
				})
			}(d)
		}
		wg.Wait()

		if total != expected {
			t.Fatalf("expected %d, got %d", expected, total)
		}
		if kl.Len() != 0 {
			t.Fatalf("expected idle keys to be dropped, %d remain", kl.Len())
		}
	})
}

// Locks for different keys never share state.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(5, 20).Draw(t, "opsPerKey")

		kl := NewKeyedLock()
		counters := make([]int, numKeys)

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for k := 0; k < numKeys; k++ {
			key := fmt.Sprintf("user-%d", k)
			for j := 0; j < opsPerKey; j++ {
				go func(k int, key string) {
					defer wg.Done()
					kl.Lock(key)
					defer kl.Unlock(key)
					counters[k]++
				}(k, key)
			}
		}
		wg.Wait()

		for k, c := range counters {
			if c != opsPerKey {
				t.Fatalf("key %d: expected %d, got %d", k, opsPerKey, c)
			}
		}
	})
}

// Among simultaneous TryLock calls at most one holds the key at a time and the
// key is free afterwards.
func TestTryLockExclusiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempts := rapid.IntRange(5, 20).Draw(t, "attempts")

		kl := NewKeyedLock()
		var holders, maxHolders atomic.Int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		start := make(chan struct{})

		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				<-start
				if kl.TryLock("job") {
					n := holders.Add(1)
					for {
						m := maxHolders.Load()
						if n <= m || maxHolders.CompareAndSwap(m, n) {
							break
						}
					}
					holders.Add(-1)
					kl.Unlock("job")
				}
			}()
		}
		close(start)
		wg.Wait()

		if maxHolders.Load() > 1 {
			t.Fatalf("observed %d simultaneous holders", maxHolders.Load())
		}
		if !kl.TryLock("job") {
			t.Fatal("lock should be available after all attempts complete")
		}
		kl.Unlock("job")
	})
}

func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cycles := rapid.IntRange(1, 50).Draw(t, "cycles")
		kl := NewKeyedLock()

		for i := 0; i < cycles; i++ {
			kl.Lock("k")
			kl.Unlock("k")
		}

		if kl.IsLocked("k") {
			t.Fatal("lock should be available after symmetric cycles")
		}
	})
}

func TestWithLockContext_Timeout(t *testing.T) {
	kl := NewKeyedLock()
	kl.Lock("u1")
	defer kl.Unlock("u1")

	called := false
	err := kl.WithLockContext(context.Background(), "u1", 20*time.Millisecond, func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)
}

func TestWithLockContext_Cancelled(t *testing.T) {
	kl := NewKeyedLock()
	kl.Lock("u1")
	defer kl.Unlock("u1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := kl.WithLockContext(ctx, "u1", time.Second, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLockContext_PropagatesError(t *testing.T) {
	kl := NewKeyedLock()
	boom := fmt.Errorf("boom")

	err := kl.WithLockContext(context.Background(), "u1", time.Second, func() error {
		assert.True(t, kl.IsLocked("u1"))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.False(t, kl.IsLocked("u1"))
	assert.Equal(t, 0, kl.Len())
}

func TestLockWithTimeout_AcquiresAfterRelease(t *testing.T) {
	kl := NewKeyedLock()
	kl.Lock("u1")

	go func() {
		time.Sleep(10 * time.Millisecond)
		kl.Unlock("u1")
	}()

	require.True(t, kl.LockWithTimeout(context.Background(), "u1", time.Second))
	kl.Unlock("u1")
}

func TestUnlockWithoutLock(t *testing.T) {
	kl := NewKeyedLock()
	kl.Unlock("missing")
	assert.False(t, kl.IsLocked("missing"))
	assert.Equal(t, 0, kl.Len())
}
