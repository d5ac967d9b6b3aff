package synth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	var inFlight int32
	var maxObserved int32

	engine := NewMockEngine()
	engine.Handlers["slow"] = func(ctx context.Context, text string) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxObserved)
			if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return []byte("ok"), nil
	}

	pool := NewPool(engine, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Synthesize(context.Background(), "hi", "slow")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), 2)
}

func TestPool_PropagatesEngineError(t *testing.T) {
	engine := NewMockEngine()
	engine.Handlers["bad"] = func(ctx context.Context, text string) ([]byte, error) {
		return nil, ErrVoiceNotFound
	}

	pool := NewPool(engine, 1)
	_, err := pool.Synthesize(context.Background(), "hi", "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVoiceNotFound)
}

func TestPool_CancelledContextAbortsWaitingCall(t *testing.T) {
	engine := NewMockEngine()
	engine.Handlers["slow"] = func(ctx context.Context, text string) ([]byte, error) {
		time.Sleep(50 * time.Millisecond)
		return []byte("ok"), nil
	}
	pool := NewPool(engine, 1)

	// Occupy the only slot.
	done := make(chan struct{})
	go func() {
		pool.Synthesize(context.Background(), "hi", "slow")
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := pool.Synthesize(ctx, "hi", "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	<-done
}
