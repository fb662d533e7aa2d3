package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPoolDo(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the job and returns its error", func(t *testing.T) {
		pool := NewPool(1, nil)
		wantErr := errors.New("job failed")

		require.NoError(t, pool.Do(ctx, func(context.Context) error { return nil }))
		assert.ErrorIs(t, pool.Do(ctx, func(context.Context) error { return wantErr }), wantErr)
	})

	t.Run("never exceeds the slot count", func(t *testing.T) {
		const slots = 3
		pool := NewPool(slots, nil)

		var active, peak atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = pool.Do(ctx, func(context.Context) error {
					n := active.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					active.Add(-1)
					return nil
				})
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, peak.Load(), int32(slots))
	})

	t.Run("queued caller can give up", func(t *testing.T) {
		pool := NewPool(1, nil)

		release := make(chan struct{})
		started := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(ctx, func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := pool.Do(cancelCtx, func(context.Context) error {
			t.Error("job must not run after cancellation")
			return nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		wg.Wait()
	})

	t.Run("clamps degenerate sizes", func(t *testing.T) {
		assert.Equal(t, 1, NewPool(0, nil).Slots())
		assert.Equal(t, 1, NewPool(-5, nil).Slots())
	})
}
