package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/internal/bulk"
)

func TestExactlyOneFirstAndOneLast(t *testing.T) {
	r := NewRegistry(nil)
	const n = 32

	var firsts, lasts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, c := r.IncrementAndGet(7); c == 1 {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), firsts.Load())

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, c := r.DecrementAndGet(7); c == 0 {
				lasts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), lasts.Load())
	assert.Zero(t, r.Len(), "finished jobs are pruned")
}

func TestJobsAreIndependent(t *testing.T) {
	r := NewRegistry(func() *bulk.Buffer { return bulk.NewBuffer(nil, 0, nil) })
	a, ca := r.IncrementAndGet(1)
	b, cb := r.IncrementAndGet(2)
	assert.Equal(t, int64(1), ca)
	assert.Equal(t, int64(1), cb)
	assert.NotSame(t, a.Buffer, b.Buffer)

	again, c := r.IncrementAndGet(1)
	assert.Same(t, a, again)
	assert.Equal(t, int64(2), c)
}

func TestWarningCounterSeparateFromModules(t *testing.T) {
	r := NewRegistry(nil)
	_, c := r.IncrementAndGet(3)
	assert.Equal(t, int64(1), c)
	assert.Equal(t, int64(1), r.IncrementWarnings(3))
	assert.Equal(t, int64(2), r.IncrementWarnings(3))

	_, c = r.IncrementAndGet(3)
	assert.Equal(t, int64(2), c)
}

func TestDecrementUnknownJob(t *testing.T) {
	r := NewRegistry(nil)
	j, c := r.DecrementAndGet(99)
	assert.Nil(t, j)
	assert.Zero(t, c)
}

func TestRegistrationLatch(t *testing.T) {
	r := NewRegistry(nil)
	j, _ := r.IncrementAndGet(5)

	done := make(chan error, 1)
	go func() { done <- j.WaitRegistered(context.Background()) }()

	boom := errors.New("registration failed")
	j.FinishRegistration(boom)
	j.FinishRegistration(nil)

	select {
	case err := <-done:
		assert.Same(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
	require.ErrorIs(t, j.WaitRegistered(context.Background()), boom)

	other, _ := r.IncrementAndGet(6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, other.WaitRegistered(ctx), context.Canceled)
}

func TestFinishedRegistrationWinsOverCancelledContext(t *testing.T) {
	r := NewRegistry(nil)
	j, _ := r.IncrementAndGet(7)
	j.FinishRegistration(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 200; i++ {
		require.NoError(t, j.WaitRegistered(ctx))
	}

	late, _ := r.IncrementAndGet(8)
	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- late.WaitRegistered(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, context.Canceled, "an unfinished registration reports the cancellation")
	}
}
