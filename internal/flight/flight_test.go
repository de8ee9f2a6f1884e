// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (g *Group[V]) waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

func TestDoSingleExecution(t *testing.T) {
	var g Group[string]
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "artifact", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = g.Do(context.Background(), "1601.00001", fn)
		}(i)
	}
	require.Eventually(t, func() bool { return g.waiters("1601.00001") == n }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "artifact", results[i])
	}
	assert.Equal(t, 0, g.InFlight())
}

func TestDoSharesErrors(t *testing.T) {
	var g Group[int]
	boom := errors.New("boom")
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		<-release
		return 0, boom
	}
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := g.Do(context.Background(), "k", fn)
			assert.ErrorIs(t, err, boom)
		}()
	}
	require.Eventually(t, func() bool { return g.waiters("k") == 3 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
}

func TestDoDistinctKeysRunInParallel(t *testing.T) {
	var g Group[string]
	var started sync.WaitGroup
	started.Add(2)
	fn := func(ctx context.Context) (string, error) {
		started.Done()
		// Each call blocks until both have started; serial execution
		// would deadlock and hit the timeout.
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return "ok", nil
		case <-time.After(2 * time.Second):
			return "", errors.New("keys were serialized")
		}
	}
	var wg sync.WaitGroup
	for _, k := range []string{"a", "b"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_, _, err := g.Do(context.Background(), k, fn)
			assert.NoError(t, err)
		}(k)
	}
	wg.Wait()
}

func TestDoCancelledCallerCancelsWork(t *testing.T) {
	var g Group[string]
	workCancelled := make(chan struct{})
	started := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		close(workCancelled)
		return "", ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctx, "k", fn)
		errc <- err
	}()
	<-started
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	select {
	case <-workCancelled:
	case <-time.After(time.Second):
		t.Fatal("work context not cancelled after last waiter left")
	}
	require.Eventually(t, func() bool { return g.InFlight() == 0 }, time.Second, time.Millisecond)
}

func TestDoRemainingWaiterKeepsWorkAlive(t *testing.T) {
	var g Group[string]
	release := make(chan struct{})
	var workErr atomic.Value
	fn := func(ctx context.Context) (string, error) {
		<-release
		if err := ctx.Err(); err != nil {
			workErr.Store(err)
			return "", err
		}
		return "done", nil
	}

	leaving, cancel := context.WithCancel(context.Background())
	leftErr := make(chan error, 1)
	go func() {
		_, _, err := g.Do(leaving, "k", fn)
		leftErr <- err
	}()
	stayErr := make(chan error, 1)
	stayVal := make(chan string, 1)
	require.Eventually(t, func() bool { return g.waiters("k") == 1 }, time.Second, time.Millisecond)
	go func() {
		v, shared, err := g.Do(context.Background(), "k", fn)
		assert.True(t, shared)
		stayVal <- v
		stayErr <- err
	}()
	require.Eventually(t, func() bool { return g.waiters("k") == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leftErr, context.Canceled)
	close(release)

	assert.NoError(t, <-stayErr)
	assert.Equal(t, "done", <-stayVal)
	assert.Nil(t, workErr.Load())
}

func TestDoCallerDeadlineDoesNotLeakIntoWork(t *testing.T) {
	var g Group[string]
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	v, shared, err := g.Do(ctx, "k", func(ctx context.Context) (string, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return "v", nil
	})
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "v", v)
}

func TestDoFreshWaitsOutPlainCall(t *testing.T) {
	var g Group[string]
	release := make(chan struct{})
	plainStarted := make(chan struct{})
	var freshCalls atomic.Int32

	plainVal := make(chan string, 1)
	go func() {
		v, _, _ := g.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
			close(plainStarted)
			<-release
			return "cached", nil
		})
		plainVal <- v
	}()
	<-plainStarted

	type result struct {
		v      string
		shared bool
		err    error
	}
	freshRes := make(chan result, 1)
	go func() {
		v, shared, err := g.DoFresh(context.Background(), "k", func(ctx context.Context) (string, error) {
			freshCalls.Add(1)
			return "rebuilt", nil
		})
		freshRes <- result{v, shared, err}
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), freshCalls.Load(), "fresh work must not overlap the plain call")
	assert.Equal(t, 1, g.waiters("k"), "fresh caller must not join the plain call")
	close(release)

	assert.Equal(t, "cached", <-plainVal)
	got := <-freshRes
	require.NoError(t, got.err)
	assert.False(t, got.shared)
	assert.Equal(t, "rebuilt", got.v)
	assert.Equal(t, int32(1), freshCalls.Load())
}

func TestDoJoinsFreshCall(t *testing.T) {
	var g Group[string]
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	fn := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "rebuilt", nil
	}

	freshVal := make(chan string, 1)
	go func() {
		v, _, _ := g.DoFresh(context.Background(), "k", fn)
		freshVal <- v
	}()
	<-started

	type result struct {
		v      string
		shared bool
	}
	joined := make(chan result, 2)
	for _, do := range []func(context.Context, string, func(context.Context) (string, error)) (string, bool, error){g.Do, g.DoFresh} {
		go func() {
			v, shared, _ := do(context.Background(), "k", fn)
			joined <- result{v, shared}
		}()
	}
	require.Eventually(t, func() bool { return g.waiters("k") == 3 }, time.Second, time.Millisecond)
	close(release)

	assert.Equal(t, "rebuilt", <-freshVal)
	for i := 0; i < 2; i++ {
		r := <-joined
		assert.True(t, r.shared)
		assert.Equal(t, "rebuilt", r.v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoFreshCallerCancelledWhileWaiting(t *testing.T) {
	var g Group[string]
	release := make(chan struct{})
	started := make(chan struct{})
	go g.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "v", nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := g.DoFresh(ctx, "k", func(ctx context.Context) (string, error) {
			t.Error("fresh work ran after its caller left")
			return "", nil
		})
		errc <- err
	}()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	close(release)
	require.Eventually(t, func() bool { return g.InFlight() == 0 }, time.Second, time.Millisecond)
}
