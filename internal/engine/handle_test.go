package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/voicenote/internal/engine/enginetest"
)

type countingLoader struct {
	calls   atomic.Int32
	release chan struct{}
	load    func(ctx context.Context, attempt int32) (Engine, error)
}

func newCountingLoader(load func(ctx context.Context, attempt int32) (Engine, error)) *countingLoader {
	return &countingLoader{release: make(chan struct{}), load: load}
}

func (l *countingLoader) Load(ctx context.Context) (Engine, error) {
	attempt := l.calls.Add(1)
	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return l.load(ctx, attempt)
}

func succeed(ctx context.Context, attempt int32) (Engine, error) {
	return enginetest.NewMemEngine(nil), nil
}

func TestAcquire_ConcurrentCallersShareOneLoad(t *testing.T) {
	loader := newCountingLoader(succeed)
	h := NewHandle(loader)

	const callers = 8
	var wg sync.WaitGroup
	engines := make([]Engine, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engines[i], errs[i] = h.Acquire(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return h.inflightWaiters() == callers }, time.Second, time.Millisecond)
	assert.True(t, h.Loading())

	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, engines[0], engines[i])
	}
	assert.True(t, h.Ready())
	assert.False(t, h.Loading())
}

func TestAcquire_ConcurrentCallersShareFailure(t *testing.T) {
	boom := errors.New("wasm instantiate failed")
	loader := newCountingLoader(func(ctx context.Context, attempt int32) (Engine, error) {
		return nil, boom
	})
	h := NewHandle(loader)

	var wg sync.WaitGroup
	const callers = 5
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.Acquire(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return h.inflightWaiters() == callers }, time.Second, time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, err := range errs {
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, LoadInstantiationFailed, loadErr.Reason)
		assert.ErrorIs(t, err, boom)
		assert.Same(t, errs[0], err)
	}
	assert.False(t, h.Ready())
}

func TestAcquire_ReusesInstance(t *testing.T) {
	loader := newCountingLoader(succeed)
	close(loader.release)
	h := NewHandle(loader)

	first, err := h.Acquire(context.Background())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		eng, err := h.Acquire(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, eng)
	}
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestAcquire_RetriesAfterFailure(t *testing.T) {
	loader := newCountingLoader(func(ctx context.Context, attempt int32) (Engine, error) {
		if attempt == 1 {
			return nil, errors.New("network unreachable")
		}
		return enginetest.NewMemEngine(nil), nil
	})
	close(loader.release)
	h := NewHandle(loader)

	_, err := h.Acquire(context.Background())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, LoadInstantiationFailed, loadErr.Reason)

	eng, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, eng)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestAcquire_TimeoutDoesNotPoison(t *testing.T) {
	var attempts atomic.Int32
	h := NewHandle(LoaderFunc(func(ctx context.Context) (Engine, error) {
		if attempts.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return enginetest.NewMemEngine(nil), nil
	}), WithLoadTimeout(20*time.Millisecond))

	_, err := h.Acquire(context.Background())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, LoadTimeout, loadErr.Reason)
	assert.False(t, h.Loading())

	eng, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, eng)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestAcquire_TimeoutWhenLoaderIgnoresContext(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	late := enginetest.NewMemEngine(nil)
	h := NewHandle(LoaderFunc(func(ctx context.Context) (Engine, error) {
		<-stuck
		return late, nil
	}), WithLoadTimeout(10*time.Millisecond))

	start := time.Now()
	_, err := h.Acquire(context.Background())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, LoadTimeout, loadErr.Reason)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, h.Ready())
}

func TestAcquire_CallerContextEndsWithoutCancellingLoad(t *testing.T) {
	loader := newCountingLoader(succeed)
	h := NewHandle(loader)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.Acquire(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.inflightWaiters() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.Acquire(context.Background())
		}(i)
	}
	// the cancelled caller still counts as having joined this load
	require.Eventually(t, func() bool { return h.inflightWaiters() == 3 }, time.Second, time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.True(t, h.Ready())
	assert.Equal(t, int32(1), loader.calls.Load())
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestAcquire_FailureCooldown(t *testing.T) {
	var attempts atomic.Int32
	h := NewHandle(LoaderFunc(func(ctx context.Context) (Engine, error) {
		attempts.Add(1)
		return nil, errors.New("download failed")
	}), WithFailureCooldown(time.Minute))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	_, first := h.Acquire(context.Background())
	require.Error(t, first)

	_, second := h.Acquire(context.Background())
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), attempts.Load())

	now = now.Add(2 * time.Minute)
	_, third := h.Acquire(context.Background())
	require.Error(t, third)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClose_ReleasesInstance(t *testing.T) {
	var loaded []*enginetest.MemEngine
	h := NewHandle(LoaderFunc(func(ctx context.Context) (Engine, error) {
		eng := enginetest.NewMemEngine(nil)
		loaded = append(loaded, eng)
		return eng, nil
	}))

	_, err := h.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.True(t, loaded[0].Closed())
	assert.False(t, h.Ready())

	_, err = h.Acquire(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestLoadError_Message(t *testing.T) {
	err := &LoadError{Reason: LoadTimeout, Err: context.DeadlineExceeded}
	assert.Equal(t, "engine load failed: timeout: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "engine load failed: instantiationFailed", (&LoadError{Reason: LoadInstantiationFailed}).Error())
}
