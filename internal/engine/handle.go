package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/voicenote/internal/metrics"
)

const DefaultLoadTimeout = 60 * time.Second

// Handle is the process-wide owner of the engine instance. It loads the engine on
// first use, shares one in-flight load between concurrent callers and forgets
// failed loads so that the next caller retries.
type Handle struct {
	loader      Loader
	loadTimeout time.Duration
	cooldown    time.Duration
	now         func() time.Time

	mu          sync.Mutex
	instance    Engine
	inflight    *flight
	lastErr     error
	lastFailure time.Time
}

// flight is a load in progress; done is closed once eng/err are set
type flight struct {
	done    chan struct{}
	eng     Engine
	err     error
	waiters int
}

type Option func(*Handle)

// WithLoadTimeout bounds every load attempt
func WithLoadTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.loadTimeout = d
		}
	}
}

// WithFailureCooldown makes Acquire return the last load error for d after a
// failure instead of starting a new load. Zero disables it.
func WithFailureCooldown(d time.Duration) Option {
	return func(h *Handle) {
		h.cooldown = d
	}
}

func NewHandle(loader Loader, opts ...Option) *Handle {
	h := &Handle{
		loader:      loader,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Acquire returns the loaded engine, joining or starting a load when needed. A
// caller whose ctx ends stops waiting; the shared load keeps running for the others.
func (h *Handle) Acquire(ctx context.Context) (Engine, error) {
	h.mu.Lock()
	if h.instance != nil {
		eng := h.instance
		h.mu.Unlock()
		return eng, nil
	}

	if h.cooldown > 0 && h.lastErr != nil && h.now().Sub(h.lastFailure) < h.cooldown {
		err := h.lastErr
		h.mu.Unlock()
		return nil, err
	}

	f := h.inflight
	if f == nil {
		f = &flight{done: make(chan struct{})}
		h.inflight = f
		go h.load(f)
	} else {
		metrics.EngineLoadJoinsTotal.Inc()
	}
	f.waiters++
	h.mu.Unlock()

	select {
	case <-f.done:
		return f.eng, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type loadResult struct {
	eng Engine
	err error
}

// load runs one attempt under the hard timeout and publishes the outcome
func (h *Handle) load(f *flight) {
	ctx, cancel := context.WithTimeout(context.Background(), h.loadTimeout)
	defer cancel()

	start := time.Now()
	slog.Info("Loading transcoding engine", "timeout", h.loadTimeout)

	results := make(chan loadResult, 1)
	go func() {
		eng, err := h.loader.Load(ctx)
		results <- loadResult{eng: eng, err: err}
	}()

	var eng Engine
	var err error
	select {
	case res := <-results:
		eng = res.eng
		switch {
		case res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
			err = &LoadError{Reason: LoadTimeout, Err: res.err}
		case res.err != nil:
			err = &LoadError{Reason: LoadInstantiationFailed, Err: res.err}
		case res.eng == nil:
			err = &LoadError{Reason: LoadInstantiationFailed, Err: errors.New("loader returned no engine")}
		}
	case <-ctx.Done():
		err = &LoadError{Reason: LoadTimeout, Err: ctx.Err()}
		// The loader may still produce an instance nobody will use
		go func() {
			if res := <-results; res.eng != nil {
				closeEngine(res.eng)
			}
		}()
	}

	if err != nil {
		if eng != nil {
			closeEngine(eng)
		}
		eng = nil
	}

	h.mu.Lock()
	if err == nil {
		h.instance = eng
		h.lastErr = nil
	} else {
		h.lastErr = err
		h.lastFailure = h.now()
	}
	h.inflight = nil
	f.eng, f.err = eng, err
	waiters := f.waiters
	h.mu.Unlock()
	close(f.done)

	elapsed := time.Since(start)
	metrics.EngineLoadDuration.Observe(elapsed.Seconds())
	if err != nil {
		var loadErr *LoadError
		errors.As(err, &loadErr)
		metrics.EngineLoadsTotal.WithLabelValues(string(loadErr.Reason)).Inc()
		slog.Error("Transcoding engine load failed", "error", err, "elapsed", elapsed, "waiters", waiters)
		return
	}
	metrics.EngineLoadsTotal.WithLabelValues("success").Inc()
	metrics.EngineReady.Set(1)
	slog.Info("Transcoding engine ready", "elapsed", elapsed, "waiters", waiters)
}

// Ready reports whether an instance is loaded
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance != nil
}

// Loading reports whether a load is in flight
func (h *Handle) Loading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inflight != nil
}

// Close releases the loaded instance; the next Acquire loads a new one
func (h *Handle) Close() error {
	h.mu.Lock()
	eng := h.instance
	h.instance = nil
	h.mu.Unlock()

	metrics.EngineReady.Set(0)
	if eng == nil {
		return nil
	}
	return closeEngine(eng)
}

func closeEngine(eng Engine) error {
	if c, ok := eng.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
