// Package engine owns the transcoding engine: a lazily loaded ffmpeg runtime with a
// private workspace, shared by every conversion in the process.
package engine

import (
	"context"
	"fmt"
)

// Engine is a loaded transcoding runtime. Names passed to the file operations are
// entries of the engine's private workspace, not host paths.
type Engine interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	Exec(ctx context.Context, args ...string) error
}

// Loader fetches and instantiates an engine
type Loader interface {
	Load(ctx context.Context) (Engine, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (Engine, error)

func (f LoaderFunc) Load(ctx context.Context) (Engine, error) {
	return f(ctx)
}

// LoadFailure is the reason an engine load failed
type LoadFailure string

const (
	LoadTimeout             LoadFailure = "timeout"
	LoadInstantiationFailed LoadFailure = "instantiationFailed"
)

// LoadError reports a failed engine load. It does not poison the handle.
type LoadError struct {
	Reason LoadFailure
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine load failed: %s", e.Reason)
	}
	return fmt.Sprintf("engine load failed: %s: %v", e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
