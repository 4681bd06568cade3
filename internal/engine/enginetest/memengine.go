// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

// ExecFunc scripts what a conversion does
type ExecFunc func(ctx context.Context, eng *MemEngine, args []string) error

// MemEngine keeps its workspace in an afero MemMapFs and runs ExecFunc instead of ffmpeg
type MemEngine struct {
	fs   afero.Fs
	exec ExecFunc

	mu        sync.Mutex
	execCalls int
	closed    bool
}

func NewMemEngine(exec ExecFunc) *MemEngine {
	return &MemEngine{fs: afero.NewMemMapFs(), exec: exec}
}

func (m *MemEngine) WriteFile(name string, data []byte) error {
	return afero.WriteFile(m.fs, "/"+name, data, 0o600)
}

func (m *MemEngine) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(m.fs, "/"+name)
}

func (m *MemEngine) DeleteFile(name string) error {
	return m.fs.Remove("/" + name)
}

func (m *MemEngine) Exec(ctx context.Context, args ...string) error {
	m.mu.Lock()
	m.execCalls++
	m.mu.Unlock()
	if m.exec == nil {
		return nil
	}
	return m.exec(ctx, m, args)
}

// Entries lists the workspace
func (m *MemEngine) Entries() []string {
	infos, err := afero.ReadDir(m.fs, "/")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names
}

func (m *MemEngine) ExecCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execCalls
}

func (m *MemEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Input returns the value following -i
func Input(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			return args[i+1]
		}
	}
	return ""
}

// Output returns the last argument, where ffmpeg expects the output
func Output(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

// WriteOutput returns an ExecFunc that writes data to the output entry
func WriteOutput(data []byte) ExecFunc {
	return func(ctx context.Context, eng *MemEngine, args []string) error {
		return eng.WriteFile(Output(args), data)
	}
}

// Block returns an ExecFunc that only returns once ctx ends
func Block() ExecFunc {
	return func(ctx context.Context, eng *MemEngine, args []string) error {
		<-ctx.Done()
		return ctx.Err()
	}
}
