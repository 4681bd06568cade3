package engine

import (
	"sort"

	"github.com/spf13/afero"
)

// inflightWaiters returns how many callers joined the current load
func (h *Handle) inflightWaiters() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inflight == nil {
		return 0
	}
	return h.inflight.waiters
}

// Entries lists the workspace
func (e *FFmpegEngine) Entries() ([]string, error) {
	infos, err := afero.ReadDir(e.fs, "/")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}
