package viewsync

import (
	"sync"

	"backend-routerecorder/internal/route"
)

// Holder is the UI-owned snapshot. Reads and writes copy, so callers never
// share a backing array with it.
type Holder struct {
	mu    sync.RWMutex
	route route.Route
}

func NewHolder() *Holder {
	return &Holder{route: route.Route{}}
}

func (h *Holder) Publish(r route.Route) {
	h.Set(r)
}

func (h *Holder) Set(r route.Route) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.route = r.Clone()
}

func (h *Holder) Get() route.Route {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.route.Clone()
}
