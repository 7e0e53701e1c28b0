// v0
// internal/http/health.go
package httpserver

import "sync"

// HealthState tracks readiness. Liveness is implied by the process
// answering at all; readiness is raised once the run store is loaded and
// lowered again on shutdown.
type HealthState struct {
	mu    sync.RWMutex
	ready bool
}

// NewHealthState starts not ready.
func NewHealthState() *HealthState {
	return &HealthState{}
}

// SetReady flips the readiness flag.
func (h *HealthState) SetReady(value bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = value
}

// Ready reports the readiness flag.
func (h *HealthState) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}
