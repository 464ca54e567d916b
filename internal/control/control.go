// Package control holds per-scan pause and stop state.
package control

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned from WaitIfPaused once a scan has been stopped.
// Stop is sticky: every later call for the same scan returns it too.
var ErrStopped = errors.New("scan stopped by user")

// pollInterval is the cadence at which WaitIfPaused re-checks the flags.
const pollInterval = 100 * time.Millisecond

// Flags is the observable control state of one scan.
type Flags struct {
	Paused  bool `json:"isPaused"`
	Stopped bool `json:"isStopped"`
}

// Registry tracks control flags for every live scan. Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	scans map[string]*Flags
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{scans: make(map[string]*Flags)}
}

// Initialize registers scanID with both flags cleared.
func (r *Registry) Initialize(scanID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans[scanID] = &Flags{}
}

// Pause sets the paused flag. Returns false if the scan is unknown.
func (r *Registry) Pause(scanID string) bool {
	return r.set(scanID, func(f *Flags) { f.Paused = true })
}

// Resume clears the paused flag. Returns false if the scan is unknown.
func (r *Registry) Resume(scanID string) bool {
	return r.set(scanID, func(f *Flags) { f.Paused = false })
}

// Stop sets the stopped flag. Returns false if the scan is unknown.
func (r *Registry) Stop(scanID string) bool {
	return r.set(scanID, func(f *Flags) { f.Stopped = true })
}

func (r *Registry) set(scanID string, fn func(*Flags)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.scans[scanID]
	if !ok {
		return false
	}
	fn(f)
	return true
}

// Snapshot returns the current flags for scanID.
func (r *Registry) Snapshot(scanID string) (Flags, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.scans[scanID]
	if !ok {
		return Flags{}, false
	}
	return *f, true
}

// Cleanup removes the entry for scanID.
func (r *Registry) Cleanup(scanID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scans, scanID)
}

// WaitIfPaused blocks while the scan is paused, polling at 100 ms intervals.
// It returns ErrStopped once the scan is stopped and the context's error if
// ctx is cancelled first.
func (r *Registry) WaitIfPaused(ctx context.Context, scanID string) error {
	for {
		f, ok := r.Snapshot(scanID)
		if !ok {
			return nil
		}
		if f.Stopped {
			return ErrStopped
		}
		if !f.Paused {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
