// Package registry tracks which audio tracks currently have an active
// transcription session, enforcing at most one session per track.
package registry

import "sync"

// TrackID is the composite key identifying one audio source: the owning
// participant's SID plus the track's SID.
type TrackID struct {
	ParticipantSID string
	TrackSID       string
}

// String returns the canonical "<participantSID>_<trackSID>" form used in logs.
func (id TrackID) String() string {
	return id.ParticipantSID + "_" + id.TrackSID
}

// Registry is a concurrency-safe set of held track ids. State is in-memory
// only; it is rebuilt by a full participant scan on restart.
type Registry struct {
	mu   sync.Mutex
	held map[TrackID]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{held: make(map[TrackID]struct{})}
}

// TryAcquire marks id as held and returns true iff it was not already held.
// Concurrent callers for the same id see exactly one winner.
func (r *Registry) TryAcquire(id TrackID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.held[id]; ok {
		return false
	}
	r.held[id] = struct{}{}
	return true
}

// Release removes id from the registry. Releasing an absent id is a no-op.
func (r *Registry) Release(id TrackID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, id)
}

// Contains reports whether id is currently held.
func (r *Registry) Contains(id TrackID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[id]
	return ok
}

// Size returns the number of held ids.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}
