package agent

import (
	"sync"

	"github.com/ahrav/go-critique/internal/domain"
)

// slot is one in-flight computation. The leader fills result or err and
// closes done; followers block on done and read the published outcome.
// The writes happen before close(done), which is the synchronization
// point followers read through.
type slot struct {
	done   chan struct{}
	result *domain.ReviewResult
	err    error
}

// inflightRegistry collapses concurrent identical-fingerprint work to a
// single computation. The first requester for a fingerprint becomes the
// leader; requesters arriving while the slot is live share the leader's
// outcome. Slots are removed on completion, so sequential requests
// compute independently: repeats are the cache's job, not this
// registry's.
type inflightRegistry struct {
	mu    sync.Mutex
	slots map[domain.Fingerprint]*slot
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{slots: make(map[domain.Fingerprint]*slot)}
}

// begin returns the fingerprint's slot and whether the caller leads it.
// A leader must call finish exactly once; a follower must only read the
// slot after its done channel closes.
func (r *inflightRegistry) begin(fp domain.Fingerprint) (*slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[fp]; ok {
		return s, false
	}
	s := &slot{done: make(chan struct{})}
	r.slots[fp] = s
	return s, true
}

// finish publishes the leader's outcome and wakes all followers. The
// slot is unregistered first, so a requester arriving after completion
// starts fresh rather than observing a stale slot.
func (r *inflightRegistry) finish(fp domain.Fingerprint, s *slot, result *domain.ReviewResult, err error) {
	s.result, s.err = result, err
	r.mu.Lock()
	delete(r.slots, fp)
	r.mu.Unlock()
	close(s.done)
}

// size reports the number of live slots.
func (r *inflightRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
