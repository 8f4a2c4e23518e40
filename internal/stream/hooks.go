package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
)

// Hooks offers every pulled event to a set of registered one-shot hooks
// before yielding it upward.
//
// Hooks are kept in registration order. On each event, every registered
// hook's predicate is evaluated in that order; a match removes the hook and
// runs its action, and an action returning Catch discards the event. Timed
// hooks carry an absolute deadline: expiry removes the hook and runs its
// timeout handler. Timeout firing is serialized with Pull, so no event is
// ever yielded concurrently with a timeout on the same instance.
type Hooks struct {
	name  string
	below DeadlinePuller
	log   *logging.Logger
	now   func() time.Time

	mu      sync.Mutex
	entries []*hookEntry
	nextID  uint64

	registered atomic.Uint64
	fired      atomic.Uint64
	expired    atomic.Uint64
	caught     atomic.Uint64
}

type hookEntry struct {
	id       uint64
	hook     Hook
	deadline time.Time // zero when the hook has no timeout
}

// NewHooks creates a hook stage over the given puller. The name scopes log
// output ("input" and "output" in the daemon).
func NewHooks(name string, below DeadlinePuller, log *logging.Logger) *Hooks {
	return &Hooks{
		name:  name,
		below: below,
		log:   log.WithComponent(name + "-hooks"),
		now:   time.Now,
	}
}

// Register installs a hook and returns its id. Insertion preserves
// registration order. A hook registered during another hook's action
// observes the next event, not the current one.
func (h *Hooks) Register(hook Hook) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	e := &hookEntry{id: h.nextID, hook: hook}
	if hook.Timeout > 0 {
		e.deadline = h.now().Add(hook.Timeout)
	}
	h.entries = append(h.entries, e)
	h.registered.Add(1)
	return e.id
}

// Cancel removes a hook before it fires. It returns false when the hook
// already fired, expired, or never existed.
func (h *Hooks) Cancel(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remove(id) != nil
}

// Pending returns the number of registered hooks.
func (h *Hooks) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Pull yields the next event that no hook caught, firing expired timeouts
// along the way.
func (h *Hooks) Pull() (keys.Event, error) {
	for {
		h.fireExpired()

		ev, ok, err := h.below.PullUntil(h.nextDeadline())
		if err != nil {
			return keys.Event{}, err
		}
		if !ok {
			// A deadline passed; loop to fire it.
			continue
		}

		if h.offer(ev) == Catch {
			continue
		}
		return ev, nil
	}
}

// offer runs the event past every registered hook in registration order.
func (h *Hooks) offer(ev keys.Event) Outcome {
	for _, id := range h.snapshot() {
		e := h.find(id)
		if e == nil {
			continue
		}
		if e.hook.Predicate != nil && !e.hook.Predicate(ev) {
			continue
		}

		h.mu.Lock()
		h.remove(id)
		h.mu.Unlock()
		h.fired.Add(1)

		if e.hook.Action == nil {
			continue
		}
		if e.hook.Action(ev) == Catch {
			h.caught.Add(1)
			h.log.Debug("hook %d caught %s", id, ev)
			return Catch
		}
	}
	return NoCatch
}

// fireExpired removes every hook whose deadline has passed and runs its
// timeout handler, in registration order. Handlers run without the lock so
// they may register hooks or touch the dispatch.
func (h *Hooks) fireExpired() {
	now := h.now()

	h.mu.Lock()
	var due []*hookEntry
	kept := h.entries[:0]
	for _, e := range h.entries {
		if !e.deadline.IsZero() && !e.deadline.After(now) {
			due = append(due, e)
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept
	h.mu.Unlock()

	for _, e := range due {
		h.expired.Add(1)
		h.log.Debug("hook %d timed out", e.id)
		if e.hook.OnTimeout != nil {
			e.hook.OnTimeout()
		}
	}
}

// nextDeadline returns the earliest pending deadline, or the zero time when
// no timed hook is registered.
func (h *Hooks) nextDeadline() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	var min time.Time
	for _, e := range h.entries {
		if e.deadline.IsZero() {
			continue
		}
		if min.IsZero() || e.deadline.Before(min) {
			min = e.deadline
		}
	}
	return min
}

// snapshot captures the ids of the currently registered hooks, so hooks
// registered by an action are not offered the current event.
func (h *Hooks) snapshot() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]uint64, len(h.entries))
	for i, e := range h.entries {
		ids[i] = e.id
	}
	return ids
}

// find returns the entry with the given id, or nil.
func (h *Hooks) find(id uint64) *hookEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.entries {
		if e.id == id {
			return e
		}
	}
	return nil
}

// remove deletes the entry with the given id. Caller holds the lock.
func (h *Hooks) remove(id uint64) *hookEntry {
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return e
		}
	}
	return nil
}

// Stats reports lifetime hook counts: registered, fired on match, expired
// by timeout, and events caught.
func (h *Hooks) Stats() (registered, fired, expired, caught uint64) {
	return h.registered.Load(), h.fired.Load(), h.expired.Load(), h.caught.Load()
}
