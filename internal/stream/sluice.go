package stream

import (
	"sync/atomic"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
)

// Sluice is a gate in the pull chain. While blocked it accumulates pulled
// events silently; on unblock the buffer is flushed into the dispatch's
// rerun queue, ahead of any newer events, and pull-through resumes.
//
// Blocking nests: a depth counter tracks how many holders have the gate
// closed, and only the final unblock flushes. Block and unblock calls must
// balance over a button's lifetime; an unbalanced unblock is reported and
// ignored.
type Sluice struct {
	below    Puller
	dispatch *Dispatch
	log      *logging.Logger

	depth int
	buf   []keys.Event

	blocks   atomic.Uint64
	flushed  atomic.Uint64
	buffered atomic.Uint64
}

// NewSluice creates a sluice over the given puller, flushing into dispatch.
func NewSluice(below Puller, dispatch *Dispatch, log *logging.Logger) *Sluice {
	return &Sluice{
		below:    below,
		dispatch: dispatch,
		log:      log.WithComponent("sluice"),
	}
}

// Pull yields the next event from below. While blocked it buffers instead
// of yielding; the state is re-checked after every pull because a hook
// timeout may open the gate mid-pull.
func (s *Sluice) Pull() (keys.Event, error) {
	for {
		ev, err := s.below.Pull()
		if err != nil {
			return keys.Event{}, err
		}
		if s.depth > 0 {
			s.buf = append(s.buf, ev)
			s.buffered.Add(1)
			s.log.Debug("buffered %s (depth %d)", ev, s.depth)
			continue
		}
		return ev, nil
	}
}

// Block closes the gate, or deepens an existing block.
func (s *Sluice) Block() {
	if s.depth == 0 {
		s.blocks.Add(1)
	}
	s.depth++
	s.log.Debug("blocked (depth %d)", s.depth)
}

// Unblock opens one level of the gate. When the last level opens, the
// buffer drains into the dispatch rerun queue in FIFO order and the drained
// events are returned. An unblock without a matching block is reported and
// ignored.
func (s *Sluice) Unblock() []keys.Event {
	if s.depth == 0 {
		s.log.Warn("unblock without matching block; ignored")
		return nil
	}
	s.depth--
	s.log.Debug("unblocked (depth %d)", s.depth)
	if s.depth > 0 {
		return nil
	}

	drained := s.buf
	s.buf = nil
	if len(drained) > 0 {
		s.flushed.Add(uint64(len(drained)))
		s.dispatch.Rerun(drained)
	}
	return drained
}

// Blocked returns true while the gate is closed.
func (s *Sluice) Blocked() bool {
	return s.depth > 0
}

// BufferLen returns the number of events held back by the gate.
func (s *Sluice) BufferLen() int {
	return len(s.buf)
}

// Stats reports lifetime counts: gate closings, events buffered, and
// events flushed back for rerun.
func (s *Sluice) Stats() (blocks, buffered, flushed uint64) {
	return s.blocks.Load(), s.buffered.Load(), s.flushed.Load()
}
