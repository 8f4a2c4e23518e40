package stream

import (
	"sync"
	"time"

	"github.com/obar/kmonad/internal/keys"
)

// Cell is the single-slot rendezvous between the app loop and the emitter.
// Put blocks until the emitter takes the event, so an emitter stall
// back-pressures the loop instead of dropping output.
type Cell struct {
	ch   chan keys.Event
	done chan struct{}
	once sync.Once
}

// NewCell creates an empty cell.
func NewCell() *Cell {
	return &Cell{
		ch:   make(chan keys.Event),
		done: make(chan struct{}),
	}
}

// Put hands an event to the reader, blocking until it is taken.
// It returns ErrClosed after Close.
func (c *Cell) Put(ev keys.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Pull blocks until an event is put. It returns ErrClosed after Close.
func (c *Cell) Pull() (keys.Event, error) {
	ev, _, err := c.PullUntil(time.Time{})
	return ev, err
}

// PullUntil is Pull bounded by an absolute deadline; a zero deadline means
// no bound. The second result is false when the deadline passed first.
func (c *Cell) PullUntil(deadline time.Time) (keys.Event, bool, error) {
	if deadline.IsZero() {
		select {
		case ev := <-c.ch:
			return ev, true, nil
		case <-c.done:
			return keys.Event{}, false, ErrClosed
		}
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case ev := <-c.ch:
		return ev, true, nil
	case <-c.done:
		return keys.Event{}, false, ErrClosed
	case <-timer.C:
		return keys.Event{}, false, nil
	}
}

// Close releases both sides of the rendezvous. Safe to call more than once.
func (c *Cell) Close() {
	c.once.Do(func() { close(c.done) })
}
