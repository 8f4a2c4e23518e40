// Package stream implements the event pull chain of the remapping engine.
//
// Stages are arranged bottom-up: a Dispatch over the key source, a Hooks
// stage for one-shot predicate hooks, and a Sluice that can gate the stream.
// Each stage exposes Pull, which requests events from the stage below,
// applies its logic, and yields exactly one event upward. The outbound side
// is a single-slot Cell drained by an Emitter through a second Hooks stage.
package stream

import (
	"errors"
	"time"

	"github.com/obar/kmonad/internal/keys"
)

// Source produces raw key events. Next blocks until an event is available
// and returns an error when the source fails or is closed.
type Source interface {
	Next() (keys.Event, error)
}

// Sink consumes outbound key events. Emit must not reorder.
type Sink interface {
	Emit(keys.Event) error
}

// Puller is a stage that yields one event per call.
type Puller interface {
	Pull() (keys.Event, error)
}

// DeadlinePuller is a stage that can bound a pull by an absolute deadline.
// A zero deadline means no bound. The second result is false when the
// deadline passed before an event arrived.
type DeadlinePuller interface {
	PullUntil(deadline time.Time) (keys.Event, bool, error)
}

// Outcome is the result of a hook action, controlling whether the event
// keeps flowing.
type Outcome int

const (
	// NoCatch leaves the event in the stream for the remaining hooks and
	// the stages above.
	NoCatch Outcome = iota
	// Catch consumes the event; it never reaches the stages above.
	Catch
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Catch:
		return "catch"
	case NoCatch:
		return "nocatch"
	default:
		return "unknown"
	}
}

// Hook is a one-shot predicate and action attached to the stream. A hook
// fires at most once: on the first matching event, or, if Timeout is set
// and elapses first, through OnTimeout.
type Hook struct {
	// Predicate decides whether the hook fires on an event.
	Predicate func(keys.Event) bool

	// Action runs when the predicate matches. Its outcome decides whether
	// the event is consumed.
	Action func(keys.Event) Outcome

	// Timeout bounds how long the hook stays registered. Zero means the
	// hook waits indefinitely.
	Timeout time.Duration

	// OnTimeout runs when Timeout elapses before a match.
	OnTimeout func()
}

// ErrClosed is returned by stages whose underlying source or cell has been
// closed during shutdown.
var ErrClosed = errors.New("stream closed")
