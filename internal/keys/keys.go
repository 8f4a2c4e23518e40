// Package keys defines the key event model shared by every stage of the
// remapping pipeline: press/release switches, keycodes, and timestamped
// events. Keycodes follow the Linux input-event numbering but are otherwise
// opaque to the engine.
package keys

import (
	"fmt"
	"time"
)

// Switch distinguishes the two edges of a key event.
type Switch uint8

const (
	// Release is the key-up edge.
	Release Switch = 0
	// Press is the key-down edge.
	Press Switch = 1
)

// String returns the switch name.
func (s Switch) String() string {
	switch s {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("Switch(%d)", s)
	}
}

// Code identifies a physical key.
type Code uint32

// String returns the key name when known, or a numeric form.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("key-%d", c)
}

// Event is a single key edge pulled from a source or sent to a sink.
// Events are immutable; stages copy rather than mutate.
type Event struct {
	// Switch is the edge: Press or Release.
	Switch Switch

	// Code identifies the key.
	Code Code

	// Time is when the event was read, on the monotonic clock.
	Time time.Time
}

// NewEvent creates an event with the current timestamp.
func NewEvent(s Switch, c Code) Event {
	return Event{Switch: s, Code: c, Time: time.Now()}
}

// PressOf creates a press event for the given code.
func PressOf(c Code) Event {
	return NewEvent(Press, c)
}

// ReleaseOf creates a release event for the given code.
func ReleaseOf(c Code) Event {
	return NewEvent(Release, c)
}

// IsPress returns true for the key-down edge.
func (e Event) IsPress() bool {
	return e.Switch == Press
}

// IsRelease returns true for the key-up edge.
func (e Event) IsRelease() bool {
	return e.Switch == Release
}

// Concerns returns true if the event is for the given code.
func (e Event) Concerns(c Code) bool {
	return e.Code == c
}

// String returns a compact human-readable form, e.g. "press a".
func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Switch, e.Code)
}
