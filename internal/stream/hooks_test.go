package stream_test

import (
	"testing"
	"time"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
	"github.com/obar/kmonad/internal/stream"
)

// queuePuller yields queued events; with an empty queue it waits out the
// deadline, and reports closed when drained without one.
type queuePuller struct {
	evs []keys.Event
}

func (q *queuePuller) PullUntil(deadline time.Time) (keys.Event, bool, error) {
	if len(q.evs) > 0 {
		ev := q.evs[0]
		q.evs = q.evs[1:]
		return ev, true, nil
	}
	if deadline.IsZero() {
		return keys.Event{}, false, stream.ErrClosed
	}
	time.Sleep(time.Until(deadline))
	return keys.Event{}, false, nil
}

func (q *queuePuller) push(evs ...keys.Event) {
	q.evs = append(q.evs, evs...)
}

func matchCode(c keys.Code) func(keys.Event) bool {
	return func(ev keys.Event) bool { return ev.Code == c }
}

func TestHooks_PassThrough(t *testing.T) {
	q := &queuePuller{}
	h := stream.NewHooks("test", q, logging.Null)
	q.push(keys.PressOf(keys.CodeA))

	ev, err := h.Pull()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeA {
		t.Errorf("expected %s, got %s", keys.CodeA, ev.Code)
	}
}

func TestHooks_CatchDiscardsEvent(t *testing.T) {
	q := &queuePuller{}
	h := stream.NewHooks("test", q, logging.Null)

	h.Register(stream.Hook{
		Predicate: matchCode(keys.CodeA),
		Action:    func(keys.Event) stream.Outcome { return stream.Catch },
	})
	q.push(keys.PressOf(keys.CodeA), keys.PressOf(keys.CodeB))

	ev, err := h.Pull()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeB {
		t.Errorf("expected the caught event to be skipped, got %s", ev.Code)
	}
	if h.Pending() != 0 {
		t.Errorf("expected fired hook removed, %d pending", h.Pending())
	}
}

// TestHooks_RegistrationOrder verifies hooks run in registration order and
// the first Catch stops propagation.
func TestHooks_RegistrationOrder(t *testing.T) {
	q := &queuePuller{}
	h := stream.NewHooks("test", q, logging.Null)

	var order []string
	h.Register(stream.Hook{
		Predicate: matchCode(keys.CodeA),
		Action: func(keys.Event) stream.Outcome {
			order = append(order, "first")
			return stream.NoCatch
		},
	})
	h.Register(stream.Hook{
		Predicate: matchCode(keys.CodeA),
		Action: func(keys.Event) stream.Outcome {
			order = append(order, "second")
			return stream.Catch
		},
	})
	h.Register(stream.Hook{
		Predicate: matchCode(keys.CodeA),
		Action: func(keys.Event) stream.Outcome {
			order = append(order, "third")
			return stream.Catch
		},
	})

	q.push(keys.PressOf(keys.CodeA), keys.PressOf(keys.CodeB))
	ev, err := h.Pull()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeB {
		t.Errorf("expected caught event skipped, got %s", ev.Code)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected [first second], got %v", order)
	}
	// The third hook never saw the event and stays registered.
	if h.Pending() != 1 {
		t.Errorf("expected 1 pending hook, got %d", h.Pending())
	}
}

// TestHooks_RegisterDuringAction verifies a hook registered by an action
// observes the next event, not the current one.
func TestHooks_RegisterDuringAction(t *testing.T) {
	q := &queuePuller{}
	h := stream.NewHooks("test", q, logging.Null)

	var saw []keys.Code
	h.Register(stream.Hook{
		Predicate: matchCode(keys.CodeA),
		Action: func(keys.Event) stream.Outcome {
			h.Register(stream.Hook{
				Predicate: func(ev keys.Event) bool { return true },
				Action: func(ev keys.Event) stream.Outcome {
					saw = append(saw, ev.Code)
					return stream.Catch
				},
			})
			return stream.NoCatch
		},
	})

	q.push(keys.PressOf(keys.CodeA), keys.PressOf(keys.CodeB), keys.PressOf(keys.CodeC))

	// Pull once: A passes (inner hook must not see it), B is caught by
	// the inner hook, C is yielded next.
	ev, err := h.Pull()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeA {
		t.Fatalf("expected %s, got %s", keys.CodeA, ev.Code)
	}

	ev, err = h.Pull()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeC {
		t.Errorf("expected %s, got %s", keys.CodeC, ev.Code)
	}
	if len(saw) != 1 || saw[0] != keys.CodeB {
		t.Errorf("expected inner hook to see [b], got %v", saw)
	}
}

func TestHooks_TimeoutFires(t *testing.T) {
	q := &queuePuller{}
	h := stream.NewHooks("test", q, logging.Null)

	timedOut := false
	h.Register(stream.Hook{
		Predicate: matchCode(keys.CodeA),
		Action:    func(keys.Event) stream.Outcome { return stream.Catch },
		Timeout:   30 * time.Millisecond,
		OnTimeout: func() {
			timedOut = true
			// Give the pull something to yield after the expiry.
			q.push(keys.PressOf(keys.CodeB))
		},
	})

	ev, err := h.Pull()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut {
		t.Error("expected the timeout to fire")
	}
	if ev.Code != keys.CodeB {
		t.Errorf("expected %s, got %s", keys.CodeB, ev.Code)
	}
	if h.Pending() != 0 {
		t.Errorf("expected expired hook removed, %d pending", h.Pending())
	}
}

// TestHooks_FiresAtMostOnce verifies a matched hook cannot also time out.
func TestHooks_FiresAtMostOnce(t *testing.T) {
	q := &queuePuller{}
	h := stream.NewHooks("test", q, logging.Null)

	var fired, timedOut int
	h.Register(stream.Hook{
		Predicate: matchCode(keys.CodeA),
		Action: func(keys.Event) stream.Outcome {
			fired++
			return stream.Catch
		},
		Timeout:   20 * time.Millisecond,
		OnTimeout: func() { timedOut++ },
	})

	q.push(keys.PressOf(keys.CodeA), keys.PressOf(keys.CodeB))
	if _, err := h.Pull(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wait past the deadline, then pull again; the hook is gone.
	time.Sleep(40 * time.Millisecond)
	q.push(keys.PressOf(keys.CodeA))
	ev, err := h.Pull()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeA {
		t.Errorf("expected %s, got %s", keys.CodeA, ev.Code)
	}

	if fired != 1 {
		t.Errorf("expected 1 fire, got %d", fired)
	}
	if timedOut != 0 {
		t.Errorf("expected no timeout after a match, got %d", timedOut)
	}
}

func TestHooks_Cancel(t *testing.T) {
	q := &queuePuller{}
	h := stream.NewHooks("test", q, logging.Null)

	id := h.Register(stream.Hook{Predicate: matchCode(keys.CodeA)})
	if !h.Cancel(id) {
		t.Error("expected cancel to succeed")
	}
	if h.Cancel(id) {
		t.Error("expected second cancel to fail")
	}
	if h.Pending() != 0 {
		t.Errorf("expected no pending hooks, got %d", h.Pending())
	}
}
