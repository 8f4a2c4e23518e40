package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
)

// Dispatch sits at the bottom of the pull chain. It owns the rerun buffer:
// events recycled by a sluice flush or injected by a button are yielded
// before anything new is read from the source.
//
// The rerun buffer is touched only from the loop goroutine. The source is
// read by a pump goroutine so that pulls can be bounded by hook deadlines.
type Dispatch struct {
	source Source
	log    *logging.Logger

	rerun []keys.Event

	events chan keys.Event
	errs   chan error
	once   sync.Once
	err    error

	pulled   atomic.Uint64
	rerunned atomic.Uint64
}

// NewDispatch creates a dispatch stage over the given source.
func NewDispatch(source Source, log *logging.Logger) *Dispatch {
	return &Dispatch{
		source: source,
		log:    log.WithComponent("dispatch"),
		events: make(chan keys.Event),
		errs:   make(chan error, 1),
	}
}

// Pull returns the head of the rerun buffer, or blocks on the source.
func (d *Dispatch) Pull() (keys.Event, error) {
	ev, _, err := d.PullUntil(time.Time{})
	return ev, err
}

// PullUntil is Pull bounded by an absolute deadline. A zero deadline means
// no bound. The second result is false when the deadline passed first.
func (d *Dispatch) PullUntil(deadline time.Time) (keys.Event, bool, error) {
	if len(d.rerun) > 0 {
		ev := d.rerun[0]
		d.rerun = d.rerun[1:]
		d.pulled.Add(1)
		return ev, true, nil
	}

	if d.err != nil {
		return keys.Event{}, false, d.err
	}

	d.once.Do(d.startPump)

	if deadline.IsZero() {
		select {
		case ev := <-d.events:
			d.pulled.Add(1)
			return ev, true, nil
		case err := <-d.errs:
			d.err = err
			return keys.Event{}, false, err
		}
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case ev := <-d.events:
		d.pulled.Add(1)
		return ev, true, nil
	case err := <-d.errs:
		d.err = err
		return keys.Event{}, false, err
	case <-timer.C:
		return keys.Event{}, false, nil
	}
}

// Rerun prepends events to the rerun buffer, preserving their relative
// order. Prepending ensures events replayed by a sluice flush come before
// anything a concurrent hook timeout pushed.
func (d *Dispatch) Rerun(events []keys.Event) {
	if len(events) == 0 {
		return
	}
	d.rerunned.Add(uint64(len(events)))
	buf := make([]keys.Event, 0, len(events)+len(d.rerun))
	buf = append(buf, events...)
	buf = append(buf, d.rerun...)
	d.rerun = buf
	d.log.Debug("rerun %d event(s), buffer now %d", len(events), len(d.rerun))
}

// Pending returns the number of events waiting in the rerun buffer.
func (d *Dispatch) Pending() int {
	return len(d.rerun)
}

// Stats reports how many events were pulled through and rerun.
func (d *Dispatch) Stats() (pulled, rerunned uint64) {
	return d.pulled.Load(), d.rerunned.Load()
}

// startPump launches the goroutine that blocks on the source so pulls can
// be multiplexed with hook deadlines.
func (d *Dispatch) startPump() {
	go func() {
		for {
			ev, err := d.source.Next()
			if err != nil {
				d.errs <- err
				return
			}
			d.events <- ev
		}
	}()
}
