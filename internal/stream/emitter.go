package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/obar/kmonad/internal/logging"
)

// Emitter is the dedicated worker on the outbound side: it drains the
// output cell through the output hook stage and forwards every surviving
// event to the key sink, in order.
type Emitter struct {
	hooks *Hooks
	sink  Sink
	log   *logging.Logger

	emitted atomic.Uint64
}

// NewEmitter creates an emitter that pulls from the given output hook
// stage and writes to sink.
func NewEmitter(hooks *Hooks, sink Sink, log *logging.Logger) *Emitter {
	return &Emitter{
		hooks: hooks,
		sink:  sink,
		log:   log.WithComponent("emitter"),
	}
}

// Run forwards events until the cell closes, the context is cancelled, or
// the sink fails. A closed cell is a clean shutdown.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		ev, err := e.hooks.Pull()
		if errors.Is(err, ErrClosed) {
			e.log.Debug("output cell closed, emitter stopping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pulling output event: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.sink.Emit(ev); err != nil {
			return fmt.Errorf("emitting %s: %w", ev, err)
		}
		e.emitted.Add(1)
	}
}

// Emitted reports how many events reached the sink.
func (e *Emitter) Emitted() uint64 {
	return e.emitted.Load()
}
