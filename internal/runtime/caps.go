package runtime

import (
	"time"

	"github.com/obar/kmonad/internal/button"
	"github.com/obar/kmonad/internal/keymap"
	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/stream"
)

// Caps is the capability set a button action executes against. A fresh
// value is handed to the binding on every press; actions touch the
// pipeline only through it.
type Caps interface {
	// Binding returns the button definition currently bound, for
	// self-reference in recursive primitives.
	Binding() button.Button

	// Code returns the physical key that triggered the action.
	Code() keys.Code

	// Emit writes one event to the output cell.
	Emit(ev keys.Event)

	// Pause delays the pipeline without yielding to other actions.
	Pause(d time.Duration)

	// Hold gates the sluice: true blocks, false unblocks and replays the
	// gated events. Calls must balance over the button's lifetime.
	Hold(held bool)

	// RegisterInput installs a hook on the inbound stream.
	RegisterInput(h stream.Hook) uint64

	// RegisterOutput installs a hook on the outbound stream.
	RegisterOutput(h stream.Hook) uint64

	// LayerOp mutates the layer stack.
	LayerOp(op keymap.Op)

	// Inject pushes an event onto the head of the rerun buffer.
	Inject(ev keys.Event)

	// Await installs an untimed inbound hook.
	Await(pred func(keys.Event) bool, action func(keys.Event) stream.Outcome)

	// AwaitMy is Await for events concerning this key with the given edge.
	AwaitMy(s keys.Switch, action func(keys.Event) stream.Outcome)
}

// caps binds a runner, a key, and the key's environment into a capability
// set. env is nil for fall-through presses of unmapped keys.
type caps struct {
	r    *Runner
	env  *button.Env
	code keys.Code
}

func (c *caps) Binding() button.Button {
	if c.env == nil {
		return nil
	}
	return c.env.Binding()
}

func (c *caps) Code() keys.Code {
	return c.code
}

func (c *caps) Emit(ev keys.Event) {
	if err := c.r.cell.Put(ev); err != nil {
		c.r.log.Debug("emit of %s dropped: %v", ev, err)
	}
}

func (c *caps) Pause(d time.Duration) {
	time.Sleep(d)
}

func (c *caps) Hold(held bool) {
	if held {
		c.r.sluice.Block()
		return
	}
	c.r.sluice.Unblock()
}

func (c *caps) RegisterInput(h stream.Hook) uint64 {
	return c.r.inHooks.Register(h)
}

func (c *caps) RegisterOutput(h stream.Hook) uint64 {
	return c.r.outHooks.Register(h)
}

func (c *caps) LayerOp(op keymap.Op) {
	c.r.keymap().Apply(op)
}

func (c *caps) Inject(ev keys.Event) {
	c.r.dispatch.Rerun([]keys.Event{ev})
}

func (c *caps) Await(pred func(keys.Event) bool, action func(keys.Event) stream.Outcome) {
	c.RegisterInput(stream.Hook{Predicate: pred, Action: action})
}

func (c *caps) AwaitMy(s keys.Switch, action func(keys.Event) stream.Outcome) {
	code := c.code
	c.Await(func(ev keys.Event) bool {
		return ev.Switch == s && ev.Concerns(code)
	}, action)
}
