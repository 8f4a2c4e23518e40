// Package runtime gives the button tree its semantics: it runs press and
// release handlers against the capability set, drives the app loop, and
// applies the fall-through policy for unmapped keys.
package runtime

import (
	"sync/atomic"
	"time"

	"github.com/obar/kmonad/internal/button"
	"github.com/obar/kmonad/internal/keymap"
	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
	"github.com/obar/kmonad/internal/script"
	"github.com/obar/kmonad/internal/stream"
)

// Config carries the runner's policy settings.
type Config struct {
	// FallThrough controls unmapped keys: when true their raw press and
	// release pass through; when false both are dropped.
	FallThrough bool

	// ComposeKey is the leader emitted ahead of compose sequences.
	ComposeKey keys.Code
}

// Runner owns the input side of the pipeline: it pulls events through the
// sluice, resolves presses through the keymap, and executes button actions.
// All runner state is touched from the loop goroutine only, except the
// pending keymap pointer used by live reload.
type Runner struct {
	dispatch *stream.Dispatch
	inHooks  *stream.Hooks
	outHooks *stream.Hooks
	sluice   *stream.Sluice
	cell     *stream.Cell
	scripts  *script.Engine
	cfg      Config
	log      *logging.Logger

	km      *keymap.Keymap
	pending atomic.Pointer[keymap.Keymap]

	pressed    atomic.Uint64
	duplicates atomic.Uint64
	unmapped   atomic.Uint64
}

// NewRunner wires a runner over the pipeline stages.
func NewRunner(
	dispatch *stream.Dispatch,
	inHooks *stream.Hooks,
	outHooks *stream.Hooks,
	sluice *stream.Sluice,
	cell *stream.Cell,
	km *keymap.Keymap,
	scripts *script.Engine,
	cfg Config,
	log *logging.Logger,
) *Runner {
	return &Runner{
		dispatch: dispatch,
		inHooks:  inHooks,
		outHooks: outHooks,
		sluice:   sluice,
		cell:     cell,
		scripts:  scripts,
		cfg:      cfg,
		km:       km,
		log:      log.WithComponent("runtime"),
	}
}

// keymap returns the active keymap.
func (r *Runner) keymap() *keymap.Keymap {
	return r.km
}

// SwapKeymap stages a replacement keymap. The loop adopts it before
// dispatching the next press, so in-flight release hooks keep the
// environments they closed over.
func (r *Runner) SwapKeymap(km *keymap.Keymap) {
	r.pending.Store(km)
}

// releaseFn is the release behavior a press handler leaves behind.
type releaseFn func()

// deferred carries a release decided after the press returns, as in
// tap-next and tap-hold, whose hold branch is chosen by a hook or timeout.
type deferred struct {
	rel releaseFn
}

func (d *deferred) run() {
	if d.rel != nil {
		d.rel()
	}
}

// pressButton runs a button's press behavior and returns its release
// behavior, nil when the release has nothing to do. Composite buttons
// nest by composing the returned functions.
func (r *Runner) pressButton(c *caps, b button.Button) releaseFn {
	switch b := b.(type) {
	case button.Emit:
		c.Emit(keys.PressOf(b.Code))
		return func() { c.Emit(keys.ReleaseOf(b.Code)) }

	case button.LayerToggle:
		c.LayerOp(keymap.Push{Layer: b.Layer})
		return func() { c.LayerOp(keymap.Pop{Layer: b.Layer}) }

	case button.LayerSwitch:
		c.LayerOp(keymap.Base{Layer: b.Layer})
		return nil

	case button.TapNext:
		return r.pressTapNext(c, b)

	case button.TapHold:
		return r.pressTapHold(c, b)

	case button.MultiTap:
		r.multiTapStep(c, b, 0)
		return nil

	case button.Around:
		relOuter := r.pressButton(c, b.Outer)
		relInner := r.pressButton(c, b.Inner)
		return func() {
			if relInner != nil {
				relInner()
			}
			if relOuter != nil {
				relOuter()
			}
		}

	case button.TapMacro:
		for _, child := range b.Buttons {
			r.tap(c, child)
		}
		return nil

	case button.ComposeSeq:
		c.Emit(keys.PressOf(r.cfg.ComposeKey))
		c.Emit(keys.ReleaseOf(r.cfg.ComposeKey))
		for _, child := range b.Buttons {
			r.tap(c, child)
		}
		return nil

	case button.Block:
		return nil

	case button.Trans:
		// Lookup resolves transparency; a dispatched Trans is a layer
		// table mistake.
		r.log.Warn("transparent button dispatched for %s; ignored", c.code)
		return nil

	case button.Script:
		return r.pressScript(c, b)

	default:
		r.log.Warn("unhandled button %T for %s; ignored", b, c.code)
		return nil
	}
}

// tap runs a full press/release cycle of a button.
func (r *Runner) tap(c *caps, b button.Button) {
	if rel := r.pressButton(c, b); rel != nil {
		rel()
	}
}

// pressTapNext gates the stream and decides on the next event: this key's
// release means tap, anything else means hold.
func (r *Runner) pressTapNext(c *caps, b button.TapNext) releaseFn {
	st := &deferred{}
	c.Hold(true)
	c.Await(func(keys.Event) bool { return true }, func(ev keys.Event) stream.Outcome {
		if ev.IsRelease() && ev.Concerns(c.code) {
			c.Hold(false)
			r.tap(c, b.Tap)
			return stream.NoCatch
		}
		c.Hold(false)
		st.rel = r.pressButton(c, b.Hold)
		return stream.NoCatch
	})
	return st.run
}

// pressTapHold gates the stream and decides by time: release within the
// delay means tap, the deadline expiring means hold.
func (r *Runner) pressTapHold(c *caps, b button.TapHold) releaseFn {
	st := &deferred{}
	c.Hold(true)
	c.RegisterInput(stream.Hook{
		Predicate: func(ev keys.Event) bool {
			return ev.IsRelease() && ev.Concerns(c.code)
		},
		Action: func(keys.Event) stream.Outcome {
			c.Hold(false)
			r.tap(c, b.Tap)
			return stream.NoCatch
		},
		Timeout: b.Delay,
		OnTimeout: func() {
			c.Hold(false)
			st.rel = r.pressButton(c, b.Hold)
		},
	})
	return st.run
}

// multiTapStep advances a multi-tap sequence. Step i waits for the next
// press of this key within the step's gap: a match advances, the gap
// expiring taps the step's button. Running past the last step presses the
// final button until the key's release.
func (r *Runner) multiTapStep(c *caps, b button.MultiTap, i int) {
	if i >= len(b.Steps) {
		rel := r.pressButton(c, b.Last)
		c.AwaitMy(keys.Release, func(keys.Event) stream.Outcome {
			if rel != nil {
				rel()
			}
			return stream.Catch
		})
		return
	}

	step := b.Steps[i]
	c.RegisterInput(stream.Hook{
		Predicate: func(ev keys.Event) bool {
			return ev.IsPress() && ev.Concerns(c.code)
		},
		Action: func(keys.Event) stream.Outcome {
			r.multiTapStep(c, b, i+1)
			return stream.Catch
		},
		Timeout: step.Gap,
		OnTimeout: func() {
			r.tap(c, step.Button)
		},
	})
}

// pressScript runs a script button's Lua press handler and returns the
// release handler.
func (r *Runner) pressScript(c *caps, b button.Script) releaseFn {
	prog, err := r.scripts.Program(b.Name, b.Source)
	if err != nil {
		r.log.Error("script %q failed to load: %v", b.Name, err)
		return nil
	}
	host := &scriptHost{c: c}
	if err := prog.Press(host); err != nil {
		r.log.Error("script %q press failed: %v", b.Name, err)
		return nil
	}
	return func() {
		if err := prog.Release(host); err != nil {
			r.log.Error("script %q release failed: %v", b.Name, err)
		}
	}
}

// scriptHost adapts the capability set to the script host API.
type scriptHost struct {
	c *caps
}

func (h *scriptHost) EmitKey(s keys.Switch, code keys.Code) {
	h.c.Emit(keys.NewEvent(s, code))
}

func (h *scriptHost) TapKey(code keys.Code) {
	h.c.Emit(keys.PressOf(code))
	h.c.Emit(keys.ReleaseOf(code))
}

func (h *scriptHost) Pause(d time.Duration) {
	h.c.Pause(d)
}

func (h *scriptHost) PushLayer(name string) {
	h.c.LayerOp(keymap.Push{Layer: name})
}

func (h *scriptHost) PopLayer(name string) {
	h.c.LayerOp(keymap.Pop{Layer: name})
}

func (h *scriptHost) SetBase(name string) {
	h.c.LayerOp(keymap.Base{Layer: name})
}

// Stats reports lifetime press handling counts: presses dispatched,
// duplicate presses ignored, and unmapped presses seen.
func (r *Runner) Stats() (pressed, duplicates, unmapped uint64) {
	return r.pressed.Load(), r.duplicates.Load(), r.unmapped.Load()
}
