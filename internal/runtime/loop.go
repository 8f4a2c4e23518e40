package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/stream"
)

// Loop pulls events through the sluice until the source fails or the
// context is cancelled. Presses dispatch to their mapped button; releases
// are left to the hooks their presses installed.
func (r *Runner) Loop(ctx context.Context) error {
	r.log.Info("loop started, base layer %q", r.km.Base())
	for {
		r.adoptPending()

		ev, err := r.sluice.Pull()
		if err != nil {
			if errors.Is(err, stream.ErrClosed) || ctx.Err() != nil {
				r.log.Info("loop stopping")
				return nil
			}
			return fmt.Errorf("pulling input event: %w", err)
		}
		if ctx.Err() != nil {
			r.log.Info("loop stopping")
			return nil
		}

		if ev.IsPress() {
			r.pressKey(ev)
		}
	}
}

// adoptPending installs a keymap staged by live reload.
func (r *Runner) adoptPending() {
	if km := r.pending.Swap(nil); km != nil {
		r.km = km
		r.log.Info("keymap reloaded, base layer %q", km.Base())
	}
}

// pressKey resolves a press through the keymap and runs the bound button.
// The release is armed here: a hook that marks the environment, runs the
// press's release behavior, and catches the event.
func (r *Runner) pressKey(ev keys.Event) {
	env := r.km.Lookup(ev.Code)
	if env == nil {
		r.unmapped.Add(1)
		r.fallThrough(ev)
		return
	}

	if !env.CanPress() {
		// Auto-repeat can deliver a second press without an intervening
		// release. Dropped, pending review of repeat handling.
		r.duplicates.Add(1)
		r.log.Debug("duplicate press of %s ignored", ev.Code)
		return
	}

	env.MarkPress()
	r.pressed.Add(1)

	c := &caps{r: r, env: env, code: ev.Code}
	rel := r.pressButton(c, env.Binding())
	c.AwaitMy(keys.Release, func(keys.Event) stream.Outcome {
		env.MarkRelease()
		if rel != nil {
			rel()
		}
		return stream.Catch
	})
}

// fallThrough applies the unmapped-key policy: pass the raw press and its
// release through, or drop both.
func (r *Runner) fallThrough(ev keys.Event) {
	if !r.cfg.FallThrough {
		r.log.Debug("unmapped key %s dropped", ev.Code)
		return
	}

	c := &caps{r: r, code: ev.Code}
	c.Emit(keys.PressOf(ev.Code))
	c.AwaitMy(keys.Release, func(keys.Event) stream.Outcome {
		c.Emit(keys.ReleaseOf(ev.Code))
		return stream.Catch
	})
}
