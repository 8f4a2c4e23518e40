// Package button defines the algebraic tree of button behaviors a layout
// binds to physical keys, plus the per-key environment tracking each
// binding's press/release state. The tree is pure data; the semantics live
// in the runtime package.
package button

import (
	"fmt"
	"strings"
	"time"

	"github.com/obar/kmonad/internal/keys"
)

// Button is a node in the behavior tree. Implementations are the variant
// structs below; the runtime switches on the concrete type.
type Button interface {
	fmt.Stringer
	isButton()
}

// Emit presses and releases a plain keycode.
type Emit struct {
	Code keys.Code
}

// LayerToggle activates a layer while the key is held.
type LayerToggle struct {
	Layer string
}

// LayerSwitch permanently replaces the base layer on press.
type LayerSwitch struct {
	Layer string
}

// TapNext resolves on the next event: if the same key is released before
// any other key is pressed, Tap runs as a full tap; otherwise Hold is
// pressed and held until the key's release.
type TapNext struct {
	Tap  Button
	Hold Button
}

// TapHold resolves by time: release within Delay runs Tap as a full tap,
// otherwise Hold is pressed when the delay expires.
type TapHold struct {
	Delay time.Duration
	Tap   Button
	Hold  Button
}

// TapStep is one step of a MultiTap: the button tapped when the sequence
// ends here, and the gap within which the next press must arrive to
// continue.
type TapStep struct {
	Gap    time.Duration
	Button Button
}

// MultiTap counts consecutive taps of the same key. Each tap within the
// step's gap advances to the next step; a gap expiring taps the current
// step's button. A press beyond the last step runs Last.
type MultiTap struct {
	Steps []TapStep
	Last  Button
}

// Around wraps Inner in Outer: press outer, press inner, then on the key's
// release, release inner and then outer.
type Around struct {
	Outer Button
	Inner Button
}

// TapMacro taps each child in order on press.
type TapMacro struct {
	Buttons []Button
}

// ComposeSeq taps the configured compose leader, then each child in order.
type ComposeSeq struct {
	Buttons []Button
}

// Trans is transparent: the effective button is inherited from lower
// layers. Resolved away by keymap lookup, never dispatched.
type Trans struct{}

// Block consumes the press and its release without emitting anything.
type Block struct{}

// Script runs user Lua press/release handlers against the capability set.
type Script struct {
	// Name identifies the script in logs and errors.
	Name string
	// Source is the Lua chunk. It must define a press function; a
	// release function is optional.
	Source string
}

func (Emit) isButton()        {}
func (LayerToggle) isButton() {}
func (LayerSwitch) isButton() {}
func (TapNext) isButton()     {}
func (TapHold) isButton()     {}
func (MultiTap) isButton()    {}
func (Around) isButton()      {}
func (TapMacro) isButton()    {}
func (ComposeSeq) isButton()  {}
func (Trans) isButton()       {}
func (Block) isButton()       {}
func (Script) isButton()      {}

func (b Emit) String() string        { return fmt.Sprintf("emit(%s)", b.Code) }
func (b LayerToggle) String() string { return fmt.Sprintf("layer-toggle(%s)", b.Layer) }
func (b LayerSwitch) String() string { return fmt.Sprintf("layer-switch(%s)", b.Layer) }
func (b TapNext) String() string     { return fmt.Sprintf("tap-next(%s, %s)", b.Tap, b.Hold) }
func (b TapHold) String() string {
	return fmt.Sprintf("tap-hold(%s, %s, %s)", b.Delay, b.Tap, b.Hold)
}
func (b MultiTap) String() string {
	parts := make([]string, 0, len(b.Steps)+1)
	for _, s := range b.Steps {
		parts = append(parts, fmt.Sprintf("%s@%s", s.Button, s.Gap))
	}
	parts = append(parts, b.Last.String())
	return fmt.Sprintf("multi-tap(%s)", strings.Join(parts, ", "))
}
func (b Around) String() string { return fmt.Sprintf("around(%s, %s)", b.Outer, b.Inner) }
func (b TapMacro) String() string {
	parts := make([]string, len(b.Buttons))
	for i, c := range b.Buttons {
		parts[i] = c.String()
	}
	return fmt.Sprintf("tap-macro(%s)", strings.Join(parts, ", "))
}
func (b ComposeSeq) String() string {
	parts := make([]string, len(b.Buttons))
	for i, c := range b.Buttons {
		parts[i] = c.String()
	}
	return fmt.Sprintf("compose(%s)", strings.Join(parts, ", "))
}
func (Trans) String() string    { return "trans" }
func (Block) String() string    { return "block" }
func (b Script) String() string { return fmt.Sprintf("script(%s)", b.Name) }
