// Package keymap maintains the layered mapping from physical keycodes to
// buttons: a table of named layers and an ordered stack of the currently
// active ones. Resolution walks the stack top-down, falling through
// transparent entries.
package keymap

import (
	"errors"
	"fmt"

	"github.com/obar/kmonad/internal/button"
	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
)

// Keymap errors.
var (
	// ErrUnknownLayer indicates an operation named a layer that does not
	// exist in the layer table.
	ErrUnknownLayer = errors.New("unknown layer")

	// ErrLayerNotActive indicates a pop for a layer not on the stack.
	ErrLayerNotActive = errors.New("layer not on stack")
)

// Layer maps keycodes to button environments.
type Layer struct {
	name    string
	entries map[keys.Code]*button.Env
}

// NewLayer builds a layer, creating one environment per binding. The
// environments live for the process.
func NewLayer(name string, bindings map[keys.Code]button.Button) *Layer {
	entries := make(map[keys.Code]*button.Env, len(bindings))
	for code, b := range bindings {
		entries[code] = button.NewEnv(b)
	}
	return &Layer{name: name, entries: entries}
}

// Name returns the layer tag.
func (l *Layer) Name() string {
	return l.name
}

// Entry returns the environment bound at code, or nil.
func (l *Layer) Entry(code keys.Code) *button.Env {
	return l.entries[code]
}

// Len returns the number of bindings in the layer.
func (l *Layer) Len() int {
	return len(l.entries)
}

// Keymap is the layer table plus the active stack. The stack is never
// empty; its tail is always the base layer.
type Keymap struct {
	layers map[string]*Layer
	stack  []string
	log    *logging.Logger
}

// New creates a keymap with the given base layer active.
func New(layers map[string]*Layer, base string, log *logging.Logger) (*Keymap, error) {
	if _, ok := layers[base]; !ok {
		return nil, fmt.Errorf("base layer %q: %w", base, ErrUnknownLayer)
	}
	return &Keymap{
		layers: layers,
		stack:  []string{base},
		log:    log.WithComponent("keymap"),
	}, nil
}

// Lookup resolves a keycode through the stack top-down, skipping
// transparent entries. It returns nil when no layer binds the code.
func (k *Keymap) Lookup(code keys.Code) *button.Env {
	for _, tag := range k.stack {
		layer := k.layers[tag]
		if layer == nil {
			continue
		}
		env := layer.Entry(code)
		if env == nil {
			continue
		}
		if _, ok := env.Binding().(button.Trans); ok {
			continue
		}
		return env
	}
	return nil
}

// PushLayer activates a layer on top of the stack.
func (k *Keymap) PushLayer(tag string) error {
	if _, ok := k.layers[tag]; !ok {
		return fmt.Errorf("push %q: %w", tag, ErrUnknownLayer)
	}
	k.stack = append([]string{tag}, k.stack...)
	k.log.Debug("pushed layer %q, stack %v", tag, k.stack)
	return nil
}

// PopLayer deactivates the topmost occurrence of a layer. The base entry
// at the tail is never popped. Re-entrant toggles pop their own push.
func (k *Keymap) PopLayer(tag string) error {
	if _, ok := k.layers[tag]; !ok {
		return fmt.Errorf("pop %q: %w", tag, ErrUnknownLayer)
	}
	for i := 0; i < len(k.stack)-1; i++ {
		if k.stack[i] == tag {
			k.stack = append(k.stack[:i], k.stack[i+1:]...)
			k.log.Debug("popped layer %q, stack %v", tag, k.stack)
			return nil
		}
	}
	return fmt.Errorf("pop %q: %w", tag, ErrLayerNotActive)
}

// SetBase replaces the base layer at the tail of the stack. Setting the
// base to its current value re-applies without error.
func (k *Keymap) SetBase(tag string) error {
	if _, ok := k.layers[tag]; !ok {
		return fmt.Errorf("set base %q: %w", tag, ErrUnknownLayer)
	}
	k.stack[len(k.stack)-1] = tag
	k.log.Debug("base layer now %q, stack %v", tag, k.stack)
	return nil
}

// WithLayer calls fn with the named layer, without touching the stack.
func (k *Keymap) WithLayer(tag string, fn func(*Layer)) error {
	layer, ok := k.layers[tag]
	if !ok {
		return fmt.Errorf("with layer %q: %w", tag, ErrUnknownLayer)
	}
	if fn != nil {
		fn(layer)
	}
	return nil
}

// Base returns the current base layer tag.
func (k *Keymap) Base() string {
	return k.stack[len(k.stack)-1]
}

// Stack returns a copy of the active stack, top first.
func (k *Keymap) Stack() []string {
	out := make([]string, len(k.stack))
	copy(out, k.stack)
	return out
}

// Layers returns the layer tags in the table.
func (k *Keymap) Layers() []string {
	tags := make([]string, 0, len(k.layers))
	for tag := range k.layers {
		tags = append(tags, tag)
	}
	return tags
}
