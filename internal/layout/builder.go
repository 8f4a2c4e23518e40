package layout

import (
	"fmt"
	"time"

	"github.com/obar/kmonad/internal/button"
	"github.com/obar/kmonad/internal/keys"
)

// builder turns decoded button specs into button trees, resolving alias
// references as it goes.
type builder struct {
	gap      time.Duration
	aliases  map[string]any
	resolved map[string]button.Button
	visiting map[string]bool
}

// button interprets one spec. A string is shorthand: "@name" references an
// alias, "trans"/"_" is transparent, "block" swallows the key, anything
// else emits the named key. A table holds exactly one primitive.
func (b *builder) button(spec any) (button.Button, error) {
	switch v := spec.(type) {
	case string:
		return b.fromString(v)
	case map[string]any:
		return b.fromTable(v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadButton, spec)
	}
}

func (b *builder) fromString(s string) (button.Button, error) {
	switch {
	case len(s) > 1 && s[0] == '@':
		return b.alias(s[1:])
	case s == "trans" || s == "_":
		return button.Trans{}, nil
	case s == "block":
		return button.Block{}, nil
	default:
		code, ok := keys.CodeFromName(s)
		if !ok {
			return nil, fmt.Errorf("%q: %w", s, ErrUnknownKey)
		}
		return button.Emit{Code: code}, nil
	}
}

// alias resolves a named alias, memoizing the result and rejecting cycles.
func (b *builder) alias(name string) (button.Button, error) {
	if btn, ok := b.resolved[name]; ok {
		return btn, nil
	}
	spec, ok := b.aliases[name]
	if !ok {
		return nil, fmt.Errorf("@%s: %w", name, ErrDanglingAlias)
	}

	if b.visiting == nil {
		b.visiting = make(map[string]bool)
	}
	if b.visiting[name] {
		return nil, fmt.Errorf("@%s: %w", name, ErrAliasCycle)
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	btn, err := b.button(spec)
	if err != nil {
		return nil, fmt.Errorf("@%s: %w", name, err)
	}
	b.resolved[name] = btn
	return btn, nil
}

func (b *builder) fromTable(table map[string]any) (button.Button, error) {
	if len(table) != 1 {
		return nil, fmt.Errorf("%w: want exactly one primitive, got %d", ErrBadButton, len(table))
	}

	for kind, body := range table {
		switch kind {
		case "emit":
			name, ok := body.(string)
			if !ok {
				return nil, fmt.Errorf("emit: %w", ErrBadButton)
			}
			code, ok := keys.CodeFromName(name)
			if !ok {
				return nil, fmt.Errorf("emit %q: %w", name, ErrUnknownKey)
			}
			return button.Emit{Code: code}, nil

		case "layer-toggle":
			tag, ok := body.(string)
			if !ok {
				return nil, fmt.Errorf("layer-toggle: %w", ErrBadButton)
			}
			return button.LayerToggle{Layer: tag}, nil

		case "layer-switch":
			tag, ok := body.(string)
			if !ok {
				return nil, fmt.Errorf("layer-switch: %w", ErrBadButton)
			}
			return button.LayerSwitch{Layer: tag}, nil

		case "tap-next":
			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("tap-next: %w", ErrBadButton)
			}
			tap, err := b.field(m, "tap")
			if err != nil {
				return nil, fmt.Errorf("tap-next: %w", err)
			}
			hold, err := b.field(m, "hold")
			if err != nil {
				return nil, fmt.Errorf("tap-next: %w", err)
			}
			return button.TapNext{Tap: tap, Hold: hold}, nil

		case "tap-hold":
			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("tap-hold: %w", ErrBadButton)
			}
			tap, err := b.field(m, "tap")
			if err != nil {
				return nil, fmt.Errorf("tap-hold: %w", err)
			}
			hold, err := b.field(m, "hold")
			if err != nil {
				return nil, fmt.Errorf("tap-hold: %w", err)
			}
			delay := b.gap
			if ms, ok := toInt(m["delay"]); ok {
				delay = time.Duration(ms) * time.Millisecond
			}
			return button.TapHold{Delay: delay, Tap: tap, Hold: hold}, nil

		case "multi-tap":
			return b.multiTap(body)

		case "around":
			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("around: %w", ErrBadButton)
			}
			outer, err := b.field(m, "outer")
			if err != nil {
				return nil, fmt.Errorf("around: %w", err)
			}
			inner, err := b.field(m, "inner")
			if err != nil {
				return nil, fmt.Errorf("around: %w", err)
			}
			return button.Around{Outer: outer, Inner: inner}, nil

		case "tap-macro":
			children, err := b.list(body)
			if err != nil {
				return nil, fmt.Errorf("tap-macro: %w", err)
			}
			return button.TapMacro{Buttons: children}, nil

		case "compose":
			children, err := b.list(body)
			if err != nil {
				return nil, fmt.Errorf("compose: %w", err)
			}
			return button.ComposeSeq{Buttons: children}, nil

		case "script":
			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("script: %w", ErrBadButton)
			}
			name, _ := m["name"].(string)
			source, _ := m["source"].(string)
			if name == "" || source == "" {
				return nil, fmt.Errorf("script: name and source required: %w", ErrBadButton)
			}
			return button.Script{Name: name, Source: source}, nil

		default:
			return nil, fmt.Errorf("%w: unknown primitive %q", ErrBadButton, kind)
		}
	}
	return nil, ErrBadButton
}

// multiTap reads { steps = [{gap?, button}...], last }. Steps without an
// explicit gap use the layout default.
func (b *builder) multiTap(body any) (button.Button, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("multi-tap: %w", ErrBadButton)
	}
	rawSteps, ok := m["steps"].([]any)
	if !ok || len(rawSteps) == 0 {
		return nil, fmt.Errorf("multi-tap: at least one step required: %w", ErrBadButton)
	}

	steps := make([]button.TapStep, 0, len(rawSteps))
	for i, rawStep := range rawSteps {
		sm, ok := rawStep.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("multi-tap step %d: %w", i, ErrBadButton)
		}
		btn, err := b.field(sm, "button")
		if err != nil {
			return nil, fmt.Errorf("multi-tap step %d: %w", i, err)
		}
		gap := b.gap
		if ms, ok := toInt(sm["gap"]); ok {
			gap = time.Duration(ms) * time.Millisecond
		}
		steps = append(steps, button.TapStep{Gap: gap, Button: btn})
	}

	last, err := b.field(m, "last")
	if err != nil {
		return nil, fmt.Errorf("multi-tap: %w", err)
	}
	return button.MultiTap{Steps: steps, Last: last}, nil
}

// field interprets a required sub-spec.
func (b *builder) field(m map[string]any, name string) (button.Button, error) {
	spec, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("missing %q: %w", name, ErrBadButton)
	}
	return b.button(spec)
}

// list interprets a sequence of sub-specs.
func (b *builder) list(body any) ([]button.Button, error) {
	raw, ok := body.([]any)
	if !ok || len(raw) == 0 {
		return nil, ErrBadButton
	}
	out := make([]button.Button, 0, len(raw))
	for i, spec := range raw {
		btn, err := b.button(spec)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, btn)
	}
	return out, nil
}
