// Package layout loads declarative layout files into resolved button maps.
// A layout names its layers, the base layer, alias definitions, and policy
// settings. TOML and JSON files carry the same structure; aliases are
// resolved at load time, so the engine never sees a reference.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"

	"github.com/obar/kmonad/internal/button"
	"github.com/obar/kmonad/internal/keymap"
	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
)

// Layout errors.
var (
	// ErrNoLayers indicates a layout file without a layers table.
	ErrNoLayers = errors.New("layout defines no layers")

	// ErrUnknownKey indicates a key name the name table does not know.
	ErrUnknownKey = errors.New("unknown key name")

	// ErrBadButton indicates a button spec that cannot be interpreted.
	ErrBadButton = errors.New("invalid button spec")

	// ErrAliasCycle indicates aliases that reference each other.
	ErrAliasCycle = errors.New("alias cycle")

	// ErrDanglingAlias indicates a reference to an undefined alias.
	ErrDanglingAlias = errors.New("undefined alias")

	// ErrDanglingLayer indicates a button naming a layer the layout does
	// not define.
	ErrDanglingLayer = errors.New("undefined layer")
)

// Defaults applied when a layout file omits the setting.
const (
	DefaultGap = 200 * time.Millisecond
)

// Layout is a fully resolved button map plus the engine policy settings
// the file carries.
type Layout struct {
	// Base is the layer active at startup.
	Base string

	// FallThrough controls unmapped keys.
	FallThrough bool

	// ComposeKey is the leader for compose sequences.
	ComposeKey keys.Code

	// Gap is the default multi-tap step gap.
	Gap time.Duration

	// Layers maps layer tags to their keycode bindings.
	Layers map[string]map[keys.Code]button.Button
}

// Load reads a layout file, choosing the format by extension: .json is
// parsed with gjson, everything else as TOML.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout %s: %w", path, err)
	}

	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("parsing layout %s: %w", path, ErrBadButton)
		}
		parsed, _ := gjson.ParseBytes(data).Value().(map[string]any)
		if parsed == nil {
			return nil, fmt.Errorf("parsing layout %s: top level is not an object", path)
		}
		raw = parsed
	} else {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing layout %s: %w", path, err)
		}
	}

	l, err := build(raw)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

// build assembles a Layout from the decoded file structure.
func build(raw map[string]any) (*Layout, error) {
	l := &Layout{
		FallThrough: true,
		ComposeKey:  keys.CodeCompose,
		Gap:         DefaultGap,
		Layers:      make(map[string]map[keys.Code]button.Button),
	}

	if v, ok := raw["fallthrough"].(bool); ok {
		l.FallThrough = v
	}
	if v, ok := raw["compose"].(string); ok {
		code, ok := keys.CodeFromName(v)
		if !ok {
			return nil, fmt.Errorf("compose %q: %w", v, ErrUnknownKey)
		}
		l.ComposeKey = code
	}
	if ms, ok := toInt(raw["default-gap"]); ok {
		l.Gap = time.Duration(ms) * time.Millisecond
	}

	aliases, _ := raw["aliases"].(map[string]any)
	b := &builder{gap: l.Gap, aliases: aliases, resolved: make(map[string]button.Button)}

	layersRaw, _ := raw["layers"].(map[string]any)
	if len(layersRaw) == 0 {
		return nil, ErrNoLayers
	}
	for tag, entries := range layersRaw {
		table, ok := entries.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("layer %q: %w", tag, ErrBadButton)
		}
		bindings := make(map[keys.Code]button.Button, len(table))
		for name, spec := range table {
			code, ok := keys.CodeFromName(name)
			if !ok {
				return nil, fmt.Errorf("layer %q key %q: %w", tag, name, ErrUnknownKey)
			}
			btn, err := b.button(spec)
			if err != nil {
				return nil, fmt.Errorf("layer %q key %q: %w", tag, name, err)
			}
			bindings[code] = btn
		}
		l.Layers[tag] = bindings
	}

	base, _ := raw["base"].(string)
	if base == "" {
		return nil, fmt.Errorf("base layer: %w", ErrDanglingLayer)
	}
	l.Base = base

	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// validate checks that every layer reference points at a defined layer.
func (l *Layout) validate() error {
	if _, ok := l.Layers[l.Base]; !ok {
		return fmt.Errorf("base layer %q: %w", l.Base, ErrDanglingLayer)
	}
	for tag, bindings := range l.Layers {
		for code, b := range bindings {
			if err := l.checkLayers(b); err != nil {
				return fmt.Errorf("layer %q key %s: %w", tag, code, err)
			}
		}
	}
	return nil
}

// checkLayers walks a button tree for dangling layer references.
func (l *Layout) checkLayers(b button.Button) error {
	ref := func(tag string) error {
		if _, ok := l.Layers[tag]; !ok {
			return fmt.Errorf("layer %q: %w", tag, ErrDanglingLayer)
		}
		return nil
	}

	switch b := b.(type) {
	case button.LayerToggle:
		return ref(b.Layer)
	case button.LayerSwitch:
		return ref(b.Layer)
	case button.TapNext:
		if err := l.checkLayers(b.Tap); err != nil {
			return err
		}
		return l.checkLayers(b.Hold)
	case button.TapHold:
		if err := l.checkLayers(b.Tap); err != nil {
			return err
		}
		return l.checkLayers(b.Hold)
	case button.MultiTap:
		for _, s := range b.Steps {
			if err := l.checkLayers(s.Button); err != nil {
				return err
			}
		}
		return l.checkLayers(b.Last)
	case button.Around:
		if err := l.checkLayers(b.Outer); err != nil {
			return err
		}
		return l.checkLayers(b.Inner)
	case button.TapMacro:
		for _, c := range b.Buttons {
			if err := l.checkLayers(c); err != nil {
				return err
			}
		}
		return nil
	case button.ComposeSeq:
		for _, c := range b.Buttons {
			if err := l.checkLayers(c); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// Keymap builds the runtime keymap from the resolved layers.
func (l *Layout) Keymap(log *logging.Logger) (*keymap.Keymap, error) {
	layers := make(map[string]*keymap.Layer, len(l.Layers))
	for tag, bindings := range l.Layers {
		layers[tag] = keymap.NewLayer(tag, bindings)
	}
	return keymap.New(layers, l.Base, log)
}

// toInt accepts the integer encodings the two decoders produce.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
