// Package script runs user Lua handlers for script buttons. Each script
// defines a press function and optionally a release function; both run
// against a small host API exposing the button capability set.
//
// gopher-lua's LState is not goroutine-safe, but every script call happens
// on the app loop goroutine, so a program needs no locking of its own.
package script

import (
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
)

// Script errors.
var (
	// ErrNoPress indicates a script that does not define a press function.
	ErrNoPress = errors.New("script defines no press function")
)

// Host is the capability surface exposed to Lua handlers. The runtime
// implements it on top of the button capability set.
type Host interface {
	// EmitKey writes one key edge to the output.
	EmitKey(s keys.Switch, c keys.Code)
	// TapKey emits a press and release of the key.
	TapKey(c keys.Code)
	// Pause delays the pipeline.
	Pause(d time.Duration)
	// PushLayer, PopLayer and SetBase mutate the layer stack.
	PushLayer(name string)
	PopLayer(name string)
	SetBase(name string)
}

// Engine loads and caches script programs.
type Engine struct {
	log      *logging.Logger
	programs map[string]*Program
}

// NewEngine creates an empty script engine.
func NewEngine(log *logging.Logger) *Engine {
	return &Engine{
		log:      log.WithComponent("script"),
		programs: make(map[string]*Program),
	}
}

// Program returns the compiled program for a named script source, loading
// it on first use.
func (e *Engine) Program(name, source string) (*Program, error) {
	if p, ok := e.programs[name]; ok {
		return p, nil
	}
	p, err := loadProgram(name, source)
	if err != nil {
		return nil, err
	}
	e.log.Debug("loaded script %q", name)
	e.programs[name] = p
	return p, nil
}

// Close releases every loaded program's Lua state.
func (e *Engine) Close() {
	for _, p := range e.programs {
		p.L.Close()
	}
	e.programs = make(map[string]*Program)
}

// Program is one loaded script: a sandboxed Lua state with the press and
// release handlers resolved.
type Program struct {
	name    string
	L       *lua.LState
	press   *lua.LFunction
	release *lua.LFunction
}

// loadProgram compiles the chunk in a sandboxed state and resolves its
// handler functions.
func loadProgram(name, source string) (*Program, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(open.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(open.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("script %s: opening %s: %w", name, open.name, err)
		}
	}

	// The chunk has no business loading files or more code.
	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(fn, lua.LNil)
	}

	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("script %s: %w", name, err)
	}

	press, ok := L.GetGlobal("press").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script %s: %w", name, ErrNoPress)
	}
	release, _ := L.GetGlobal("release").(*lua.LFunction)

	return &Program{
		name:    name,
		L:       L,
		press:   press,
		release: release,
	}, nil
}

// Press runs the script's press handler against the host.
func (p *Program) Press(h Host) error {
	return p.call(p.press, h)
}

// Release runs the script's release handler, if defined.
func (p *Program) Release(h Host) error {
	if p.release == nil {
		return nil
	}
	return p.call(p.release, h)
}

// call binds the host API into the state and invokes fn.
func (p *Program) call(fn *lua.LFunction, h Host) error {
	p.bind(h)
	if err := p.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return fmt.Errorf("script %s: %w", p.name, err)
	}
	return nil
}

// bind installs the host API as globals. Rebinding per call keeps the
// handlers pointed at the capability set of the key currently running.
func (p *Program) bind(h Host) {
	withCode := func(fn func(keys.Code)) lua.LGFunction {
		return func(L *lua.LState) int {
			name := L.CheckString(1)
			code, ok := keys.CodeFromName(name)
			if !ok {
				L.RaiseError("unknown key %q", name)
				return 0
			}
			fn(code)
			return 0
		}
	}

	p.L.SetGlobal("press_key", p.L.NewFunction(withCode(func(c keys.Code) { h.EmitKey(keys.Press, c) })))
	p.L.SetGlobal("release_key", p.L.NewFunction(withCode(func(c keys.Code) { h.EmitKey(keys.Release, c) })))
	p.L.SetGlobal("tap_key", p.L.NewFunction(withCode(h.TapKey)))
	p.L.SetGlobal("pause", p.L.NewFunction(func(L *lua.LState) int {
		ms := L.CheckNumber(1)
		h.Pause(time.Duration(float64(ms)) * time.Millisecond)
		return 0
	}))
	p.L.SetGlobal("layer_push", p.L.NewFunction(func(L *lua.LState) int {
		h.PushLayer(L.CheckString(1))
		return 0
	}))
	p.L.SetGlobal("layer_pop", p.L.NewFunction(func(L *lua.LState) int {
		h.PopLayer(L.CheckString(1))
		return 0
	}))
	p.L.SetGlobal("layer_base", p.L.NewFunction(func(L *lua.LState) int {
		h.SetBase(L.CheckString(1))
		return 0
	}))
}
