// Package term adapts a terminal to the pipeline for the interactive
// playground: typed keys become press/release pairs fed to the engine, and
// whatever the engine emits is printed back. It is a development aid, not
// a device driver; terminals report no key-up, so each keystroke is
// synthesized as an immediate press and release.
package term

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
	"github.com/obar/kmonad/internal/stream"
)

// Playground is a tcell screen acting as both key source and key sink.
// Ctrl-C closes the source.
type Playground struct {
	screen tcell.Screen
	log    *logging.Logger

	queue []keys.Event

	mu    sync.Mutex
	lines []string
}

// NewPlayground opens the terminal screen.
func NewPlayground(log *logging.Logger) (*Playground, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return newPlayground(screen, log)
}

// newPlayground wraps an already-created screen; tests pass a simulation
// screen here.
func newPlayground(screen tcell.Screen, log *logging.Logger) (*Playground, error) {
	if err := screen.Init(); err != nil {
		return nil, err
	}

	p := &Playground{
		screen: screen,
		log:    log.WithComponent("term"),
	}
	p.banner()
	return p, nil
}

// Close restores the terminal. Safe to call after a failed Next.
func (p *Playground) Close() {
	p.screen.Fini()
}

// Next blocks for the next typed key, yielding its press first and the
// synthesized release on the following call. It returns stream.ErrClosed
// on Ctrl-C.
func (p *Playground) Next() (keys.Event, error) {
	for {
		if len(p.queue) > 0 {
			ev := p.queue[0]
			p.queue = p.queue[1:]
			return ev, nil
		}

		tev := p.screen.PollEvent()
		switch tev := tev.(type) {
		case *tcell.EventKey:
			if tev.Key() == tcell.KeyCtrlC {
				return keys.Event{}, stream.ErrClosed
			}
			code, ok := codeFor(tev)
			if !ok {
				p.log.Debug("untranslatable key %v ignored", tev.Name())
				continue
			}
			p.echo(fmt.Sprintf("in : tap %s", code))
			p.queue = append(p.queue, keys.ReleaseOf(code))
			return keys.PressOf(code), nil

		case *tcell.EventResize:
			p.screen.Sync()

		case nil:
			return keys.Event{}, stream.ErrClosed
		}
	}
}

// Emit prints an outbound event.
func (p *Playground) Emit(ev keys.Event) error {
	p.echo(fmt.Sprintf("out: %s", ev))
	return nil
}

// banner draws the header line.
func (p *Playground) banner() {
	p.echo("kmonad playground; type keys, Ctrl-C to quit")
}

// echo appends a line and redraws, scrolling to keep the tail visible.
func (p *Playground) echo(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lines = append(p.lines, line)
	_, height := p.screen.Size()
	if height <= 0 {
		return
	}
	if len(p.lines) > height {
		p.lines = p.lines[len(p.lines)-height:]
	}

	p.screen.Clear()
	style := tcell.StyleDefault
	for y, l := range p.lines {
		for x, r := range l {
			p.screen.SetContent(x, y, r, nil, style)
		}
	}
	p.screen.Show()
}

// codeFor translates a tcell key event into a keycode.
func codeFor(ev *tcell.EventKey) (keys.Code, bool) {
	if ev.Key() == tcell.KeyRune {
		r := ev.Rune()
		if r == ' ' {
			return keys.CodeSpace, true
		}
		return keys.CodeFromName(string(r))
	}

	name, ok := specialNames[ev.Key()]
	if !ok {
		return 0, false
	}
	return keys.CodeFromName(name)
}

// specialNames maps tcell special keys onto layout key names.
var specialNames = map[tcell.Key]string{
	tcell.KeyEscape:     "esc",
	tcell.KeyEnter:      "enter",
	tcell.KeyTab:        "tab",
	tcell.KeyBackspace:  "backspace",
	tcell.KeyBackspace2: "backspace",
	tcell.KeyDelete:     "delete",
	tcell.KeyInsert:     "insert",
	tcell.KeyHome:       "home",
	tcell.KeyEnd:        "end",
	tcell.KeyPgUp:       "pageup",
	tcell.KeyPgDn:       "pagedown",
	tcell.KeyUp:         "up",
	tcell.KeyDown:       "down",
	tcell.KeyLeft:       "left",
	tcell.KeyRight:      "right",
	tcell.KeyF1:         "f1",
	tcell.KeyF2:         "f2",
	tcell.KeyF3:         "f3",
	tcell.KeyF4:         "f4",
	tcell.KeyF5:         "f5",
	tcell.KeyF6:         "f6",
	tcell.KeyF7:         "f7",
	tcell.KeyF8:         "f8",
	tcell.KeyF9:         "f9",
	tcell.KeyF10:        "f10",
	tcell.KeyF11:        "f11",
	tcell.KeyF12:        "f12",
}
