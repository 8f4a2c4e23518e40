package term

import (
	"errors"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
	"github.com/obar/kmonad/internal/stream"
)

func simPlayground(t *testing.T) (*Playground, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("")
	p, err := newPlayground(screen, logging.Null)
	if err != nil {
		t.Fatalf("creating playground: %v", err)
	}
	t.Cleanup(p.Close)
	return p, screen
}

// TestNext_SynthesizesPressAndRelease verifies one keystroke yields a
// press followed by its release.
func TestNext_SynthesizesPressAndRelease(t *testing.T) {
	p, screen := simPlayground(t)

	screen.InjectKey(tcell.KeyRune, 'a', tcell.ModNone)

	ev, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.IsPress() || ev.Code != keys.CodeA {
		t.Errorf("expected press a, got %s", ev)
	}

	ev, err = p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.IsRelease() || ev.Code != keys.CodeA {
		t.Errorf("expected release a, got %s", ev)
	}
}

func TestNext_SpecialKeys(t *testing.T) {
	p, screen := simPlayground(t)

	screen.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	ev, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeEscape {
		t.Errorf("expected escape, got %s", ev)
	}

	screen.InjectKey(tcell.KeyLeft, 0, tcell.ModNone)
	p.Next() // escape's synthesized release
	ev, err = p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Code != keys.CodeLeft {
		t.Errorf("expected left, got %s", ev)
	}
}

func TestNext_CtrlCCloses(t *testing.T) {
	p, screen := simPlayground(t)

	screen.InjectKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)
	_, err := p.Next()
	if !errors.Is(err, stream.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestEmit_DoesNotFail(t *testing.T) {
	p, _ := simPlayground(t)

	if err := p.Emit(keys.PressOf(keys.CodeA)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
