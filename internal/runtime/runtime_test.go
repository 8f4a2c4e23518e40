package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/obar/kmonad/internal/button"
	"github.com/obar/kmonad/internal/keymap"
	"github.com/obar/kmonad/internal/keys"
	"github.com/obar/kmonad/internal/logging"
	"github.com/obar/kmonad/internal/runtime"
	"github.com/obar/kmonad/internal/script"
	"github.com/obar/kmonad/internal/stream"
)

// Generous timing for the timed primitives so slow test machines do not
// flake: delays are 150ms, and "later" means at least twice that.
const (
	testDelay = 150 * time.Millisecond
	testAfter = 400 * time.Millisecond
	testSoon  = 30 * time.Millisecond
)

// chanSource feeds scripted events into the pipeline.
type chanSource struct {
	ch chan keys.Event
}

func (s *chanSource) Next() (keys.Event, error) {
	ev, ok := <-s.ch
	if !ok {
		return keys.Event{}, stream.ErrClosed
	}
	return ev, nil
}

// recordSink collects what the engine emits.
type recordSink struct {
	mu  sync.Mutex
	evs []keys.Event
}

func (s *recordSink) Emit(ev keys.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
	return nil
}

func (s *recordSink) events() []keys.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]keys.Event, len(s.evs))
	copy(out, s.evs)
	return out
}

// harness is a full pipeline over a scripted source and recording sink.
type harness struct {
	t      *testing.T
	src    *chanSource
	sink   *recordSink
	runner *runtime.Runner
}

func newHarness(t *testing.T, layers map[string]map[keys.Code]button.Button, base string, cfg runtime.Config) *harness {
	t.Helper()

	kmLayers := make(map[string]*keymap.Layer, len(layers))
	for tag, bindings := range layers {
		kmLayers[tag] = keymap.NewLayer(tag, bindings)
	}
	km, err := keymap.New(kmLayers, base, logging.Null)
	if err != nil {
		t.Fatalf("building keymap: %v", err)
	}

	if cfg.ComposeKey == 0 {
		cfg.ComposeKey = keys.CodeCompose
	}

	src := &chanSource{ch: make(chan keys.Event, 64)}
	sink := &recordSink{}

	dispatch := stream.NewDispatch(src, logging.Null)
	inHooks := stream.NewHooks("input", dispatch, logging.Null)
	sluice := stream.NewSluice(inHooks, dispatch, logging.Null)
	cell := stream.NewCell()
	outHooks := stream.NewHooks("output", cell, logging.Null)
	emitter := stream.NewEmitter(outHooks, sink, logging.Null)
	runner := runtime.NewRunner(
		dispatch, inHooks, outHooks, sluice, cell, km,
		script.NewEngine(logging.Null), cfg, logging.Null,
	)

	h := &harness{
		t:      t,
		src:    src,
		sink:   sink,
		runner: runner,
	}

	ctx := context.Background()
	loopDone := make(chan struct{})
	emitDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		defer cell.Close()
		if err := runner.Loop(ctx); err != nil {
			t.Errorf("loop failed: %v", err)
		}
	}()
	go func() {
		defer close(emitDone)
		if err := emitter.Run(ctx); err != nil {
			t.Errorf("emitter failed: %v", err)
		}
	}()

	t.Cleanup(func() {
		close(src.ch)
		select {
		case <-loopDone:
		case <-time.After(2 * time.Second):
			t.Error("loop did not stop")
		}
		select {
		case <-emitDone:
		case <-time.After(2 * time.Second):
			t.Error("emitter did not stop")
		}
	})
	return h
}

// tap feeds a press and its release.
func (h *harness) tap(c keys.Code) {
	h.press(c)
	h.release(c)
}

func (h *harness) press(c keys.Code) {
	h.src.ch <- keys.PressOf(c)
}

func (h *harness) release(c keys.Code) {
	h.src.ch <- keys.ReleaseOf(c)
}

// expect waits for exactly the given output, in order.
func (h *harness) expect(want ...keys.Event) {
	h.t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.sink.events()) >= len(want) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Settle briefly to catch events beyond the expected count.
	time.Sleep(50 * time.Millisecond)
	got := h.sink.events()
	if len(got) != len(want) {
		h.t.Fatalf("expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Code != w.Code || got[i].Switch != w.Switch {
			h.t.Errorf("event %d: expected %s, got %s", i, w, got[i])
		}
	}
}

func pr(c keys.Code) keys.Event  { return keys.PressOf(c) }
func rel(c keys.Code) keys.Event { return keys.ReleaseOf(c) }

func baseOnly(bindings map[keys.Code]button.Button) map[string]map[keys.Code]button.Button {
	return map[string]map[keys.Code]button.Button{"base": bindings}
}

func TestEmit_PassThrough(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeA: button.Emit{Code: keys.CodeA},
	}), "base", runtime.Config{})

	h.tap(keys.CodeA)
	h.expect(pr(keys.CodeA), rel(keys.CodeA))
}

func TestTapNext_Tap(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.TapNext{
			Tap:  button.Emit{Code: keys.CodeA},
			Hold: button.Emit{Code: keys.CodeB},
		},
	}), "base", runtime.Config{})

	h.tap(keys.CodeK)
	h.expect(pr(keys.CodeA), rel(keys.CodeA))
}

// TestTapNext_Hold verifies the hold branch and that the intervening key
// replays after the hold press.
func TestTapNext_Hold(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.TapNext{
			Tap:  button.Emit{Code: keys.CodeA},
			Hold: button.Emit{Code: keys.CodeB},
		},
		keys.CodeX: button.Emit{Code: keys.CodeX},
	}), "base", runtime.Config{})

	h.press(keys.CodeK)
	h.press(keys.CodeX)
	h.release(keys.CodeK)
	h.release(keys.CodeX)

	h.expect(pr(keys.CodeB), pr(keys.CodeX), rel(keys.CodeB), rel(keys.CodeX))
}

func TestTapHold_TapWithinDelay(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.TapHold{
			Delay: testDelay,
			Tap:   button.Emit{Code: keys.CodeA},
			Hold:  button.Emit{Code: keys.CodeB},
		},
	}), "base", runtime.Config{})

	h.press(keys.CodeK)
	time.Sleep(testSoon)
	h.release(keys.CodeK)

	h.expect(pr(keys.CodeA), rel(keys.CodeA))
}

func TestTapHold_Timeout(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.TapHold{
			Delay: testDelay,
			Tap:   button.Emit{Code: keys.CodeA},
			Hold:  button.Emit{Code: keys.CodeB},
		},
	}), "base", runtime.Config{})

	h.press(keys.CodeK)
	time.Sleep(testAfter)
	h.release(keys.CodeK)

	h.expect(pr(keys.CodeB), rel(keys.CodeB))
}

// TestTapHold_GatedKeyReplaysAfterHold verifies a key pressed during the
// delay stays gated and replays after the hold press.
func TestTapHold_GatedKeyReplaysAfterHold(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.TapHold{
			Delay: testDelay,
			Tap:   button.Emit{Code: keys.CodeA},
			Hold:  button.Emit{Code: keys.CodeB},
		},
		keys.CodeX: button.Emit{Code: keys.CodeX},
	}), "base", runtime.Config{})

	h.press(keys.CodeK)
	time.Sleep(testSoon)
	h.press(keys.CodeX)
	time.Sleep(testAfter)
	h.release(keys.CodeX)
	h.release(keys.CodeK)

	h.expect(pr(keys.CodeB), pr(keys.CodeX), rel(keys.CodeX), rel(keys.CodeB))
}

func TestLayerToggle(t *testing.T) {
	h := newHarness(t, map[string]map[keys.Code]button.Button{
		"base": {
			keys.CodeQ: button.Emit{Code: keys.CodeA},
			keys.CodeK: button.LayerToggle{Layer: "nav"},
		},
		"nav": {
			keys.CodeQ: button.Emit{Code: keys.CodeZ},
		},
	}, "base", runtime.Config{})

	h.press(keys.CodeK)
	h.tap(keys.CodeQ)
	h.release(keys.CodeK)
	h.tap(keys.CodeQ)

	h.expect(pr(keys.CodeZ), rel(keys.CodeZ), pr(keys.CodeA), rel(keys.CodeA))
}

func TestLayerSwitch_Persists(t *testing.T) {
	h := newHarness(t, map[string]map[keys.Code]button.Button{
		"base": {
			keys.CodeQ: button.Emit{Code: keys.CodeA},
			keys.CodeK: button.LayerSwitch{Layer: "dvorak"},
		},
		"dvorak": {
			keys.CodeQ: button.Emit{Code: keys.CodeZ},
		},
	}, "base", runtime.Config{})

	h.tap(keys.CodeK)
	h.tap(keys.CodeQ)
	h.tap(keys.CodeQ)

	h.expect(pr(keys.CodeZ), rel(keys.CodeZ), pr(keys.CodeZ), rel(keys.CodeZ))
}

func TestFallThrough_Enabled(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{}),
		"base", runtime.Config{FallThrough: true})

	h.tap(99)
	h.expect(pr(99), rel(99))
}

func TestFallThrough_Disabled(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeA: button.Emit{Code: keys.CodeA},
	}), "base", runtime.Config{FallThrough: false})

	h.tap(99)
	// A mapped tap afterwards proves the unmapped one was dropped whole.
	h.tap(keys.CodeA)
	h.expect(pr(keys.CodeA), rel(keys.CodeA))
}

// TestDuplicatePress_Ignored covers auto-repeat delivering a second press
// without an intervening release.
func TestDuplicatePress_Ignored(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeA: button.Emit{Code: keys.CodeA},
	}), "base", runtime.Config{})

	h.press(keys.CodeA)
	h.press(keys.CodeA)
	h.release(keys.CodeA)

	h.expect(pr(keys.CodeA), rel(keys.CodeA))

	_, duplicates, _ := h.runner.Stats()
	if duplicates != 1 {
		t.Errorf("expected 1 duplicate press counted, got %d", duplicates)
	}
}

func TestAround(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.Around{
			Outer: button.Emit{Code: keys.CodeLeftShift},
			Inner: button.Emit{Code: keys.CodeA},
		},
	}), "base", runtime.Config{})

	h.tap(keys.CodeK)
	h.expect(
		pr(keys.CodeLeftShift), pr(keys.CodeA),
		rel(keys.CodeA), rel(keys.CodeLeftShift),
	)
}

func TestTapMacro(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.TapMacro{Buttons: []button.Button{
			button.Emit{Code: keys.CodeH},
			button.Emit{Code: keys.CodeI},
		}},
	}), "base", runtime.Config{})

	h.tap(keys.CodeK)
	h.expect(
		pr(keys.CodeH), rel(keys.CodeH),
		pr(keys.CodeI), rel(keys.CodeI),
	)
}

func TestComposeSeq_EmitsLeaderFirst(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.ComposeSeq{Buttons: []button.Button{
			button.Emit{Code: keys.CodeE},
		}},
	}), "base", runtime.Config{ComposeKey: keys.CodeCompose})

	h.tap(keys.CodeK)
	h.expect(
		pr(keys.CodeCompose), rel(keys.CodeCompose),
		pr(keys.CodeE), rel(keys.CodeE),
	)
}

func TestBlock_SwallowsPressAndRelease(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.Block{},
		keys.CodeA: button.Emit{Code: keys.CodeA},
	}), "base", runtime.Config{})

	h.tap(keys.CodeK)
	h.tap(keys.CodeA)
	h.expect(pr(keys.CodeA), rel(keys.CodeA))
}

func TestMultiTap_SingleTapAfterGap(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.MultiTap{
			Steps: []button.TapStep{{Gap: testDelay, Button: button.Emit{Code: keys.CodeA}}},
			Last:  button.Emit{Code: keys.CodeB},
		},
	}), "base", runtime.Config{})

	h.tap(keys.CodeK)
	time.Sleep(testAfter)

	h.expect(pr(keys.CodeA), rel(keys.CodeA))
}

func TestMultiTap_SecondTapRunsLast(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.MultiTap{
			Steps: []button.TapStep{{Gap: testDelay, Button: button.Emit{Code: keys.CodeA}}},
			Last:  button.Emit{Code: keys.CodeB},
		},
	}), "base", runtime.Config{})

	h.tap(keys.CodeK)
	time.Sleep(testSoon)
	h.tap(keys.CodeK)

	h.expect(pr(keys.CodeB), rel(keys.CodeB))
}

// TestScriptButton runs a Lua press/release pair through the pipeline.
func TestScriptButton(t *testing.T) {
	h := newHarness(t, baseOnly(map[keys.Code]button.Button{
		keys.CodeK: button.Script{
			Name: "shout",
			Source: `
function press()
  press_key("a")
end
function release()
  release_key("a")
end
`,
		},
	}), "base", runtime.Config{})

	h.tap(keys.CodeK)
	h.expect(pr(keys.CodeA), rel(keys.CodeA))
}

// TestComposite_TapHoldOverLayerToggle exercises nesting: holding the key
// toggles a layer, tapping it emits.
func TestComposite_TapHoldOverLayerToggle(t *testing.T) {
	h := newHarness(t, map[string]map[keys.Code]button.Button{
		"base": {
			keys.CodeK: button.TapHold{
				Delay: testDelay,
				Tap:   button.Emit{Code: keys.CodeEscape},
				Hold:  button.LayerToggle{Layer: "nav"},
			},
			keys.CodeQ: button.Emit{Code: keys.CodeA},
		},
		"nav": {
			keys.CodeQ: button.Emit{Code: keys.CodeLeft},
		},
	}, "base", runtime.Config{})

	// Hold past the delay, use the layer, release, then use the base.
	h.press(keys.CodeK)
	time.Sleep(testAfter)
	h.tap(keys.CodeQ)
	h.release(keys.CodeK)
	h.tap(keys.CodeQ)

	h.expect(
		pr(keys.CodeLeft), rel(keys.CodeLeft),
		pr(keys.CodeA), rel(keys.CodeA),
	)
}
