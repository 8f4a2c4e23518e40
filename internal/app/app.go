// Package app assembles the daemon: it builds the pull chain over a key
// source, the emitter over a key sink, and coordinates their lifecycles,
// live reload, and shutdown accounting.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/obar/kmonad/internal/layout"
	"github.com/obar/kmonad/internal/logging"
	"github.com/obar/kmonad/internal/runtime"
	"github.com/obar/kmonad/internal/script"
	"github.com/obar/kmonad/internal/stream"
)

// Configuration errors.
var (
	// ErrNoSource indicates options without a key source.
	ErrNoSource = errors.New("no key source configured")

	// ErrNoSink indicates options without a key sink.
	ErrNoSink = errors.New("no key sink configured")
)

// Options configures the daemon.
type Options struct {
	// LayoutPath is the layout file to load and, when Watch is set,
	// monitor for changes.
	LayoutPath string

	// Source produces raw key events.
	Source stream.Source

	// Sink consumes remapped key events.
	Sink stream.Sink

	// Watch enables live reload of the layout file.
	Watch bool

	// Logger receives daemon output. Defaults to the standard logger.
	Logger *logging.Logger
}

// App is one assembled daemon instance.
type App struct {
	opts    Options
	log     *logging.Logger
	session string

	dispatch *stream.Dispatch
	inHooks  *stream.Hooks
	sluice   *stream.Sluice
	cell     *stream.Cell
	outHooks *stream.Hooks
	emitter  *stream.Emitter
	runner   *runtime.Runner
	scripts  *script.Engine
}

// New loads the layout and wires the pipeline.
func New(opts Options) (*App, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if opts.Sink == nil {
		return nil, ErrNoSink
	}
	if opts.Logger == nil {
		opts.Logger = logging.New(logging.DefaultConfig())
	}

	session := uuid.New().String()
	log := opts.Logger.WithField("session", session)

	l, err := layout.Load(opts.LayoutPath)
	if err != nil {
		return nil, fmt.Errorf("loading layout: %w", err)
	}
	km, err := l.Keymap(log)
	if err != nil {
		return nil, fmt.Errorf("building keymap: %w", err)
	}

	a := &App{
		opts:    opts,
		log:     log,
		session: session,
		scripts: script.NewEngine(log),
	}

	a.dispatch = stream.NewDispatch(opts.Source, log)
	a.inHooks = stream.NewHooks("input", a.dispatch, log)
	a.sluice = stream.NewSluice(a.inHooks, a.dispatch, log)
	a.cell = stream.NewCell()
	a.outHooks = stream.NewHooks("output", a.cell, log)
	a.emitter = stream.NewEmitter(a.outHooks, opts.Sink, log)
	a.runner = runtime.NewRunner(
		a.dispatch, a.inHooks, a.outHooks, a.sluice, a.cell, km, a.scripts,
		runtime.Config{FallThrough: l.FallThrough, ComposeKey: l.ComposeKey},
		log,
	)

	log.Info("layout %s loaded: base %q, %d layer(s), fallthrough %v",
		opts.LayoutPath, l.Base, len(l.Layers), l.FallThrough)
	return a, nil
}

// Run drives the daemon until the source fails or the context is
// cancelled. The loop, the emitter, and the optional layout watcher run
// under one errgroup; the first failure tears the others down.
func (a *App) Run(ctx context.Context) error {
	var watcher *layout.Watcher
	if a.opts.Watch {
		w, err := layout.NewWatcher(a.opts.LayoutPath, a.reload, a.log)
		if err != nil {
			return fmt.Errorf("watching layout: %w", err)
		}
		watcher = w
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Closing the cell lets the emitter finish once the loop stops,
		// and cancelling unwinds the watcher and the shutdown goroutine.
		defer cancel()
		defer a.cell.Close()
		return a.runner.Loop(ctx)
	})

	g.Go(func() error {
		return a.emitter.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		a.cell.Close()
		switch src := a.opts.Source.(type) {
		case io.Closer:
			src.Close()
		case interface{ Close() }:
			src.Close()
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	err := g.Wait()
	a.scripts.Close()
	a.log.Info("shutdown: %s", a.Snapshot())
	return err
}

// reload re-parses the layout and stages the new keymap. A broken file
// keeps the running map.
func (a *App) reload() {
	l, err := layout.Load(a.opts.LayoutPath)
	if err != nil {
		a.log.Error("reload failed, keeping current layout: %v", err)
		return
	}
	km, err := l.Keymap(a.log)
	if err != nil {
		a.log.Error("reload failed, keeping current layout: %v", err)
		return
	}
	a.runner.SwapKeymap(km)
	a.log.Info("layout reloaded: base %q, %d layer(s)", l.Base, len(l.Layers))
}

// Session returns the daemon instance id stamped on log output.
func (a *App) Session() string {
	return a.session
}
