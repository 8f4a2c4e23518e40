// Package main is the entry point for the kmonad remapping daemon.
//
// The binary fronts the engine with the terminal playground: typed keys
// run through the real pipeline and the remapped output is printed back.
// Device frontends (evdev grab, uinput emission) are deliberately not part
// of this tree.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelletier/go-toml/v2"

	"github.com/obar/kmonad/internal/app"
	"github.com/obar/kmonad/internal/logging"
	"github.com/obar/kmonad/internal/term"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

// fileConfig is the optional daemon config file.
type fileConfig struct {
	Layout   string `toml:"layout"`
	LogLevel string `toml:"log-level"`
	Watch    bool   `toml:"watch"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "daemon config file (TOML)")
		layoutPath  = flag.String("layout", "", "layout file (TOML or JSON)")
		logLevel    = flag.String("log-level", "", "debug, info, warn or error")
		watch       = flag.Bool("watch", false, "reload the layout on change")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("kmonad %s (%s)\n", version, commit)
		return 0
	}

	cfg := fileConfig{LogLevel: "info"}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading config: %v\n", err)
			return 1
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: parsing config: %v\n", err)
			return 1
		}
	}

	// Flags override the config file.
	if *layoutPath != "" {
		cfg.Layout = *layoutPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *watch {
		cfg.Watch = true
	}

	if cfg.Layout == "" {
		fmt.Fprintln(os.Stderr, "Error: no layout file; pass -layout or set it in the config")
		return 1
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	log := logging.New(logCfg)

	playground, err := term.NewPlayground(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening terminal: %v\n", err)
		return 1
	}
	// Restore the terminal on all exit paths.
	defer playground.Close()

	daemon, err := app.New(app.Options{
		LayoutPath: cfg.Layout,
		Source:     playground,
		Sink:       playground,
		Watch:      cfg.Watch,
		Logger:     log,
	})
	if err != nil {
		playground.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		playground.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
