package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"mediadash/artcache"
	"mediadash/artwork"
	"mediadash/commands"
	"mediadash/config"
	"mediadash/ingest"
	"mediadash/mailbox"
	"mediadash/protocol"
	"mediadash/recorder"
	"mediadash/stats"
	"mediadash/transport"
	"mediadash/ui"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

const (
	dashboardTargetFPS = 30
	dashboardMaxEvents = 1000
	shutdownGrace      = 2 * time.Second
	artCacheDirName    = "artwork.pebble"
)

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main UI selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from the flag, env or default location.
// Key aspects: A missing default file falls back to built-in defaults; an
// explicitly named file must exist.
// Upstream: main startup.
// Downstream: config.ResolvePath, config.Load and config.Default.
func loadDashConfig(flagValue string) (*config.Config, string, error) {
	path := config.ResolvePath(flagValue)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, cfg.LoadedFrom, nil
	}
	if path == config.DefaultPath && errors.Is(err, os.ErrNotExist) {
		return config.Default(), "built-in defaults", nil
	}
	return nil, path, err
}

// Purpose: Resolve the effective UI mode.
// Key aspects: auto picks tview only on an interactive console; tview without
// a console degrades to headless.
// Upstream: main UI selection.
// Downstream: None.
func resolveUIMode(mode string, tty bool) (string, string) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case config.UIModeHeadless:
		return config.UIModeHeadless, "mode=headless"
	case config.UIModeTview:
		if !tty {
			return config.UIModeHeadless, "tview requires an interactive console"
		}
		return config.UIModeTview, ""
	default:
		if !tty {
			return config.UIModeHeadless, "stdout is not a terminal"
		}
		return config.UIModeTview, ""
	}
}

// Purpose: Build the debouncer from defaults plus configured overrides.
// Key aspects: Unknown class names are logged and skipped.
// Upstream: main command setup.
// Downstream: commands.DefaultWindows, commands.ParseClass.
func buildDebouncer(overrides map[string]time.Duration) *commands.Debouncer {
	windows := commands.DefaultWindows()
	for name, window := range overrides {
		class, ok := commands.ParseClass(name)
		if !ok {
			log.Printf("Commands: ignoring debounce window for unknown class %q", name)
			continue
		}
		windows[class] = window
	}
	return commands.NewDebouncer(windows)
}

// Purpose: Open the optional artwork disk cache.
// Key aspects: Failure is logged and the decoder runs without a cache.
// Upstream: main artwork setup.
// Downstream: artcache.Open.
func openArtCache(cfg config.ArtworkConfig, size int) *artcache.Store {
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return nil
	}
	path := filepath.Join(cfg.CacheDir, artCacheDirName)
	store, err := artcache.Open(path, size, cfg.CacheBytes)
	if err != nil {
		log.Printf("Artwork cache: disabled (%v)", err)
		return nil
	}
	log.Printf("Artwork cache: %s", path)
	return store
}

// Purpose: Open the optional snapshot recorder.
// Key aspects: NewRecorder preflights the file and moves a corrupt or
// outdated one aside; any failure leaves the recorder disabled rather than
// blocking startup.
// Upstream: main recorder setup.
// Downstream: recorder.NewRecorder.
func openRecorder(cfg config.RecorderConfig) *recorder.Recorder {
	if !cfg.Enabled {
		return nil
	}
	rec, err := recorder.NewRecorder(cfg.Path, cfg.MaxRows)
	if err != nil {
		log.Printf("Recorder: disabled (%v)", err)
		return nil
	}
	log.Printf("Recorder: writing snapshots to %s (max %d rows)", cfg.Path, cfg.MaxRows)
	return rec
}

// Purpose: Program entrypoint; wires configuration, transport, ingestion
// and presentation.
// Key aspects: Ingestion runs on the driver goroutine, presentation on its
// own ticker; they meet only at the mailbox, artwork buffer and command queue.
// Upstream: OS process start.
// Downstream: Startup helpers, goroutines and the UI surface.
func main() {
	configFlag := flag.String("config", "", "config file or directory (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	uiFlag := flag.String("ui", "", "override ui.mode (auto, tview, headless)")
	showVersion := flag.Bool("version", false, "print version and exit")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("mediadash", Version)
		return
	}

	cfg, configSource, err := loadDashConfig(*configFlag)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *uiFlag != "" {
		cfg.UI.Mode = *uiFlag
	}
	if *printConfig {
		cfg.Print()
		return
	}

	logMux, err := setupLogging(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging: file sink disabled (%v)\n", err)
	}
	logMux.SetDeduper(newLogDeduper(defaultLogDedupeWindow, defaultLogDedupeMaxKeys))
	log.SetFlags(0)
	log.SetOutput(logMux)
	log.Printf("mediadash %s starting; configuration from %s", Version, configSource)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uiMode, reason := resolveUIMode(cfg.UI.Mode, isStdoutTTY())
	var surface ui.Surface
	var dash *ui.Dashboard
	if uiMode == config.UIModeTview {
		dash = ui.NewDashboard(ui.DashboardOptions{
			TargetFPS:   dashboardTargetFPS,
			EnableMouse: true,
			MaxEvents:   dashboardMaxEvents,
			OnQuit:      cancel,
		})
		dash.WaitReady()
		logMux.SetConsoleSink(dash.SystemWriter(), false)
		surface = dash
	} else {
		log.Printf("UI disabled (%s)", reason)
		surface = ui.NewHeadless(os.Stdout, nil)
	}

	tracker := stats.NewTracker()
	snapshots := &mailbox.Mailbox[protocol.Snapshot]{}

	format := artwork.Format{Width: cfg.Artwork.Width, Height: cfg.Artwork.Height, BigEndian: cfg.Artwork.BigEndian}
	artBuf := artwork.NewBuffer(format)
	artCache := openArtCache(cfg.Artwork, format.Size())
	var cache artwork.Cache
	if artCache != nil {
		cache = artCache
	}
	artDecoder := artwork.NewDecoder(artBuf, cfg.Artwork.HashPrefixBytes, cache)

	processor := commands.NewProcessor(cfg.Commands.QueueDepth, cfg.Commands.MaxBytes, buildDebouncer(cfg.UI.Debounce()))
	rec := openRecorder(cfg.Recorder)

	presenter := ui.NewPresenter(ui.PresenterOptions{
		Mailbox: snapshots,
		Artwork: artBuf,
		Sink:    processor,
		Surface: surface,
	})
	dash.SetControls(presenter)

	opts := ingest.Options{
		MaxLine: cfg.Framer.MaxLineBytes,
		Mailbox: snapshots,
		Artwork: artDecoder,
		OnAck: func(action string) {
			presenter.OnAck(action)
			surface.AppendEvent(ui.EventAck, action)
		},
		Stats: tracker,
	}
	if rec != nil {
		opts.Recorder = rec
	}
	pipeline := ingest.New(opts)

	dialer, err := transport.NewDialer(cfg.Transport)
	if err != nil {
		log.Fatalf("Transport: %v", err)
	}
	endpoint := dialer.String()
	driver := transport.NewDriver(dialer, pipeline, processor, cfg.Transport.ReconnectDelay(), cfg.Transport.ReconnectMax())
	driver.OnState = func(connected bool, ep string) {
		presenter.SetLink(connected, ep)
		state := "down"
		if connected {
			state = "up"
		}
		surface.AppendEvent(ui.EventTransport, ep+" "+state)
	}
	presenter.SetLink(false, endpoint)

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Transport: driver stopped: %v", err)
		}
	}()
	presenterDone := make(chan struct{})
	go func() {
		defer close(presenterDone)
		presenter.Run(ctx, cfg.UI.Tick())
	}()

	statsSrc := &statsSources{
		tracker:  tracker,
		mailbox:  snapshots,
		commands: processor,
		driver:   driver,
		endpoint: endpoint,
		recorder: rec,
		artCache: artCache,
		surface:  surface,
		fileOnly: logMux.WriteFileOnlyLine,
		headless: dash == nil,
	}
	logMux.SetRotateHook(statsRotateHook(statsSrc, logMux.WriteFileOnlyLine))
	go displayStats(cfg.UI.StatsInterval(), statsSrc, ctx.Done())
	startIngestHealthMonitor(ctx, endpoint, ingestHealthInterval, driverHealthSource(driver, tracker, func() uint64 {
		_, overwritten := snapshots.Stats()
		return overwritten
	}))

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Printf("Dashboard is running against %s. Press Ctrl+C to stop.", endpoint)
	log.Printf("Statistics will be displayed every %s...", cfg.UI.StatsInterval())

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		log.Println("Quit requested")
	}
	log.Println("Shutting down gracefully...")
	cancel()

	waitOrTimeout(driverDone, shutdownGrace, "Transport: driver did not stop in time")
	waitOrTimeout(presenterDone, shutdownGrace, "UI: presenter did not stop in time")
	if n := processor.Discard(); n > 0 {
		log.Printf("Commands: discarded %d unsent command(s)", n)
	}

	// Restore plain console logging before the dashboard goes away.
	if dash != nil {
		dash.Stop()
		logMux.SetConsoleSink(os.Stdout, true)
	}
	if rec != nil {
		if err := rec.Close(); err != nil {
			log.Printf("Recorder: close failed: %v", err)
		}
	}
	if artCache != nil {
		if err := artCache.Close(); err != nil {
			log.Printf("Artwork cache: close failed: %v", err)
		}
	}
	for _, line := range statsSrc.lines() {
		log.Print(line)
	}
	log.Println("Shutdown complete")
	_ = logMux.Close()
}

func waitOrTimeout(done <-chan struct{}, timeout time.Duration, msg string) {
	select {
	case <-done:
	case <-time.After(timeout):
		log.Print(msg)
	}
}
