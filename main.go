package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"talkback/audio"
	"talkback/hotkey"
	"talkback/log"
	"talkback/shutdown"
)

var version = "dev"

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// resolveDevice applies -device and -setup. nil means the system default.
func resolveDevice(ctx audio.Context, cfg Config) (*audio.DeviceInfo, error) {
	switch {
	case cfg.Device != "":
		return audio.FindDevice(ctx, cfg.Device)
	case cfg.Setup:
		return audio.SelectDevice(ctx)
	}
	return nil, nil
}

// run is the whole program after platform setup. It returns the exit code.
func run() int {
	if err := loadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.Version {
		fmt.Printf("talkback %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	initCrashLog()

	actx := guiAudioCtx
	if actx == nil {
		actx, err = audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
			return 1
		}
		defer actx.Close()
	}

	dev, err := resolveDevice(actx, cfg)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v, using default device\n", err)
		dev = nil
	}

	commands := make(chan uiCommand, 16)
	var sink EventSink
	var uiDone <-chan struct{}
	switch {
	case guiMode:
		sink, uiDone = guiSink(commands)
	case cfg.TUI:
		tuiMu.Lock()
		tuiProgram = NewTUIProgram(commands, cfg.HoldKey.String())
		tuiMu.Unlock()
		sink = tuiSink{p: tuiProgram}
		done := make(chan struct{})
		uiDone = done
		go func() {
			defer close(done)
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
		}()
	default:
		sink = newHeadlessSink(os.Stdout)
	}

	sess, err := newVoiceSession(cfg, actx, dev, sink)
	if err != nil {
		log.Errorf("session init error: %v", err)
		if tuiProgram != nil {
			tuiProgram.Kill()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	sink.DeviceLine(deviceLineText(dev))
	sess.Start(ctx)
	defer sess.Close()

	hk := hotkey.New(cfg.HoldKey)
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		sink.Notice(fmt.Sprintf("Hold key unavailable (%v), use the talk button", err))
	} else {
		defer hk.Unregister()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown_signal")
			quitUI()
			return 0
		case <-uiDone:
			return 0
		case <-hk.Keydown():
			log.Info("hotkey_down")
			sess.ctrl.KeyDown()
		case <-hk.Keyup():
			log.Info("hotkey_up")
			sess.ctrl.KeyUp()
		case cmd := <-commands:
			sess.dispatch(cmd)
		}
	}
}

func quitUI() {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Quit()
	}
}
