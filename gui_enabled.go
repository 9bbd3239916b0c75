//go:build gui

package main

import (
	"fmt"
	"os"
	"runtime"

	"talkback/audio"
	"talkback/gui"
)

var guiMode bool
var guiApp *gui.App

// Audio context initialized on main thread for macOS Core Audio compatibility
var guiAudioCtx audio.Context

func initGUI() int {
	guiMode = true

	var err error
	guiAudioCtx, err = audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		return 1
	}
	defer guiAudioCtx.Close()

	// Lock this goroutine to OS thread for Fyne/GLFW
	runtime.LockOSThread()

	code := 0
	guiApp = gui.NewApp(func() {
		code = run()
		guiApp.Quit()
	})
	if err := gui.Run(guiApp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return code
}

// guiSink hands the window to the session and maps its gestures onto
// commands for the event loop.
func guiSink(commands chan<- uiCommand) (EventSink, <-chan struct{}) {
	go func() {
		for g := range guiApp.Gestures() {
			var cmd uiCommand
			switch g {
			case gui.PressMouse:
				cmd = cmdMouseDown
			case gui.ReleaseMouse:
				cmd = cmdMouseUp
			case gui.LeaveMouse:
				cmd = cmdMouseLeave
			case gui.PressTouch:
				cmd = cmdTouchStart
			case gui.ReleaseTouch:
				cmd = cmdTouchEnd
			case gui.PlayPending:
				cmd = cmdPlayPending
			case gui.ToggleMute:
				cmd = cmdToggleMute
			default:
				continue
			}
			commands <- cmd
		}
	}()
	return guiApp, guiApp.Closed()
}
