//go:build !gui

package main

import (
	"fmt"
	"os"

	"talkback/audio"
)

// Stubs for non-GUI builds (guiMode is never set)
var guiMode bool
var guiAudioCtx audio.Context

func initGUI() int {
	fmt.Fprintln(os.Stderr, "talkback: built without GUI support (rebuild with -tags gui)")
	return 2
}

func guiSink(chan<- uiCommand) (EventSink, <-chan struct{}) {
	return nil, nil
}
