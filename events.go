package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"talkback/audio"
	"talkback/capture"
	"talkback/conversation"
	"talkback/level"
	"talkback/playback"
	"talkback/recorder"
	"talkback/transport"
)

// EventSink abstracts the display layer so the TUI, the GUI and headless
// mode all receive the same session events.
type EventSink interface {
	Status(s capture.Status)
	Connection(s transport.State)
	AudioLevel(r level.Reading)
	Message(m conversation.Message)
	Notice(text string)
	Banner(text string)
	PendingAudio(pending bool)
	Muted(muted bool)
	DeviceLine(text string)
}

const bannerRestart = "Connection lost. Restart talkback to reconnect."

// describeError turns a component error into one line of status text.
func describeError(err error) string {
	var serverErr transport.ServerError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &serverErr):
		if serverErr.Local {
			return "Received a message the client could not read"
		}
		return "Server error: " + serverErr.Error()
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access denied"
	case errors.Is(err, recorder.ErrUnsupportedFormat):
		return "No supported recording format"
	case errors.Is(err, playback.ErrUnsupportedFormat):
		return "Response audio format not supported"
	case errors.Is(err, playback.ErrBlocked), errors.Is(err, audio.ErrPlaybackBlocked):
		return "Response audio ready, press p to play"
	case errors.Is(err, transport.ErrReconnectExhausted):
		return bannerRestart
	case errors.Is(err, transport.ErrConnection):
		return "Not connected to server"
	case errors.Is(err, capture.ErrUpload):
		return "Could not send recording"
	}
	return fmt.Sprintf("Error: %v", err)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

// headlessSink prints conversation lines and notices for -tui=false.
type headlessSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newHeadlessSink(out io.Writer) *headlessSink {
	return &headlessSink{out: out}
}

func (h *headlessSink) printf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, format+"\n", args...)
}

func (h *headlessSink) Status(s capture.Status)      { h.printf("[%s]", s) }
func (h *headlessSink) Connection(s transport.State) { h.printf("connection: %s", s) }
func (h *headlessSink) AudioLevel(level.Reading)     {}
func (h *headlessSink) Notice(text string)           { h.printf("%s", text) }
func (h *headlessSink) Banner(text string)           { h.printf("!! %s", text) }
func (h *headlessSink) DeviceLine(text string)       { h.printf("%s", text) }

func (h *headlessSink) Message(m conversation.Message) {
	h.printf("%s: %s", m.Sender, m.Text)
}

func (h *headlessSink) PendingAudio(pending bool) {
	if pending {
		h.printf("response audio waiting")
	}
}

func (h *headlessSink) Muted(muted bool) {
	if muted {
		h.printf("agent audio muted")
	} else {
		h.printf("agent audio unmuted")
	}
}
