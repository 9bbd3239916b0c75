//go:build gui

package gui

import (
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"talkback/capture"
	"talkback/conversation"
	"talkback/level"
	"talkback/transport"
)

// Gesture is a user action on the window.
type Gesture int

const (
	PressMouse Gesture = iota
	ReleaseMouse
	LeaveMouse
	PressTouch
	ReleaseTouch
	PlayPending
	ToggleMute
)

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	button  *TalkButton
	status  *widget.Label
	notice  *widget.Label
	log     *widget.Label
	play    *widget.Button
	mute    *widget.Button
	onReady func()

	gestures  chan Gesture
	closed    chan struct{}
	closeOnce sync.Once
}

func NewApp(onReady func()) *App {
	return &App{
		onReady:  onReady,
		gestures: make(chan Gesture, 16),
		closed:   make(chan struct{}),
	}
}

// Gestures delivers button and touch gestures in order.
func (a *App) Gestures() <-chan Gesture { return a.gestures }

// Closed is closed when the window goes away.
func (a *App) Closed() <-chan struct{} { return a.closed }

// emit drops presses and buttons when the loop is behind, but a release
// always gets through so a hold can never be left open.
func (a *App) emit(g Gesture) {
	switch g {
	case ReleaseMouse, LeaveMouse, ReleaseTouch:
		a.gestures <- g
		return
	}
	select {
	case a.gestures <- g:
	default:
	}
}

func Run(a *App) error {
	a.fyneApp = app.NewWithID("io.talkback.gui")
	a.fyneApp.Settings().SetTheme(&darkTheme{})

	if desk, ok := a.fyneApp.(desktop.App); ok {
		menu := fyne.NewMenu("talkback",
			fyne.NewMenuItem("Quit", func() {
				a.fyneApp.Quit()
			}),
		)
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(theme.MediaRecordIcon())
	}

	a.window = a.fyneApp.NewWindow("talkback")
	a.button = NewTalkButton(a.emit)
	a.status = widget.NewLabel("Connecting…")
	a.notice = widget.NewLabel("")
	a.notice.Wrapping = fyne.TextWrapWord
	a.log = widget.NewLabel("")
	a.log.Wrapping = fyne.TextWrapWord
	a.play = widget.NewButtonWithIcon("Play reply", theme.MediaPlayIcon(), func() { a.emit(PlayPending) })
	a.play.Disable()
	a.mute = widget.NewButtonWithIcon("Mute", theme.VolumeMuteIcon(), func() { a.emit(ToggleMute) })

	controls := container.NewHBox(a.play, a.mute)
	top := container.NewVBox(container.NewCenter(a.button), a.status, a.notice, controls)
	a.window.SetContent(container.NewBorder(top, nil, nil, nil, container.NewVScroll(a.log)))
	a.window.Resize(fyne.NewSize(420, 560))
	a.window.SetOnClosed(a.markClosed)
	a.window.Show()

	go a.onReady()

	a.fyneApp.Run()
	a.markClosed()
	return nil
}

func (a *App) markClosed() {
	a.closeOnce.Do(func() { close(a.closed) })
}

func (a *App) Quit() {
	if a.fyneApp != nil {
		fyne.Do(a.fyneApp.Quit)
	}
}

// EventSink implementation. Widget updates are marshalled onto the UI thread.

func (a *App) Status(s capture.Status) {
	a.button.SetStatus(s)
}

func (a *App) Connection(s transport.State) {
	fyne.Do(func() { a.status.SetText("Server: " + s.String()) })
}

func (a *App) AudioLevel(r level.Reading) {
	a.button.SetLevel(r.Level)
}

func (a *App) Message(m conversation.Message) {
	who := "You"
	if m.Sender == conversation.Agent {
		who = "Agent"
	}
	fyne.Do(func() {
		text := a.log.Text
		if text != "" {
			text += "\n"
		}
		a.log.SetText(text + who + ": " + m.Text)
	})
}

func (a *App) Notice(text string) {
	fyne.Do(func() { a.notice.SetText(text) })
}

func (a *App) Banner(text string) {
	fyne.Do(func() {
		a.notice.SetText(text)
		a.notice.TextStyle = fyne.TextStyle{Bold: true}
		a.notice.Refresh()
	})
}

func (a *App) PendingAudio(pending bool) {
	fyne.Do(func() {
		if pending {
			a.play.Enable()
		} else {
			a.play.Disable()
		}
	})
}

func (a *App) Muted(muted bool) {
	fyne.Do(func() {
		if muted {
			a.mute.SetText("Unmute")
			a.mute.SetIcon(theme.VolumeUpIcon())
		} else {
			a.mute.SetText("Mute")
			a.mute.SetIcon(theme.VolumeMuteIcon())
		}
	})
}

func (a *App) DeviceLine(text string) {}
