//go:build gui

package gui

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/driver/mobile"
	"fyne.io/fyne/v2/widget"

	"talkback/capture"
)

const buttonSize = 160

var (
	colorIdle       = color.RGBA{60, 60, 60, 255}
	colorRecording  = color.RGBA{200, 30, 30, 255}
	colorProcessing = color.RGBA{210, 140, 20, 255}
	colorRing       = color.RGBA{255, 90, 90, 160}
)

// TalkButton is a round hold-to-talk control. Mouse press and touch start a
// hold; release, leaving the button or a cancelled touch end it.
type TalkButton struct {
	widget.BaseWidget
	emit func(Gesture)

	mu      sync.Mutex
	status  capture.Status
	level   float64
	pressed bool

	disc  *canvas.Circle
	ring  *canvas.Circle
	label *canvas.Text
}

var (
	_ desktop.Mouseable = (*TalkButton)(nil)
	_ desktop.Hoverable = (*TalkButton)(nil)
	_ mobile.Touchable  = (*TalkButton)(nil)
)

func NewTalkButton(emit func(Gesture)) *TalkButton {
	b := &TalkButton{emit: emit}
	b.ExtendBaseWidget(b)
	return b
}

func (b *TalkButton) CreateRenderer() fyne.WidgetRenderer {
	b.ring = canvas.NewCircle(color.Transparent)
	b.ring.StrokeColor = colorRing
	b.disc = canvas.NewCircle(colorIdle)
	b.label = canvas.NewText("Hold to talk", color.White)
	b.label.Alignment = fyne.TextAlignCenter
	b.label.TextStyle = fyne.TextStyle{Bold: true}
	return &talkRenderer{b: b, objects: []fyne.CanvasObject{b.ring, b.disc, b.label}}
}

func (b *TalkButton) MinSize() fyne.Size {
	return fyne.NewSize(buttonSize, buttonSize)
}

func (b *TalkButton) SetStatus(s capture.Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	fyne.Do(b.Refresh)
}

func (b *TalkButton) SetLevel(v float64) {
	b.mu.Lock()
	b.level = v
	b.mu.Unlock()
	fyne.Do(b.Refresh)
}

func (b *TalkButton) press(g Gesture) {
	b.mu.Lock()
	b.pressed = true
	b.mu.Unlock()
	b.emit(g)
}

// release emits g only if a press is outstanding.
func (b *TalkButton) release(g Gesture) {
	b.mu.Lock()
	was := b.pressed
	b.pressed = false
	b.mu.Unlock()
	if was {
		b.emit(g)
	}
}

func (b *TalkButton) MouseDown(e *desktop.MouseEvent) {
	if e.Button == desktop.MouseButtonPrimary {
		b.press(PressMouse)
	}
}

func (b *TalkButton) MouseUp(*desktop.MouseEvent) { b.release(ReleaseMouse) }
func (b *TalkButton) MouseIn(*desktop.MouseEvent) {}
func (b *TalkButton) MouseMoved(*desktop.MouseEvent) {}
func (b *TalkButton) MouseOut()                      { b.release(LeaveMouse) }

func (b *TalkButton) TouchDown(*mobile.TouchEvent)   { b.press(PressTouch) }
func (b *TalkButton) TouchUp(*mobile.TouchEvent)     { b.release(ReleaseTouch) }
func (b *TalkButton) TouchCancel(*mobile.TouchEvent) { b.release(ReleaseTouch) }

type talkRenderer struct {
	b       *TalkButton
	objects []fyne.CanvasObject
}

func (r *talkRenderer) Layout(size fyne.Size) {
	d := fyne.Min(size.Width, size.Height)
	off := fyne.NewPos((size.Width-d)/2, (size.Height-d)/2)

	r.b.mu.Lock()
	lvl := r.b.level
	r.b.mu.Unlock()

	inner := d * 0.8
	r.b.disc.Resize(fyne.NewSize(inner, inner))
	r.b.disc.Move(off.Add(fyne.NewPos((d-inner)/2, (d-inner)/2)))

	ring := inner + (d-inner)*float32(min(1, lvl*4))
	r.b.ring.Resize(fyne.NewSize(ring, ring))
	r.b.ring.Move(off.Add(fyne.NewPos((d-ring)/2, (d-ring)/2)))

	r.b.label.Resize(fyne.NewSize(d, r.b.label.MinSize().Height))
	r.b.label.Move(off.Add(fyne.NewPos(0, (d-r.b.label.MinSize().Height)/2)))
}

func (r *talkRenderer) MinSize() fyne.Size { return r.b.MinSize() }

func (r *talkRenderer) Refresh() {
	r.b.mu.Lock()
	status := r.b.status
	r.b.mu.Unlock()

	switch status {
	case capture.Recording:
		r.b.disc.FillColor = colorRecording
		r.b.ring.StrokeWidth = 4
		r.b.label.Text = "Release to send"
	case capture.Processing:
		r.b.disc.FillColor = colorProcessing
		r.b.ring.StrokeWidth = 0
		r.b.label.Text = "Waiting…"
	default:
		r.b.disc.FillColor = colorIdle
		r.b.ring.StrokeWidth = 2
		r.b.label.Text = "Hold to talk"
	}
	r.Layout(r.b.Size())
	for _, o := range r.objects {
		o.Refresh()
	}
}

func (r *talkRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *talkRenderer) Destroy()                     {}
