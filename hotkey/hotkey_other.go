//go:build !linux

package hotkey

import (
	"fmt"

	"golang.design/x/hotkey"
)

var letterKeys = map[byte]hotkey.Key{
	'a': hotkey.KeyA, 'b': hotkey.KeyB, 'c': hotkey.KeyC, 'd': hotkey.KeyD, 'e': hotkey.KeyE,
	'f': hotkey.KeyF, 'g': hotkey.KeyG, 'h': hotkey.KeyH, 'i': hotkey.KeyI, 'j': hotkey.KeyJ,
	'k': hotkey.KeyK, 'l': hotkey.KeyL, 'm': hotkey.KeyM, 'n': hotkey.KeyN, 'o': hotkey.KeyO,
	'p': hotkey.KeyP, 'q': hotkey.KeyQ, 'r': hotkey.KeyR, 's': hotkey.KeyS, 't': hotkey.KeyT,
	'u': hotkey.KeyU, 'v': hotkey.KeyV, 'w': hotkey.KeyW, 'x': hotkey.KeyX, 'y': hotkey.KeyY,
	'z': hotkey.KeyZ,
}

var functionKeys = []hotkey.Key{
	hotkey.KeyF1, hotkey.KeyF2, hotkey.KeyF3, hotkey.KeyF4, hotkey.KeyF5, hotkey.KeyF6,
	hotkey.KeyF7, hotkey.KeyF8, hotkey.KeyF9, hotkey.KeyF10, hotkey.KeyF11, hotkey.KeyF12,
}

func keyFor(name string) (hotkey.Key, error) {
	switch {
	case name == "space":
		return hotkey.KeySpace, nil
	case len(name) == 1:
		if k, ok := letterKeys[name[0]]; ok {
			return k, nil
		}
	case len(name) > 1 && name[0] == 'f':
		var n int
		if _, err := fmt.Sscanf(name[1:], "%d", &n); err == nil && n >= 1 && n <= 12 {
			return functionKeys[n-1], nil
		}
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}

type xHotkey struct {
	binding Binding
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	stop    chan struct{}
}

func New(b Binding) Hotkey {
	return &xHotkey{
		binding: b,
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *xHotkey) Register() error {
	key, err := keyFor(h.binding.Key)
	if err != nil {
		return err
	}
	var mods []hotkey.Modifier
	if h.binding.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if h.binding.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	h.hk = hotkey.New(mods, key)
	if err := h.hk.Register(); err != nil {
		return fmt.Errorf("register %s: %w", h.binding, err)
	}
	h.stop = make(chan struct{})
	go h.forward(h.hk.Keydown(), h.keydown)
	go h.forward(h.hk.Keyup(), h.keyup)
	return nil
}

func (h *xHotkey) forward(in <-chan hotkey.Event, out chan struct{}) {
	for {
		select {
		case <-h.stop:
			return
		case <-in:
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}
}

func (h *xHotkey) Unregister() {
	if h.hk == nil {
		return
	}
	close(h.stop)
	h.hk.Unregister()
	h.hk = nil
}

func (h *xHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *xHotkey) Keyup() <-chan struct{}   { return h.keyup }
