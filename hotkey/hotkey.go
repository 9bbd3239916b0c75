// Package hotkey delivers press and release of a global hold-to-talk key.
package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

const DefaultBinding = "ctrl+shift+space"

// Binding is a key plus required modifiers.
type Binding struct {
	Ctrl  bool
	Shift bool
	Key   string
}

func (b Binding) String() string {
	var parts []string
	if b.Ctrl {
		parts = append(parts, "ctrl")
	}
	if b.Shift {
		parts = append(parts, "shift")
	}
	return strings.Join(append(parts, b.Key), "+")
}

func validKey(k string) bool {
	switch {
	case k == "space":
		return true
	case len(k) == 1 && k[0] >= 'a' && k[0] <= 'z':
		return true
	case len(k) >= 2 && k[0] == 'f':
		var n int
		if _, err := fmt.Sscanf(k[1:], "%d", &n); err == nil && fmt.Sprint(n) == k[1:] {
			return n >= 1 && n <= 12
		}
	}
	return false
}

// ParseBinding reads strings like "ctrl+shift+space" or "f9".
func ParseBinding(s string) (Binding, error) {
	var b Binding
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		last := i == len(parts)-1
		switch {
		case !last && (p == "ctrl" || p == "control"):
			b.Ctrl = true
		case !last && p == "shift":
			b.Shift = true
		case last && validKey(p):
			b.Key = p
		default:
			return Binding{}, fmt.Errorf("invalid hotkey %q: unexpected %q", s, p)
		}
	}
	if b.Key == "" {
		return Binding{}, fmt.Errorf("invalid hotkey %q: missing key", s)
	}
	return b, nil
}
