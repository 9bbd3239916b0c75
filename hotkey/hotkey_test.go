package hotkey

import "testing"

func TestParseBinding(t *testing.T) {
	tests := []struct {
		in      string
		want    Binding
		wantErr bool
	}{
		{"ctrl+shift+space", Binding{Ctrl: true, Shift: true, Key: "space"}, false},
		{" Control + Space ", Binding{Ctrl: true, Key: "space"}, false},
		{"f9", Binding{Key: "f9"}, false},
		{"shift+f12", Binding{Shift: true, Key: "f12"}, false},
		{"ctrl+r", Binding{Ctrl: true, Key: "r"}, false},
		{"f13", Binding{}, true},
		{"f01", Binding{}, true},
		{"ctrl+shift", Binding{}, true},
		{"space+ctrl", Binding{}, true},
		{"alt+space", Binding{}, true},
		{"", Binding{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBinding(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBinding(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBinding(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseBinding(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBindingString(t *testing.T) {
	b, _ := ParseBinding("shift+ctrl+space")
	if b.String() != DefaultBinding {
		t.Errorf("String = %q, want %q", b.String(), DefaultBinding)
	}
}

func TestFakeHotkey(t *testing.T) {
	hk := NewFake()
	hk.SimKeydown()
	hk.SimKeyup()
	select {
	case <-hk.Keydown():
	default:
		t.Fatal("keydown not delivered")
	}
	select {
	case <-hk.Keyup():
	default:
		t.Fatal("keyup not delivered")
	}
}
