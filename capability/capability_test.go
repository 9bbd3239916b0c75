package capability

import (
	"errors"
	"testing"
)

func TestPick(t *testing.T) {
	supported := func(s string) bool { return s == "b" || s == "c" }

	tests := []struct {
		name    string
		prefs   []string
		want    string
		wantErr bool
	}{
		{"first supported wins", []string{"a", "b", "c"}, "b", false},
		{"order respected", []string{"c", "b"}, "c", false},
		{"none supported", []string{"a", "d"}, "", true},
		{"empty list", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pick(tt.prefs, supported)
			if tt.wantErr {
				if !errors.Is(err, ErrNoneSupported) {
					t.Fatalf("err = %v, want ErrNoneSupported", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Pick = %q, want %q", got, tt.want)
			}
		})
	}
}
