// Package capability picks the first entry of an ordered preference list
// that the host reports as supported.
package capability

import (
	"errors"
	"fmt"
)

var ErrNoneSupported = errors.New("no supported option")

// Pick returns the first element of prefs for which supported returns true.
func Pick[T any](prefs []T, supported func(T) bool) (T, error) {
	for _, p := range prefs {
		if supported(p) {
			return p, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w among %d preferences", ErrNoneSupported, len(prefs))
}
