package playback

import (
	"context"
	"sync/atomic"

	"talkback/audio"
)

// AutoplayGate refuses playback until a user gesture has activated it,
// mirroring the policy of hosts that only allow sound after interaction.
type AutoplayGate struct {
	dev      audio.PlaybackDevice
	unlocked atomic.Bool
}

func NewAutoplayGate(dev audio.PlaybackDevice, requireGesture bool) *AutoplayGate {
	g := &AutoplayGate{dev: dev}
	g.unlocked.Store(!requireGesture)
	return g
}

// Activate records a user gesture. It is idempotent.
func (g *AutoplayGate) Activate() { g.unlocked.Store(true) }

func (g *AutoplayGate) Unlocked() bool { return g.unlocked.Load() }

func (g *AutoplayGate) Play(ctx context.Context, clip audio.Clip) (<-chan error, error) {
	if !g.unlocked.Load() {
		return nil, audio.ErrPlaybackBlocked
	}
	return g.dev.Play(ctx, clip)
}

func (g *AutoplayGate) Close() { g.dev.Close() }
