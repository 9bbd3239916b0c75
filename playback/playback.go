// Package playback plays synthesized responses and keeps track of every
// clip that is currently audible so a new recording can silence them all.
package playback

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"talkback/audio"
)

var (
	ErrBlocked   = errors.New("playback blocked until user gesture")
	ErrHeld      = errors.New("playback held while the user is speaking")
	ErrNoPending = errors.New("no pending audio")
)

// Pending is a response whose playback was refused by the autoplay gate.
type Pending struct {
	Payload string
	Format  string
}

type item struct {
	id       uuid.UUID
	url      string
	cancel   context.CancelFunc
	detached bool
}

type Controller struct {
	dev audio.PlaybackDevice
	log zerolog.Logger
	tap  atomic.Pointer[func([]int16)]
	rate atomic.Int64
	held atomic.Bool

	mu        sync.Mutex
	active    map[uuid.UUID]*item
	blobs     map[string]audio.Clip
	pending   *Pending
	onPending func(bool)

	wg sync.WaitGroup
}

func New(dev audio.PlaybackDevice, logger zerolog.Logger) *Controller {
	return &Controller{
		dev:    dev,
		log:    logger,
		active: make(map[uuid.UUID]*item),
		blobs:  make(map[string]audio.Clip),
	}
}

// SetTap installs fn to observe samples as they are handed to the device.
func (c *Controller) SetTap(fn func([]int16)) {
	if fn == nil {
		c.tap.Store(nil)
		return
	}
	c.tap.Store(&fn)
}

// OnPending registers fn to be told when pending audio appears or clears.
func (c *Controller) OnPending(fn func(bool)) {
	c.mu.Lock()
	c.onPending = fn
	c.mu.Unlock()
}

// Hold parks every response that arrives while on is true as the pending
// clip instead of playing it.
func (c *Controller) Hold(on bool) {
	if c.held.Swap(on) != on {
		c.log.Debug().Bool("held", on).Msg("playback_hold")
	}
}

// observer feeds the tap mono samples from a clip and records its rate.
func (c *Controller) observer(rate, channels int) func([]int16) {
	return func(samples []int16) {
		tap := c.tap.Load()
		if tap == nil {
			return
		}
		c.rate.Store(int64(rate))
		(*tap)(downmix(samples, channels))
	}
}

// SampleRate is the rate of the samples most recently passed to the tap,
// or 0 before anything has played.
func (c *Controller) SampleRate() int { return int(c.rate.Load()) }

func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// Play decodes a base64 payload and starts it. A refusal by the autoplay
// gate stores the payload as the pending clip and returns ErrBlocked. While
// held the payload is stored the same way and ErrHeld is returned.
func (c *Controller) Play(payload, format string) error {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	clip, err := Decode(data, format)
	if err != nil {
		return err
	}
	clip.Tap = c.observer(clip.SampleRate, clip.Channels)

	if c.held.Load() {
		c.setPending(&Pending{Payload: payload, Format: format})
		c.log.Info().Str("format", format).Msg("playback_held")
		return ErrHeld
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	it := &item{id: id, url: "blob:talkback/" + id.String(), cancel: cancel}

	c.mu.Lock()
	c.blobs[it.url] = clip
	c.active[id] = it
	c.mu.Unlock()

	done, err := c.dev.Play(ctx, clip)
	if err != nil {
		c.release(it)
		if errors.Is(err, audio.ErrPlaybackBlocked) {
			c.setPending(&Pending{Payload: payload, Format: format})
			c.log.Info().Str("format", format).Msg("playback_blocked")
			return ErrBlocked
		}
		c.log.Error().Err(err).Msg("playback_start_failed")
		return fmt.Errorf("start playback: %w", err)
	}

	c.log.Info().
		Str("id", id.String()).
		Str("format", format).
		Int("rate", clip.SampleRate).
		Int("frames", clip.Frames()).
		Msg("playback_start")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := <-done
		c.mu.Lock()
		detached := it.detached
		c.mu.Unlock()
		if detached {
			return
		}
		c.release(it)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error().Err(err).Str("id", id.String()).Msg("playback_error")
			return
		}
		c.log.Info().Str("id", id.String()).Msg("playback_done")
	}()
	return nil
}

// release revokes the blob URL and drops the item from the active set.
func (c *Controller) release(it *item) {
	it.cancel()
	c.mu.Lock()
	delete(c.blobs, it.url)
	delete(c.active, it.id)
	c.mu.Unlock()
}

// StopAll silences every active clip. Completion handlers of stopped clips
// are detached first so they never touch the set again.
func (c *Controller) StopAll() {
	c.mu.Lock()
	items := make([]*item, 0, len(c.active))
	for _, it := range c.active {
		it.detached = true
		items = append(items, it)
		delete(c.blobs, it.url)
	}
	clear(c.active)
	c.mu.Unlock()

	for _, it := range items {
		it.cancel()
	}
	if len(items) > 0 {
		c.log.Info().Int("count", len(items)).Msg("playback_stop_all")
	}
}

func (c *Controller) setPending(p *Pending) {
	c.mu.Lock()
	replaced := c.pending != nil
	c.pending = p
	fn := c.onPending
	c.mu.Unlock()
	if replaced {
		c.log.Debug().Msg("pending_audio_replaced")
	}
	if fn != nil {
		fn(p != nil)
	}
}

// PlayPending plays and clears the pending clip.
func (c *Controller) PlayPending() error {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()
	if p == nil {
		return ErrNoPending
	}
	c.setPending(nil)
	return c.Play(p.Payload, p.Format)
}

func (c *Controller) Pending() (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Pending{}, false
	}
	return *c.pending, true
}

// Active returns the number of clips currently playing.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Blobs returns the number of registered blob URLs.
func (c *Controller) Blobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blobs)
}

// Close stops everything and waits for device goroutines to finish.
func (c *Controller) Close() {
	c.StopAll()
	c.wg.Wait()
}
