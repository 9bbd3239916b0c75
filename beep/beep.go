// Package beep plays short synthesized cues when recording starts, stops or fails.
package beep

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"talkback/audio"
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// Player renders cues on a playback device. A nil device or a disabled
// player turns every cue into a no-op.
type Player struct {
	dev      audio.PlaybackDevice
	log      zerolog.Logger
	disabled bool

	startSamples []int16
	endSamples   []int16
	errorSamples []int16

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(dev audio.PlaybackDevice, disabled bool, logger zerolog.Logger) *Player {
	return &Player{
		dev:          dev,
		log:          logger,
		disabled:     disabled || dev == nil,
		startSamples: generateTick(sampleRate, startFreq, 0.03, startVolume, startDecay),
		endSamples:   generateTick(sampleRate, endFreq, 0.05, endVolume, endDecay),
		errorSamples: generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay),
	}
}

func (p *Player) Start() { p.play(p.startSamples) }
func (p *Player) Stop()  { p.play(p.endSamples) }
func (p *Player) Error() { p.play(p.errorSamples) }

// Close cuts off any cue still sounding.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// play replaces whatever cue is sounding with samples.
func (p *Player) play(samples []int16) {
	if p.disabled || len(samples) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	done, err := p.dev.Play(ctx, audio.Clip{Samples: samples, SampleRate: sampleRate, Channels: 1})
	if err != nil {
		cancel()
		p.cancel = nil
		p.log.Debug().Err(err).Msg("beep_failed")
		return
	}
	go func() {
		<-done
		cancel()
	}()
}

func generateTick(sampleRate int, freq float64, duration float64, volume float64, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq float64, beepDur float64, gapDur float64, volume float64, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}
