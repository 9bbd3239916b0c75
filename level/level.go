// Package level computes a loudness meter and the dominant pitch of an
// audio stream for display.
package level

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	DefaultWindow   = 1024
	DefaultInterval = 50 * time.Millisecond
)

type Reading struct {
	Level     float64 // RMS relative to full scale, 0..1
	Frequency float64 // Hz of the strongest non-DC bin
}

// Analyze measures one window of mono samples.
func Analyze(samples []int16, sampleRate int) Reading {
	if len(samples) == 0 {
		return Reading{}
	}

	var sum float64
	seq := make([]float64, len(samples))
	for i, s := range samples {
		v := float64(s) / 32768
		seq[i] = v
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	r := Reading{Level: min(rms, 1)}
	if len(seq) < 4 || sampleRate <= 0 || rms == 0 {
		return r
	}

	window.Hann(seq)
	fft := fourier.NewFFT(len(seq))
	coeffs := fft.Coefficients(nil, seq)

	best, bestMag := 0, 0.0
	for i := 1; i < len(coeffs); i++ {
		if mag := cmplxAbs(coeffs[i]); mag > bestMag {
			best, bestMag = i, mag
		}
	}
	if best > 0 {
		r.Frequency = fft.Freq(best) * float64(sampleRate)
	}
	return r
}

func cmplxAbs(c complex128) float64 { return math.Hypot(real(c), imag(c)) }

// Source is anything that can expose its samples through a tap.
type Source interface {
	SetTap(fn func([]int16))
}

// RateSource is a Source whose sample rate follows what it is playing.
// Attach prefers its rate over Options.SampleRate when it is known.
type RateSource interface {
	Source
	SampleRate() int
}

type Options struct {
	SampleRate int
	Window     int
	Interval   time.Duration
}

// Attach taps src and emits a Reading every interval until ctx ends, at
// which point the tap is removed and the channel closed. Readings are
// dropped when the consumer falls behind.
func Attach(ctx context.Context, src Source, opts Options) <-chan Reading {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	var (
		mu    sync.Mutex
		ring  = make([]int16, 0, opts.Window)
		fresh bool
	)
	src.SetTap(func(samples []int16) {
		mu.Lock()
		defer mu.Unlock()
		if len(samples) >= opts.Window {
			ring = append(ring[:0], samples[len(samples)-opts.Window:]...)
		} else {
			if over := len(ring) + len(samples) - opts.Window; over > 0 {
				ring = append(ring[:0], ring[over:]...)
			}
			ring = append(ring, samples...)
		}
		fresh = true
	})

	out := make(chan Reading, 1)
	go func() {
		defer close(out)
		defer src.SetTap(nil)
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			rate := opts.SampleRate
			if rs, ok := src.(RateSource); ok && rs.SampleRate() > 0 {
				rate = rs.SampleRate()
			}

			mu.Lock()
			var r Reading
			if fresh {
				r = Analyze(ring, rate)
				fresh = false
			}
			mu.Unlock()

			select {
			case out <- r:
			default:
			}
		}
	}()
	return out
}
