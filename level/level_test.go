package level

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func tone(n, rate int, freq, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestAnalyzeSilence(t *testing.T) {
	r := Analyze(make([]int16, 1024), 16000)
	if r.Level != 0 || r.Frequency != 0 {
		t.Errorf("silence = %+v", r)
	}
	if r := Analyze(nil, 16000); r != (Reading{}) {
		t.Errorf("empty = %+v", r)
	}
}

func TestAnalyzeTone(t *testing.T) {
	tests := []struct {
		freq float64
		amp  float64
	}{
		{440, 0.5},
		{1000, 0.25},
		{250, 0.9},
	}
	for _, tt := range tests {
		r := Analyze(tone(1024, 16000, tt.freq, tt.amp), 16000)
		binWidth := 16000.0 / 1024
		if math.Abs(r.Frequency-tt.freq) > binWidth {
			t.Errorf("%v Hz: detected %v Hz", tt.freq, r.Frequency)
		}
		// RMS of a sine is amplitude/sqrt(2).
		want := tt.amp / math.Sqrt2
		if math.Abs(r.Level-want) > 0.02 {
			t.Errorf("%v Hz: level %v, want ~%v", tt.freq, r.Level, want)
		}
	}
}

func TestAnalyzeClamps(t *testing.T) {
	full := make([]int16, 256)
	for i := range full {
		full[i] = -32768
	}
	if r := Analyze(full, 16000); r.Level > 1 {
		t.Errorf("level %v exceeds 1", r.Level)
	}
}

type fakeSource struct {
	mu  sync.Mutex
	tap func([]int16)
}

func (f *fakeSource) SetTap(fn func([]int16)) {
	f.mu.Lock()
	f.tap = fn
	f.mu.Unlock()
}

func (f *fakeSource) push(s []int16) {
	f.mu.Lock()
	fn := f.tap
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func TestAttach(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	readings := Attach(ctx, src, Options{SampleRate: 16000, Interval: 5 * time.Millisecond})

	// Feed in small chunks so the ring has to wrap.
	samples := tone(4096, 16000, 500, 0.5)
	for i := 0; i < len(samples); i += 300 {
		src.push(samples[i:min(i+300, len(samples))])
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case r := <-readings:
			if r.Level == 0 {
				continue
			}
			if math.Abs(r.Frequency-500) > 16000.0/1024 {
				t.Errorf("frequency = %v, want ~500", r.Frequency)
			}
			cancel()
			for range readings {
			}
			src.mu.Lock()
			defer src.mu.Unlock()
			if src.tap != nil {
				t.Error("tap not removed after cancel")
			}
			return
		case <-deadline:
			t.Fatal("no reading")
		}
	}
}

type rateSource struct {
	fakeSource
	rate int
}

func (r *rateSource) SampleRate() int { return r.rate }

func TestAttachUsesSourceRate(t *testing.T) {
	src := &rateSource{rate: 44100}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	readings := Attach(ctx, src, Options{SampleRate: 16000, Interval: 5 * time.Millisecond})

	src.push(tone(DefaultWindow, 44100, 1000, 0.5))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case r := <-readings:
			if r.Level == 0 {
				continue
			}
			if math.Abs(r.Frequency-1000) > 44100.0/DefaultWindow {
				t.Errorf("frequency = %v, want ~1000", r.Frequency)
			}
			return
		case <-deadline:
			t.Fatal("no reading")
		}
	}
}
