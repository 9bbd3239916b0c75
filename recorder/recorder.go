// Package recorder owns the microphone for the span of one recording
// session and turns the captured PCM into a single encoded blob.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"talkback/audio"
	"talkback/capability"
	"talkback/encoder"
)

var (
	ErrUnsupportedFormat = errors.New("no supported recording format")
	ErrBusy              = errors.New("recording already in progress")
	ErrNotRecording      = errors.New("no recording in progress")
)

// Constraints are requested from the host but not enforced. Capture always
// runs at the encoder's native rate and channel count.
type Constraints struct {
	SampleRate       uint32
	Channels         uint32
	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       encoder.SampleRate,
		Channels:         encoder.Channels,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGain:         true,
	}
}

type Blob struct {
	Data       []byte
	MimeType   string
	Frames     uint64
	Duration   time.Duration
	EncodeTime time.Duration
}

type Config struct {
	Context     audio.Context
	Device      *audio.DeviceInfo
	Preferences []string
	Logger      zerolog.Logger
	Now         func() time.Time
}

type Recorder struct {
	ctx    audio.Context
	device *audio.DeviceInfo
	prefs  []string
	log    zerolog.Logger
	now    func() time.Time
	tap    atomic.Pointer[func([]int16)]

	mu     sync.Mutex
	active *Session
}

func New(cfg Config) *Recorder {
	prefs := cfg.Preferences
	if len(prefs) == 0 {
		prefs = encoder.DefaultPreferences
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		ctx:    cfg.Context,
		device: cfg.Device,
		prefs:  prefs,
		log:    cfg.Logger,
		now:    now,
	}
}

// SetTap installs fn to observe raw microphone samples. nil removes it.
func (r *Recorder) SetTap(fn func([]int16)) {
	if fn == nil {
		r.tap.Store(nil)
		return
	}
	r.tap.Store(&fn)
}

// Negotiate returns the MIME type a recording would use right now.
func (r *Recorder) Negotiate() (string, error) {
	mime, err := capability.Pick(r.prefs, encoder.Supported)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return mime, nil
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start acquires the microphone and begins a session. No session exists
// when an error is returned.
func (r *Recorder) Start(c Constraints) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, ErrBusy
	}
	mime, err := r.Negotiate()
	if err != nil {
		r.log.Warn().Strs("preferences", r.prefs).Msg("format_negotiation_failed")
		return nil, err
	}
	enc, err := encoder.New(mime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	r.logUnhonored(c)

	dev, err := r.ctx.NewCapture(r.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	s := newSession(dev, enc, r.now(), &r.tap)
	dev.SetCallback(s.feed)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		s.discard()
		r.log.Error().Err(err).Str("device", dev.DeviceName()).Msg("capture_start_failed")
		return nil, fmt.Errorf("start capture: %w", err)
	}

	r.active = s
	r.log.Info().Str("mime", mime).Str("device", dev.DeviceName()).Msg("recording_start")
	return s, nil
}

// Stop ends the live session and returns the encoded recording. The
// microphone is released whether or not encoding succeeds.
func (r *Recorder) Stop() (Blob, error) {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()

	if s == nil {
		return Blob{}, ErrNotRecording
	}
	blob, err := s.finish()
	if err != nil {
		r.log.Error().Err(err).Msg("recording_finalize_failed")
		return Blob{}, err
	}
	r.log.Info().
		Str("mime", blob.MimeType).
		Int("bytes", len(blob.Data)).
		Dur("audio", blob.Duration).
		Dur("encode", blob.EncodeTime).
		Msg("recording_stop")
	return blob, nil
}

// Abort releases the microphone and drops whatever was captured.
func (r *Recorder) Abort() {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()
	if s == nil {
		return
	}
	s.release()
	s.discard()
	r.log.Info().Msg("recording_aborted")
}

func (r *Recorder) logUnhonored(c Constraints) {
	caps := r.ctx.Capabilities()
	var missing []string
	if c.EchoCancellation && !caps.EchoCancellation {
		missing = append(missing, "echo_cancellation")
	}
	if c.NoiseSuppression && !caps.NoiseSuppression {
		missing = append(missing, "noise_suppression")
	}
	if c.AutoGain && !caps.AutoGain {
		missing = append(missing, "auto_gain")
	}
	if c.SampleRate != 0 && c.SampleRate != encoder.SampleRate {
		missing = append(missing, "sample_rate")
	}
	if c.Channels != 0 && c.Channels != encoder.Channels {
		missing = append(missing, "channels")
	}
	if len(missing) > 0 {
		r.log.Debug().Strs("constraints", missing).Msg("constraints_unhonored")
	}
}
