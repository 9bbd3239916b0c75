// Package capture turns hold gestures into recordings and uploads them.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"talkback/playback"
	"talkback/recorder"
	"talkback/transport"
)

const (
	DefaultMinDuration = 500 * time.Millisecond
	DefaultMaxDuration = 60 * time.Second
)

var ErrUpload = errors.New("upload failed")

type Source int

const (
	Key Source = iota + 1
	Mouse
	Touch
)

func (s Source) String() string {
	switch s {
	case Key:
		return "key"
	case Mouse:
		return "mouse"
	case Touch:
		return "touch"
	}
	return "unknown"
}

type Status int

const (
	Idle Status = iota
	Recording
	Processing
)

func (s Status) String() string {
	switch s {
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	}
	return "idle"
}

type Recorder interface {
	Start(recorder.Constraints) (*recorder.Session, error)
	Stop() (recorder.Blob, error)
	Abort()
}

type Link interface {
	State() transport.State
	Send(transport.Outbound) bool
}

type Playback interface {
	// Hold keeps responses from starting while the user is recording.
	Hold(on bool)
	StopAll()
	PlayPending() error
	Pending() (playback.Pending, bool)
}

// Activator is told about every user gesture.
type Activator interface {
	Activate()
}

// Cues are audible feedback for the start and end of a recording.
type Cues interface {
	Start()
	Stop()
	Error()
}

type Timer interface {
	Stop() bool
}

type Config struct {
	Recorder    Recorder
	Link        Link
	Playback    Playback
	Activator   Activator
	Cues        Cues
	Constraints recorder.Constraints
	MinDuration time.Duration
	MaxDuration time.Duration
	Logger      zerolog.Logger

	Now       func() time.Time
	AfterFunc func(time.Duration, func()) Timer

	OnStatus func(Status)
	OnError  func(error)
}

type phase int

const (
	phaseIdle phase = iota
	phaseRecording
	phaseStopping
	phaseProcessing
)

type Controller struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	phase     phase
	source    Source
	startedAt time.Time
	timer     Timer
	gen       int
	keyHeld   bool
}

func New(cfg Config) *Controller {
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if cfg.Constraints == (recorder.Constraints{}) {
		cfg.Constraints = recorder.DefaultConstraints()
	}
	return &Controller{cfg: cfg, log: cfg.Logger}
}

func statusOf(p phase) Status {
	switch p {
	case phaseRecording:
		return Recording
	case phaseStopping, phaseProcessing:
		return Processing
	}
	return Idle
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return statusOf(c.phase)
}

func (c *Controller) setPhase(p phase) {
	c.mu.Lock()
	changed := statusOf(c.phase) != statusOf(p)
	c.phase = p
	c.mu.Unlock()
	if changed {
		c.emitStatus(statusOf(p))
	}
}

func (c *Controller) emitStatus(s Status) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s)
	}
}

func (c *Controller) report(err error) {
	c.log.Error().Err(err).Msg("capture_error")
	if c.cfg.Cues != nil {
		c.cfg.Cues.Error()
	}
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

// OnGestureStart begins a recording for src. It reports whether a session
// was started.
func (c *Controller) OnGestureStart(src Source) bool {
	if c.cfg.Activator != nil {
		c.cfg.Activator.Activate()
	}

	c.mu.Lock()
	if c.phase == phaseRecording || c.phase == phaseStopping {
		c.mu.Unlock()
		c.log.Debug().Str("source", src.String()).Msg("gesture_ignored_busy")
		return false
	}
	if state := c.cfg.Link.State(); state != transport.Connected {
		c.mu.Unlock()
		c.log.Info().Str("source", src.String()).Str("state", state.String()).Msg("gesture_ignored_offline")
		c.replayPending()
		return false
	}

	c.cfg.Playback.Hold(true)
	c.cfg.Playback.StopAll()
	if _, err := c.cfg.Recorder.Start(c.cfg.Constraints); err != nil {
		c.cfg.Playback.Hold(false)
		c.mu.Unlock()
		c.report(err)
		return false
	}

	c.phase = phaseRecording
	c.source = src
	c.startedAt = c.cfg.Now()
	c.gen++
	gen := c.gen
	c.timer = c.cfg.AfterFunc(c.cfg.MaxDuration, func() { c.expire(gen) })
	c.mu.Unlock()

	c.log.Info().Str("source", src.String()).Msg("gesture_start")
	if c.cfg.Cues != nil {
		c.cfg.Cues.Start()
	}
	c.emitStatus(Recording)
	return true
}

func (c *Controller) replayPending() {
	if _, ok := c.cfg.Playback.Pending(); !ok {
		return
	}
	if err := c.cfg.Playback.PlayPending(); err != nil && !errors.Is(err, playback.ErrBlocked) {
		c.report(err)
	}
}

// OnGestureEnd finishes the session if src is the source that started it.
func (c *Controller) OnGestureEnd(src Source) {
	c.mu.Lock()
	if c.phase != phaseRecording || c.source != src {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.log.Info().Str("source", src.String()).Msg("gesture_end")
	c.finish(src, false)
}

func (c *Controller) expire(gen int) {
	c.mu.Lock()
	if c.phase != phaseRecording || c.gen != gen {
		c.mu.Unlock()
		return
	}
	src := c.source
	c.mu.Unlock()
	c.log.Info().Dur("limit", c.cfg.MaxDuration).Msg("recording_max_duration")
	c.finish(src, true)
}

func (c *Controller) finish(src Source, timedOut bool) {
	c.mu.Lock()
	if c.phase != phaseRecording || c.source != src {
		c.mu.Unlock()
		return
	}
	c.phase = phaseStopping
	if c.timer != nil && !timedOut {
		c.timer.Stop()
	}
	c.timer = nil
	started := c.startedAt
	c.mu.Unlock()
	c.cfg.Playback.Hold(false)
	c.emitStatus(Processing)

	elapsed := c.cfg.Now().Sub(started)
	blob, err := c.cfg.Recorder.Stop()
	if err != nil {
		c.setPhase(phaseIdle)
		c.report(fmt.Errorf("%w: %v", ErrUpload, err))
		return
	}
	if elapsed < c.cfg.MinDuration {
		c.log.Info().Dur("elapsed", elapsed).Dur("min", c.cfg.MinDuration).Msg("recording_discarded")
		c.setPhase(phaseIdle)
		return
	}
	if len(blob.Data) == 0 || blob.Frames == 0 {
		c.setPhase(phaseIdle)
		c.report(fmt.Errorf("%w: empty recording", ErrUpload))
		return
	}

	msg := transport.AudioData{
		Audio:     base64.StdEncoding.EncodeToString(blob.Data),
		Format:    blob.MimeType,
		Timestamp: c.cfg.Now().UnixMilli(),
		Size:      len(blob.Data),
	}
	// Processing before Send so a fast reply can settle it.
	c.setPhase(phaseProcessing)
	if !c.cfg.Link.Send(msg) {
		c.setPhase(phaseIdle)
		c.report(fmt.Errorf("%w: link not connected", ErrUpload))
		return
	}

	c.log.Info().Dur("elapsed", elapsed).Int("bytes", msg.Size).Str("format", msg.Format).Msg("audio_sent")
	if c.cfg.Cues != nil {
		c.cfg.Cues.Stop()
	}
}

// Settle returns the controller to idle once the server has answered.
func (c *Controller) Settle() {
	c.mu.Lock()
	if c.phase != phaseProcessing {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setPhase(phaseIdle)
}

// Abort drops any live recording without uploading it.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	recording := c.phase == phaseRecording
	c.keyHeld = false
	c.mu.Unlock()
	if recording {
		c.cfg.Recorder.Abort()
		c.cfg.Playback.Hold(false)
	}
	c.setPhase(phaseIdle)
}

// KeyDown starts a key session. Auto-repeat while the key is held is ignored.
func (c *Controller) KeyDown() bool {
	c.mu.Lock()
	if c.keyHeld {
		c.mu.Unlock()
		return false
	}
	c.keyHeld = true
	c.mu.Unlock()
	return c.OnGestureStart(Key)
}

func (c *Controller) KeyUp() {
	c.mu.Lock()
	held := c.keyHeld
	c.keyHeld = false
	c.mu.Unlock()
	if held {
		c.OnGestureEnd(Key)
	}
}

func (c *Controller) MouseDown() bool { return c.OnGestureStart(Mouse) }
func (c *Controller) MouseUp()        { c.OnGestureEnd(Mouse) }

// MouseLeave ends a mouse session when the pointer leaves the control.
func (c *Controller) MouseLeave() { c.OnGestureEnd(Mouse) }

func (c *Controller) TouchStart() bool { return c.OnGestureStart(Touch) }
func (c *Controller) TouchEnd()        { c.OnGestureEnd(Touch) }
