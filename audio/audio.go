package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrPlaybackBlocked  = errors.New("playback blocked until user gesture")
)

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Capabilities lists the input processing the host applies on its own.
type Capabilities struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewPlayback() (PlaybackDevice, error)
	Capabilities() Capabilities
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Clip is decoded interleaved 16-bit PCM ready for output. Tap, when set,
// sees every buffer handed to the device.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Tap        func([]int16)
}

func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return len(c.Samples)
	}
	return len(c.Samples) / c.Channels
}

type PlaybackDevice interface {
	// Play starts clip and returns a channel that receives exactly one value
	// when output ends: nil on completion, ctx.Err() when cancelled, or the
	// device error.
	Play(ctx context.Context, clip Clip) (<-chan error, error)
	Close()
}

// permissionError maps host denials onto ErrPermissionDenied.
func permissionError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if errors.Is(err, os.ErrPermission) || strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// BytesToSamples converts little-endian 16-bit PCM bytes to samples.
func BytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}
	return out
}
