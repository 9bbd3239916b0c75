package encoder

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	MimeFLAC = "audio/flac"
	MimeWAV  = "audio/wav"
)

// DefaultPreferences is the ordered list of container/codec types tried when
// a recording starts. Only the entries with a registered encoder can win.
var DefaultPreferences = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/ogg;codecs=opus",
	MimeFLAC,
	MimeWAV,
}

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	MimeType() string
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

type Factory func() (Encoder, error)

var registry = map[string]Factory{
	MimeFLAC: func() (Encoder, error) { return NewFlac() },
	MimeWAV:  func() (Encoder, error) { return NewWav() },
}

func normalize(mime string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mime), " ", ""))
}

// Supported reports whether an encoder is registered for mime.
func Supported(mime string) bool {
	_, ok := registry[normalize(mime)]
	return ok
}

// New returns a fresh encoder for mime.
func New(mime string) (Encoder, error) {
	f, ok := registry[normalize(mime)]
	if !ok {
		return nil, fmt.Errorf("no encoder for %q", mime)
	}
	return f()
}

// meter tracks frames written and time spent encoding. Encoders embed it.
type meter struct {
	mu     sync.Mutex
	frames uint64
	spent  time.Duration
}

func (m *meter) addFrames(n int) {
	m.mu.Lock()
	m.frames += uint64(n)
	m.mu.Unlock()
}

func (m *meter) TotalFrames() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func (m *meter) AddEncodeTime(d time.Duration) {
	m.mu.Lock()
	m.spent += d
	m.mu.Unlock()
}

func (m *meter) EncodeTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent
}
