package recorder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"talkback/audio"
	"talkback/encoder"
)

type Session struct {
	StartedAt time.Time
	MimeType  string

	capture    audio.CaptureDevice
	enc        encoder.Encoder
	tap        *atomic.Pointer[func([]int16)]
	blockChan  chan []int16
	encodeDone chan struct{}
	encodeErr  error

	bufMu     sync.Mutex
	sampleBuf []int16
	closed    bool
	chunks    int
}

func newSession(dev audio.CaptureDevice, enc encoder.Encoder, now time.Time, tap *atomic.Pointer[func([]int16)]) *Session {
	s := &Session{
		StartedAt:  now,
		MimeType:   enc.MimeType(),
		capture:    dev,
		enc:        enc,
		tap:        tap,
		blockChan:  make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}
	go func() {
		defer close(s.encodeDone)
		for block := range s.blockChan {
			if s.encodeErr != nil {
				continue
			}
			start := time.Now()
			if err := s.enc.EncodeBlock(block); err != nil {
				s.encodeErr = err
			}
			s.enc.AddEncodeTime(time.Since(start))
		}
	}()
	return s
}

// feed is the capture callback. Chunks are copied before they are queued.
func (s *Session) feed(pcm []byte, _ uint32) {
	samples := audio.BytesToSamples(pcm)
	if tap := s.tap.Load(); tap != nil {
		(*tap)(samples)
	}

	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if s.closed {
		return
	}
	s.chunks++
	s.sampleBuf = append(s.sampleBuf, samples...)
	for len(s.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, s.sampleBuf[:encoder.BlockSize])
		s.sampleBuf = s.sampleBuf[encoder.BlockSize:]
		s.blockChan <- block
	}
}

func (s *Session) Chunks() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return s.chunks
}

func (s *Session) release() {
	s.capture.Stop()
	s.capture.ClearCallback()
	s.capture.Close()
}

// seal flushes the partial block and stops the encoder goroutine.
func (s *Session) seal() {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if len(s.sampleBuf) > 0 {
		partial := make([]int16, len(s.sampleBuf))
		copy(partial, s.sampleBuf)
		s.sampleBuf = nil
		s.blockChan <- partial
	}
	close(s.blockChan)
}

func (s *Session) discard() {
	s.bufMu.Lock()
	s.sampleBuf = nil
	s.bufMu.Unlock()
	s.seal()
	<-s.encodeDone
	s.enc.Close()
}

func (s *Session) finish() (Blob, error) {
	s.release()
	s.seal()
	<-s.encodeDone

	closeErr := s.enc.Close()
	if err := errors.Join(s.encodeErr, closeErr); err != nil {
		return Blob{}, fmt.Errorf("encode %s: %w", s.MimeType, err)
	}
	frames := s.enc.TotalFrames()
	data := make([]byte, len(s.enc.Bytes()))
	copy(data, s.enc.Bytes())
	return Blob{
		Data:       data,
		MimeType:   s.MimeType,
		Frames:     frames,
		Duration:   time.Duration(frames) * time.Second / encoder.SampleRate,
		EncodeTime: s.enc.EncodeTime(),
	}, nil
}
