package audio

import (
	"context"
	"sync"
)

const fakeFrameSize = 1024

// FakeContext is an in-memory host: captures replay PCM, playback is
// recorded and completed by the caller.
type FakeContext struct {
	PCM      []int16
	StartErr error
	Caps     Capabilities
	Playback *FakePlayback
	Inputs   []DeviceInfo

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(pcm []int16) *FakeContext {
	return &FakeContext{PCM: pcm, Playback: &FakePlayback{}}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.Inputs, nil }
func (f *FakeContext) Capabilities() Capabilities     { return f.Caps }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{pcm: f.PCM, startErr: f.StartErr}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *FakeContext) NewPlayback() (PlaybackDevice, error) { return f.Playback, nil }

func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

type FakeCapture struct {
	pcm      []int16
	startErr error

	mu      sync.Mutex
	cb      DataCallback
	running bool
	starts  int
	stops   int
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Start delivers the whole PCM buffer synchronously in device sized chunks.
func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.running = true
	f.starts++
	f.mu.Unlock()
	f.Feed(f.pcm)
	return nil
}

// Feed pushes samples to the callback as if the microphone produced them.
func (f *FakeCapture) Feed(samples []int16) {
	f.mu.Lock()
	cb, running := f.cb, f.running
	f.mu.Unlock()
	if cb == nil || !running {
		return
	}
	for pos := 0; pos < len(samples); pos += fakeFrameSize {
		end := min(pos+fakeFrameSize, len(samples))
		chunk := make([]byte, (end-pos)*2)
		for i, s := range samples[pos:end] {
			chunk[i*2] = byte(uint16(s))
			chunk[i*2+1] = byte(uint16(s) >> 8)
		}
		cb(chunk, uint32(end-pos))
	}
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if f.running {
		f.stops++
	}
	f.running = false
	f.mu.Unlock()
}

func (f *FakeCapture) Close() { f.Stop() }

func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *FakeCapture) HasCallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb != nil
}

func (f *FakeCapture) Counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// FakePlayback records every clip it is asked to play. Clips stay "playing"
// until Finish is called or their context is cancelled.
type FakePlayback struct {
	mu    sync.Mutex
	err   error
	plays []*FakePlay
}

type FakePlay struct {
	Clip Clip

	done      chan error
	finished  chan struct{}
	once      sync.Once
	mu        sync.Mutex
	cancelled bool
}

// FailWith makes subsequent Play calls return err.
func (p *FakePlayback) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *FakePlayback) Play(ctx context.Context, clip Clip) (<-chan error, error) {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return nil, err
	}
	fp := &FakePlay{Clip: clip, done: make(chan error, 1), finished: make(chan struct{})}
	p.plays = append(p.plays, fp)
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			fp.mu.Lock()
			fp.cancelled = true
			fp.mu.Unlock()
			fp.finish(ctx.Err())
		case <-fp.finished:
		}
	}()
	return fp.done, nil
}

func (p *FakePlayback) Close() {}

func (p *FakePlayback) Plays() []*FakePlay {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakePlay(nil), p.plays...)
}

func (fp *FakePlay) finish(err error) {
	fp.once.Do(func() {
		if err == nil && fp.Clip.Tap != nil {
			fp.Clip.Tap(fp.Clip.Samples)
		}
		fp.done <- err
		close(fp.finished)
	})
}

// Finish ends the clip as the device would: nil for natural completion.
func (fp *FakePlay) Finish(err error) { fp.finish(err) }

func (fp *FakePlay) Cancelled() bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.cancelled
}

func (fp *FakePlay) Done() <-chan struct{} { return fp.finished }
