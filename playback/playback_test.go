package playback

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"talkback/audio"
	"talkback/encoder"
)

func wavPayload(t *testing.T, n int) string {
	t.Helper()
	enc, err := encoder.NewWav()
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i * 7)
	}
	if err := enc.EncodeBlock(samples); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(enc.Bytes())
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayCompletesAndCleansUp(t *testing.T) {
	dev := &audio.FakePlayback{}
	c := New(dev, zerolog.Nop())
	defer c.Close()

	var tapped int
	c.SetTap(func(s []int16) { tapped += len(s) })

	if err := c.Play(wavPayload(t, 800), "wav"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if c.Active() != 1 || c.Blobs() != 1 {
		t.Fatalf("active=%d blobs=%d, want 1/1", c.Active(), c.Blobs())
	}
	plays := dev.Plays()
	if len(plays) != 1 || plays[0].Clip.SampleRate != encoder.SampleRate || len(plays[0].Clip.Samples) != 800 {
		t.Fatalf("unexpected clip handed to device: %+v", plays)
	}

	plays[0].Finish(nil)
	eventually(t, func() bool { return c.Active() == 0 && c.Blobs() == 0 }, "cleanup after completion")
	if tapped != 800 {
		t.Errorf("tap saw %d samples, want 800", tapped)
	}
}

func TestPlayErrorCleansUp(t *testing.T) {
	dev := &audio.FakePlayback{}
	c := New(dev, zerolog.Nop())
	defer c.Close()

	if err := c.Play(wavPayload(t, 100), "audio/wav"); err != nil {
		t.Fatal(err)
	}
	dev.Plays()[0].Finish(errors.New("device unplugged"))
	eventually(t, func() bool { return c.Active() == 0 && c.Blobs() == 0 }, "cleanup after error")
}

func TestStopAll(t *testing.T) {
	dev := &audio.FakePlayback{}
	c := New(dev, zerolog.Nop())
	defer c.Close()

	for range 3 {
		if err := c.Play(wavPayload(t, 100), "wav"); err != nil {
			t.Fatal(err)
		}
	}
	c.StopAll()
	if c.Active() != 0 || c.Blobs() != 0 {
		t.Fatalf("active=%d blobs=%d after StopAll", c.Active(), c.Blobs())
	}
	for i, p := range dev.Plays() {
		select {
		case <-p.Done():
		case <-time.After(time.Second):
			t.Fatalf("play %d not stopped", i)
		}
		if !p.Cancelled() {
			t.Errorf("play %d not cancelled", i)
		}
	}

	// A clip started after StopAll is unaffected by the stale completions.
	if err := c.Play(wavPayload(t, 100), "wav"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if c.Active() != 1 {
		t.Errorf("active = %d, want 1", c.Active())
	}
}

func TestStopAllEmpty(t *testing.T) {
	c := New(&audio.FakePlayback{}, zerolog.Nop())
	c.StopAll()
	if c.Active() != 0 {
		t.Error("expected empty set")
	}
}

func TestBlockedBecomesPending(t *testing.T) {
	dev := &audio.FakePlayback{}
	gate := NewAutoplayGate(dev, true)
	c := New(gate, zerolog.Nop())
	defer c.Close()

	var notified []bool
	c.OnPending(func(has bool) { notified = append(notified, has) })

	first, second := wavPayload(t, 100), wavPayload(t, 200)
	if err := c.Play(first, "wav"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	if err := c.Play(second, "wav"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	if c.Active() != 0 || c.Blobs() != 0 {
		t.Error("blocked clip left in the active set")
	}
	p, ok := c.Pending()
	if !ok || p.Payload != second {
		t.Fatal("pending should hold the most recent blocked clip")
	}

	gate.Activate()
	if err := c.PlayPending(); err != nil {
		t.Fatalf("PlayPending: %v", err)
	}
	if _, ok := c.Pending(); ok {
		t.Error("pending not cleared")
	}
	if got := len(dev.Plays()[0].Clip.Samples); got != 200 {
		t.Errorf("played %d samples, want 200", got)
	}
	if len(notified) != 3 || !notified[0] || !notified[1] || notified[2] {
		t.Errorf("pending notifications = %v", notified)
	}
}

func TestHeldResponseBecomesPending(t *testing.T) {
	dev := &audio.FakePlayback{}
	c := New(dev, zerolog.Nop())
	defer c.Close()

	c.Hold(true)
	payload := wavPayload(t, 300)
	if err := c.Play(payload, "wav"); !errors.Is(err, ErrHeld) {
		t.Fatalf("err = %v, want ErrHeld", err)
	}
	if n := len(dev.Plays()); n != 0 {
		t.Fatalf("held clip reached the device %d times", n)
	}
	if p, ok := c.Pending(); !ok || p.Payload != payload {
		t.Fatal("held clip not kept as pending")
	}

	c.Hold(false)
	if err := c.PlayPending(); err != nil {
		t.Fatalf("PlayPending: %v", err)
	}
	if n := len(dev.Plays()); n != 1 {
		t.Errorf("plays = %d after release, want 1", n)
	}
}

func TestTapDownmixesAndReportsRate(t *testing.T) {
	c := New(&audio.FakePlayback{}, zerolog.Nop())
	if c.SampleRate() != 0 {
		t.Errorf("rate before playback = %d, want 0", c.SampleRate())
	}

	var got []int16
	c.SetTap(func(s []int16) { got = append(got, s...) })
	c.observer(44100, 2)([]int16{100, 300, -200, -400})

	if len(got) != 2 || got[0] != 200 || got[1] != -300 {
		t.Errorf("tap saw %v, want [200 -300]", got)
	}
	if c.SampleRate() != 44100 {
		t.Errorf("rate = %d, want 44100", c.SampleRate())
	}
}

func TestPlayPendingNone(t *testing.T) {
	c := New(&audio.FakePlayback{}, zerolog.Nop())
	if err := c.PlayPending(); !errors.Is(err, ErrNoPending) {
		t.Errorf("err = %v, want ErrNoPending", err)
	}
}

func TestPlayRejectsBadInput(t *testing.T) {
	c := New(&audio.FakePlayback{}, zerolog.Nop())
	if err := c.Play("%%%not-base64", "wav"); err == nil {
		t.Error("expected base64 error")
	}
	junk := base64.StdEncoding.EncodeToString([]byte("just some text"))
	if err := c.Play(junk, "audio/ogg"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
	if c.Active() != 0 {
		t.Error("failed play left an active item")
	}
}

func TestDeviceStartFailure(t *testing.T) {
	dev := &audio.FakePlayback{}
	dev.FailWith(errors.New("no sink"))
	c := New(dev, zerolog.Nop())
	err := c.Play(wavPayload(t, 10), "wav")
	if err == nil || errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want start failure", err)
	}
	if c.Active() != 0 || c.Blobs() != 0 {
		t.Error("failed start not cleaned up")
	}
	if _, ok := c.Pending(); ok {
		t.Error("non-policy failure must not become pending")
	}
}

func TestGateUnlockedWhenGestureNotRequired(t *testing.T) {
	g := NewAutoplayGate(&audio.FakePlayback{}, false)
	if !g.Unlocked() {
		t.Error("gate should start unlocked")
	}
}
