package audio

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestPermissionError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		denied bool
	}{
		{"os permission", os.ErrPermission, true},
		{"access denied text", errors.New("Access denied"), true},
		{"not authorized", errors.New("capture not authorized by user"), true},
		{"other", errors.New("device busy"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := permissionError("op", tt.err)
			if errors.Is(got, ErrPermissionDenied) != tt.denied {
				t.Errorf("permissionError(%v) = %v, denied want %v", tt.err, got, tt.denied)
			}
		})
	}
	if permissionError("op", nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestBytesToSamples(t *testing.T) {
	got := BytesToSamples([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x7f})
	want := []int16{1, -1, -32768}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFakeCaptureFeedsCallback(t *testing.T) {
	pcm := make([]int16, fakeFrameSize*2+10)
	for i := range pcm {
		pcm[i] = int16(i)
	}
	ctx := NewFakeContext(pcm)
	dev, _ := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})

	var got []int16
	dev.SetCallback(func(data []byte, frames uint32) {
		if int(frames)*2 != len(data) {
			t.Errorf("frames %d does not match %d bytes", frames, len(data))
		}
		got = append(got, BytesToSamples(data)...)
	})
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	dev.Stop()
	if len(got) != len(pcm) {
		t.Fatalf("received %d samples, want %d", len(got), len(pcm))
	}
	if got[len(got)-1] != pcm[len(pcm)-1] {
		t.Errorf("last sample = %d, want %d", got[len(got)-1], pcm[len(pcm)-1])
	}
	if starts, stops := ctx.Captures()[0].Counts(); starts != 1 || stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1/1", starts, stops)
	}
}

func TestFakePlaybackCancel(t *testing.T) {
	p := &FakePlayback{}
	ctx, cancel := context.WithCancel(context.Background())
	done, err := p.Play(ctx, Clip{Samples: []int16{1, 2}, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("done = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel did not end playback")
	}
	if !p.Plays()[0].Cancelled() {
		t.Error("play not marked cancelled")
	}
}

func TestFakePlaybackFinishTaps(t *testing.T) {
	p := &FakePlayback{}
	var tapped int
	done, _ := p.Play(context.Background(), Clip{
		Samples: make([]int16, 100), SampleRate: 16000, Channels: 1,
		Tap: func(s []int16) { tapped += len(s) },
	})
	p.Plays()[0].Finish(nil)
	if err := <-done; err != nil {
		t.Errorf("done = %v, want nil", err)
	}
	if tapped != 100 {
		t.Errorf("tapped %d samples, want 100", tapped)
	}
}

func TestClipFrames(t *testing.T) {
	if got := (Clip{Samples: make([]int16, 10), Channels: 2}).Frames(); got != 5 {
		t.Errorf("Frames = %d, want 5", got)
	}
}
