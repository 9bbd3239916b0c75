package encoder

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSupported(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"audio/flac", true},
		{"audio/wav", true},
		{" AUDIO/WAV ", true},
		{"audio/webm;codecs=opus", false},
		{"audio/mp4", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.mime); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("audio/webm"); err == nil {
		t.Fatal("expected error for unregistered mime")
	}
}

func TestNewReportsMime(t *testing.T) {
	for _, mime := range []string{MimeFLAC, MimeWAV} {
		enc, err := New(mime)
		if err != nil {
			t.Fatalf("New(%q): %v", mime, err)
		}
		if enc.MimeType() != mime {
			t.Errorf("MimeType = %q, want %q", enc.MimeType(), mime)
		}
	}
}

func TestWavEncoder(t *testing.T) {
	samples := sine(BlockSize+100, 300)

	enc, err := NewWav()
	if err != nil {
		t.Fatalf("NewWav: %v", err)
	}
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			t.Fatalf("EncodeBlock: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data := enc.Bytes()
	if len(data) < 44 || !bytes.Equal(data[:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Fatalf("output is not a RIFF/WAVE file (%d bytes)", len(data))
	}
	if enc.TotalFrames() != uint64(len(samples)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(samples))
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != SampleRate {
		t.Errorf("header sample rate = %d, want %d", got, SampleRate)
	}
	if want := 44 + len(samples)*2; len(data) != want {
		t.Errorf("len = %d, want %d", len(data), want)
	}
}

func TestWavEncoderCloseTwice(t *testing.T) {
	enc, _ := NewWav()
	if err := enc.EncodeBlock([]int16{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestWavEncoderEmpty(t *testing.T) {
	enc, _ := NewWav()
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data := enc.Bytes()
	if len(data) != 44 || !bytes.Equal(data[:4], []byte("RIFF")) {
		t.Fatalf("empty wav = %d bytes %q", len(data), data[:min(4, len(data))])
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 0 {
		t.Errorf("data chunk size = %d, want 0", got)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d", enc.TotalFrames())
	}
}

func TestMemSeeker(t *testing.T) {
	var m memSeeker
	m.Write([]byte("hello world"))
	if _, err := m.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	m.Write([]byte("J"))
	if string(m.buf) != "Jello world" {
		t.Errorf("buf = %q", m.buf)
	}
	if _, err := m.Seek(-1, 0); err == nil {
		t.Error("expected error on negative seek")
	}
}
