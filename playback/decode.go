package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"talkback/audio"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

type codec int

const (
	codecUnknown codec = iota
	codecWAV
	codecFLAC
	codecMP3
)

func codecFor(format string, data []byte) codec {
	f := strings.ToLower(strings.TrimSpace(format))
	if i := strings.IndexByte(f, ';'); i >= 0 {
		f = f[:i]
	}
	f = strings.TrimPrefix(f, "audio/")
	switch f {
	case "wav", "wave", "x-wav", "vnd.wave":
		return codecWAV
	case "flac", "x-flac":
		return codecFLAC
	case "mp3", "mpeg", "mpeg3", "x-mpeg":
		return codecMP3
	case "":
		return sniff(data)
	}
	return codecUnknown
}

func sniff(data []byte) codec {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return codecWAV
	case len(data) >= 4 && string(data[:4]) == "fLaC":
		return codecFLAC
	case len(data) >= 3 && string(data[:3]) == "ID3",
		len(data) >= 2 && data[0] == 0xff && data[1]&0xe0 == 0xe0:
		return codecMP3
	}
	return codecUnknown
}

// Decode turns an encoded response into PCM. An empty format is sniffed
// from the payload.
func Decode(data []byte, format string) (audio.Clip, error) {
	switch codecFor(format, data) {
	case codecWAV:
		return decodeWAV(data)
	case codecFLAC:
		return decodeFLAC(data)
	case codecMP3:
		return decodeMP3(data)
	}
	return audio.Clip{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func toInt16(v, bits int) int16 {
	switch {
	case bits == 8:
		return int16((v - 128) << 8)
	case bits > 16:
		return int16(v >> (bits - 16))
	}
	return int16(v)
}

func decodeWAV(data []byte) (audio.Clip, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return audio.Clip{}, fmt.Errorf("%w: invalid wav", ErrUnsupportedFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	bits := int(d.BitDepth)
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = toInt16(v, bits)
	}
	return audio.Clip{
		Samples:    samples,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}, nil
}

func decodeFLAC(data []byte) (audio.Clip, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode flac: %w", err)
	}
	defer stream.Close()

	bits := int(stream.Info.BitsPerSample)
	channels := int(stream.Info.NChannels)
	var samples []int16
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return audio.Clip{}, fmt.Errorf("decode flac frame: %w", err)
		}
		n := f.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			for _, sub := range f.Subframes {
				samples = append(samples, toInt16(int(sub.Samples[i]), bits))
			}
		}
	}
	return audio.Clip{
		Samples:    samples,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}

func decodeMP3(data []byte) (audio.Clip, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode mp3: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode mp3: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	return audio.Clip{
		Samples:    audio.BytesToSamples(raw),
		SampleRate: d.SampleRate(),
		Channels:   2,
	}, nil
}
