package encoder

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FlacEncoder writes mono 16-bit FLAC, one verbatim frame per block.
type FlacEncoder struct {
	meter

	mu     sync.Mutex
	out    bytes.Buffer
	stream *flac.Encoder
	closed bool
}

func NewFlac() (*FlacEncoder, error) {
	e := &FlacEncoder{}
	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	}
	stream, err := flac.NewEncoder(&e.out, info)
	if err != nil {
		return nil, fmt.Errorf("flac stream: %w", err)
	}
	stream.EnablePredictionAnalysis(true)
	e.stream = stream
	return e, nil
}

func monoFrame(block []int16) *frame.Frame {
	pcm := make([]int32, len(block))
	for i, s := range block {
		pcm[i] = int32(s)
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   pcm,
			NSamples:  len(block),
		}},
	}
}

// EncodeBlock appends block as one frame. Blocks longer than BlockSize are
// split.
func (e *FlacEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("flac: encode after close")
	}
	for len(block) > 0 {
		n := min(len(block), BlockSize)
		if err := e.stream.WriteFrame(monoFrame(block[:n])); err != nil {
			return fmt.Errorf("flac frame: %w", err)
		}
		e.addFrames(n)
		block = block[n:]
	}
	return nil
}

func (e *FlacEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.stream.Close()
}

func (e *FlacEncoder) MimeType() string { return MimeFLAC }

func (e *FlacEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Bytes()
}
