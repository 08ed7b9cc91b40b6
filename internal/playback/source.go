package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrSourceExhausted signals the clean end of an audio source. It is the
// expected termination for every source and is not reported as a failure.
var ErrSourceExhausted = errors.New("audio source exhausted")

// ErrUnderrun signals that a source is still alive but could not deliver a
// complete frame. Retry policy belongs to the Engine, not the source.
var ErrUnderrun = errors.New("audio source underrun")

// FrameSource produces one audio unit per call: a raw PCM chunk for raw
// sources, or one opaque pre-encoded frame for framed sources.
type FrameSource interface {
	Next() ([]byte, error)
}

// RawSource reads fixed-size raw PCM frames (960 stereo 16-bit samples)
// from an underlying byte stream.
type RawSource struct {
	r io.Reader
}

// NewRawSource returns a FrameSource that chunks r into raw PCM frames.
func NewRawSource(r io.Reader) *RawSource {
	return &RawSource{r: r}
}

// Next returns the next 3840-byte PCM frame. A stream that ends on a frame
// boundary yields ErrSourceExhausted; a partial frame yields ErrUnderrun so
// the caller may retry once the stream catches up.
func (s *RawSource) Next() ([]byte, error) {
	frame := make([]byte, FrameBytes)
	_, err := io.ReadFull(s.r, frame)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.EOF):
		return nil, ErrSourceExhausted
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ErrUnderrun
	default:
		return nil, fmt.Errorf("read pcm frame: %w", err)
	}
}

var _ FrameSource = (*RawSource)(nil)

// FramedSource reads pre-encoded frames stored as [uint16 LE length][payload]
// records, the container format produced by codec.EncodeFramed.
type FramedSource struct {
	r io.Reader
}

// NewFramedSource returns a FrameSource over a length-prefixed container.
func NewFramedSource(r io.Reader) *FramedSource {
	return &FramedSource{r: r}
}

// Next returns the next frame payload. EOF while reading the length prefix
// is the expected end of the container and yields ErrSourceExhausted; a
// truncated prefix or payload yields ErrUnderrun.
func (s *FramedSource) Next() ([]byte, error) {
	var size uint16
	if err := binary.Read(s.r, binary.LittleEndian, &size); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrSourceExhausted
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ErrUnderrun
		default:
			return nil, fmt.Errorf("read frame length: %w", err)
		}
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(s.r, frame); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrUnderrun
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return frame, nil
}

var _ FrameSource = (*FramedSource)(nil)
