package codec

import (
	"fmt"
	"io"
	"sync"

	"layeh.com/gopus"

	"github.com/lowensten/voicebox/internal/playback"
)

// DefaultBitrate is the Opus target bitrate in bits per second.
const DefaultBitrate = 64000

// OpusEncoder encodes 20ms raw PCM frames (48 kHz stereo s16le) to Opus and
// decodes arbitrary audio inputs to raw PCM via FFmpeg. It implements
// playback.Encoder.
//
// The gopus encoder carries internal state between frames, so one
// OpusEncoder serves exactly one stream at a time.
type OpusEncoder struct {
	mu  sync.Mutex
	enc *gopus.Encoder

	// FFmpegPath overrides the ffmpeg binary used for decoding.
	FFmpegPath string
}

// NewOpusEncoder returns an encoder configured for voice packets at the
// given bitrate, or DefaultBitrate if bitrate is zero.
func NewOpusEncoder(bitrate int) (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(playback.SampleRate, playback.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if bitrate == 0 {
		bitrate = DefaultBitrate
	}
	enc.SetBitrate(bitrate)

	return &OpusEncoder{
		enc:        enc,
		FFmpegPath: "ffmpeg",
	}, nil
}

// Encode compresses one raw PCM frame into an Opus frame.
func (o *OpusEncoder) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) != playback.FrameBytes {
		return nil, fmt.Errorf("encode: frame is %d bytes, want %d", len(pcm), playback.FrameBytes)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enc == nil {
		return nil, fmt.Errorf("encode: encoder is closed")
	}
	frame, err := o.enc.Encode(BytesToInt16s(pcm), playback.FrameSamples, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return frame, nil
}

// AdjustVolume scales a raw PCM frame by factor with clamping.
func (o *OpusEncoder) AdjustVolume(pcm []byte, factor float64) []byte {
	return AdjustVolume(pcm, factor)
}

// DecodeFile decodes any audio file FFmpeg understands into raw s16le
// 48 kHz stereo PCM. The returned ReadCloser reaps the FFmpeg process.
func (o *OpusEncoder) DecodeFile(path string) (io.ReadCloser, error) {
	return decodePCM(o.FFmpegPath, path, nil)
}

// DecodeStream decodes arbitrary audio from r into raw s16le 48 kHz stereo
// PCM. The returned ReadCloser reaps the FFmpeg process.
func (o *OpusEncoder) DecodeStream(r io.Reader) (io.ReadCloser, error) {
	return decodePCM(o.FFmpegPath, "pipe:0", r)
}

// Close releases the encoder. gopus encoders hold no OS resources, so this
// only blocks further use.
func (o *OpusEncoder) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enc = nil
	return nil
}

var _ playback.Encoder = (*OpusEncoder)(nil)
