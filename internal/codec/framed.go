package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/jonas747/ogg"
)

// framedEncodeArgs builds the FFmpeg invocation producing an ogg/opus
// stream on stdout at the target bitrate.
func framedEncodeArgs(bitrate int) []string {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	return []string{
		"-i", "pipe:0",
		"-vn",
		"-map", "0:a",
		"-acodec", "libopus",
		"-f", "ogg",
		"-vbr", "on",
		"-compression_level", "10",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", strconv.Itoa(bitrate),
		"-application", "audio",
		"-frame_duration", "20",
		"-packet_loss", "1",
		"-threads", "0",
		"pipe:1",
	}
}

// EncodeFramed transcodes any audio from r into the length-prefixed frame
// container: FFmpeg produces an ogg/opus stream at the given bitrate (bits
// per second, DefaultBitrate when zero), and each opus packet is written as
// [uint16 LE length][opus bytes]. The caller reads the returned stream until
// EOF and must close it to reap the FFmpeg process.
func EncodeFramed(ffmpegPath string, bitrate int, r io.Reader) (io.ReadCloser, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffmpeg := exec.Command(ffmpegPath, framedEncodeArgs(bitrate)...)
	ffmpeg.Stdin = r

	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe ffmpeg stdout: %w", err)
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()
		defer ffmpeg.Wait()

		decoder := ogg.NewPacketDecoder(ogg.NewDecoder(stdout))

		// The first two ogg packets are opus head and tags, not audio.
		skip := 2
		for {
			packet, _, err := decoder.Decode()
			if skip > 0 {
				skip--
				continue
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					pw.CloseWithError(err)
				}
				return
			}

			if err := WriteFrame(pw, packet); err != nil {
				return
			}
		}
	}()

	return &procReadCloser{ReadCloser: pr, cmd: ffmpeg}, nil
}

// WriteFrame writes one frame as a length-prefixed container record.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > 65535 {
		return fmt.Errorf("frame of %d bytes exceeds the container's uint16 length field", len(frame))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}
