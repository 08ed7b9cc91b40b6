package codec

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/lowensten/voicebox/internal/playback"
)

// decodePCM starts FFmpeg transcoding input (a path, URL, or "pipe:0" fed
// from stdin) to raw s16le PCM at the voice sample rate and channel count.
func decodePCM(ffmpegPath, input string, stdin io.Reader) (io.ReadCloser, error) {
	ffmpeg := exec.Command(ffmpegPath,
		"-i", input,
		"-f", "s16le",
		"-ar", fmt.Sprint(playback.SampleRate),
		"-ac", fmt.Sprint(playback.Channels),
		"pipe:1",
	)
	ffmpeg.Stdin = stdin

	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe ffmpeg stdout: %w", err)
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &procReadCloser{ReadCloser: stdout, cmd: ffmpeg}, nil
}

// procReadCloser ties a pipe to its producing process so closing the reader
// never leaks an FFmpeg child.
type procReadCloser struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *procReadCloser) Close() error {
	err := p.ReadCloser.Close()
	// Kill FFmpeg if still running (e.g. pipe closed early).
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.cmd.Wait()
	return err
}
