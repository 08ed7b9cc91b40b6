package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Encoder is the audio codec collaborator. It turns raw PCM chunks into
// wire-ready frames, applies volume scaling, and decodes arbitrary inputs
// into raw PCM byte streams.
type Encoder interface {
	Encode(pcm []byte) ([]byte, error)
	AdjustVolume(pcm []byte, factor float64) []byte
	DecodeFile(path string) (io.ReadCloser, error)
	DecodeStream(r io.Reader) (io.ReadCloser, error)
	Close() error
}

// Transport delivers finished frames to the remote side. Send is
// fire-and-forget: the Engine never retries a send and consults no
// acknowledgment. SetSpeaking reports speaking state on the signaling
// channel.
type Transport interface {
	Send(frame []byte, sequence uint16, timestamp uint32) error
	SetSpeaking(speaking bool) error
	Close() error
}

// How many consecutive reads may underrun in one play invocation before the
// source is treated as exhausted.
const retryBudget = 3

// Upper bound on resume latency while paused. Resume signals the loop
// directly; the periodic re-check only covers a missed signal or a stop
// issued mid-pause.
const pauseRecheck = 100 * time.Millisecond

// processFunc prepares one pulled frame for the wire. Raw sources get
// volume scaling plus Opus encoding; framed sources pass through untouched.
type processFunc func(frame []byte) ([]byte, error)

// Engine runs the paced delivery loop for one voice session.
//
// The Play methods are synchronous: they block the calling goroutine until
// the stream ends, is stopped, or fails. Callers wanting background playback
// run them in their own goroutine. Control methods (Pause, Resume, Skip,
// Stop, SetVolume) are safe to call from any goroutine while a loop runs.
//
// Starting a new play request while one is active stops the previous loop
// and waits for it to wind down before the new stream begins, so a session
// never has two loops emitting packets.
type Engine struct {
	encoder   Encoder
	transport Transport

	playing     atomic.Bool
	paused      atomic.Bool
	pendingSkip atomic.Int64
	volumeBits  atomic.Uint64
	packetsSent atomic.Int64

	clock Clock
	pacer *Pacer

	adjustInterval int
	adjustOffset   int

	// resume wakes a paused loop; buffered so Resume never blocks.
	resume chan struct{}

	// mu serializes play requests and guards done.
	mu   sync.Mutex
	done chan struct{}

	destroyOnce sync.Once
}

// NewEngine returns an Engine delivering frames from enc to tr at the
// default cadence. Volume and pacing tuning persist across play requests.
func NewEngine(enc Encoder, tr Transport) *Engine {
	e := &Engine{
		encoder:        enc,
		transport:      tr,
		pacer:          NewPacer(false),
		adjustInterval: DefaultAdjustInterval,
		adjustOffset:   DefaultAdjustOffset,
		resume:         make(chan struct{}, 1),
	}
	e.volumeBits.Store(math.Float64bits(1.0))
	return e
}

// SetPacing reconfigures the measurement schedule. An interval of zero
// disables latency correction and keeps the ideal cadence. Takes effect on
// the next play request.
func (e *Engine) SetPacing(interval, offset int, average bool) {
	e.mu.Lock()
	e.adjustInterval = interval
	e.adjustOffset = offset
	e.mu.Unlock()
	e.pacer.SetAveraging(average)
}

// PlayRaw streams raw s16le 48 kHz stereo PCM from r until it is exhausted.
func (e *Engine) PlayRaw(r io.Reader) error {
	return e.play(NewRawSource(r), e.processRaw)
}

// PlayFile decodes the file at path through the encoder collaborator and
// streams the resulting PCM.
func (e *Engine) PlayFile(path string) error {
	pcm, err := e.encoder.DecodeFile(path)
	if err != nil {
		return fmt.Errorf("decode file: %w", err)
	}
	defer pcm.Close()
	return e.PlayRaw(pcm)
}

// PlayStream decodes arbitrary audio from r through the encoder
// collaborator and streams the resulting PCM.
func (e *Engine) PlayStream(r io.Reader) error {
	pcm, err := e.encoder.DecodeStream(r)
	if err != nil {
		return fmt.Errorf("decode stream: %w", err)
	}
	defer pcm.Close()
	return e.PlayRaw(pcm)
}

// PlayFramed streams pre-encoded frames from a length-prefixed container.
// Frames are sent as-is; volume scaling does not apply.
func (e *Engine) PlayFramed(r io.Reader) error {
	return e.play(NewFramedSource(r), func(frame []byte) ([]byte, error) {
		return frame, nil
	})
}

// Pause suspends packet emission without ending the stream.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume lifts a pause. The loop wakes promptly rather than waiting out
// its re-check interval.
func (e *Engine) Resume() {
	e.paused.Store(false)
	e.signalResume()
}

// Stop ends the current stream. The loop observes the flag at the top of
// its next iteration, so cancellation latency is bounded by roughly one
// packet interval.
func (e *Engine) Stop() {
	e.playing.Store(false)
	e.signalResume()
}

// Skip discards the next ceil(seconds * 50) frames without sending them.
// Skips are forward-only and processed back-to-back without pacing delays.
func (e *Engine) Skip(seconds float64) {
	if seconds <= 0 {
		return
	}
	e.pendingSkip.Add(int64(math.Ceil(seconds * PacketsPerSecond)))
}

// PendingSkips returns how many upcoming frames will be discarded.
func (e *Engine) PendingSkips() int64 {
	return e.pendingSkip.Load()
}

// SetVolume sets the scaling factor applied to raw PCM before encoding.
// 1.0 is unity gain. The setting survives across play requests.
func (e *Engine) SetVolume(factor float64) {
	e.volumeBits.Store(math.Float64bits(factor))
}

// Volume returns the current volume factor.
func (e *Engine) Volume() float64 {
	return math.Float64frombits(e.volumeBits.Load())
}

// Playing reports whether a delivery loop is active.
func (e *Engine) Playing() bool {
	return e.playing.Load()
}

// Paused reports whether emission is currently suspended.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// Elapsed returns how much stream time has been emitted, derived from the
// packet count and the corrected packet length.
func (e *Engine) Elapsed() time.Duration {
	ms := float64(e.packetsSent.Load()) * e.pacer.LengthMS()
	return time.Duration(ms * float64(time.Millisecond))
}

// Destroy stops any active playback, waits for the loop to exit, and
// releases both collaborators. The collaborators are released exactly once
// even if Destroy is called repeatedly or while idle.
func (e *Engine) Destroy() error {
	e.Stop()

	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}

	var err error
	e.destroyOnce.Do(func() {
		err = errors.Join(e.encoder.Close(), e.transport.Close())
	})
	return err
}

// play runs the stop-before-start protocol and then the delivery loop in
// the calling goroutine.
func (e *Engine) play(src FrameSource, process processFunc) error {
	done, interval, offset := e.begin()
	return e.run(src, process, done, interval, offset)
}

// begin stops an in-flight loop, waits for it to fully wind down, and
// resets per-stream state. Volume and pacing tuning are deliberately left
// alone so caller adjustments persist across play requests.
func (e *Engine) begin() (chan struct{}, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.playing.Store(false)
	e.signalResume()
	if e.done != nil {
		<-e.done
	}

	e.clock.Reset()
	e.pacer.Reset()
	e.packetsSent.Store(0)
	e.pendingSkip.Store(0)
	e.paused.Store(false)

	e.done = make(chan struct{})
	e.playing.Store(true)
	return e.done, e.adjustInterval, e.adjustOffset
}

func (e *Engine) run(src FrameSource, process processFunc, done chan struct{}, adjustInterval, adjustOffset int) error {
	defer e.finish(done)

	if err := e.transport.SetSpeaking(true); err != nil {
		return fmt.Errorf("set speaking: %w", err)
	}

	retries := 0
	for e.playing.Load() {
		// Skip fast path: consume and discard a frame, keeping the
		// source and encoder side effects consistent, but leave the
		// clock untouched and send nothing. No pacing delay either,
		// so queued skips burn through back-to-back.
		if e.pendingSkip.Load() > 0 {
			if _, err := e.pullFrame(src, process, &retries); err != nil {
				return asStreamEnd(err)
			}
			e.pendingSkip.Add(-1)
			continue
		}

		sequence, timestamp := e.clock.Advance()

		frame, err := e.pullFrame(src, process, &retries)
		if err != nil {
			return asStreamEnd(err)
		}

		if err := e.transport.Send(frame, sequence, timestamp); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}
		sent := e.packetsSent.Add(1)

		if adjustInterval > 0 {
			if int(sent%int64(adjustInterval)) == adjustOffset {
				e.pacer.BeginWindow()
			} else if e.pacer.Pending() {
				length := e.pacer.EndWindow()
				slog.Debug("pacing window closed",
					"packets", sent,
					"lengthMS", length,
				)
			}
		}

		e.waitWhilePaused()
		time.Sleep(e.pacer.Delay())
	}

	return nil
}

// pullFrame reads and processes one frame, retrying underruns against the
// per-play budget. Exhausting the budget escalates to a clean stream end.
func (e *Engine) pullFrame(src FrameSource, process processFunc, retries *int) ([]byte, error) {
	for {
		frame, err := src.Next()
		if err == nil {
			return process(frame)
		}
		if errors.Is(err, ErrUnderrun) {
			if *retries >= retryBudget {
				slog.Warn("underrun retry budget exhausted, ending stream", "retries", *retries)
				return nil, ErrSourceExhausted
			}
			*retries++
			continue
		}
		return nil, err
	}
}

// processRaw applies volume scaling and Opus encoding to a raw PCM frame.
func (e *Engine) processRaw(frame []byte) ([]byte, error) {
	if v := e.Volume(); v != 1.0 {
		frame = e.encoder.AdjustVolume(frame, v)
	}
	encoded, err := e.encoder.Encode(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return encoded, nil
}

// waitWhilePaused parks the loop until emission is resumed or the stream is
// stopped. Packet emission halts but the session survives.
func (e *Engine) waitWhilePaused() {
	for e.paused.Load() && e.playing.Load() {
		select {
		case <-e.resume:
		case <-time.After(pauseRecheck):
		}
	}
}

// finish transitions to stopped: clear the flags, report not-speaking, and
// if any packets went out, leave one ideal frame of silence so the remote
// side hears a clean trailing gap instead of a hard cut.
func (e *Engine) finish(done chan struct{}) {
	e.playing.Store(false)
	e.paused.Store(false)

	if err := e.transport.SetSpeaking(false); err != nil {
		slog.Warn("failed to clear speaking state", "error", err)
	}

	if e.packetsSent.Load() > 0 {
		time.Sleep(FrameLengthMS * time.Millisecond)
	}

	close(done)
}

func (e *Engine) signalResume() {
	select {
	case e.resume <- struct{}{}:
	default:
	}
}

// asStreamEnd maps the expected termination sentinel to a nil error;
// anything else propagates to the caller.
func asStreamEnd(err error) error {
	if errors.Is(err, ErrSourceExhausted) {
		return nil
	}
	return err
}
