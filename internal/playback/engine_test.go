package playback_test

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lowensten/voicebox/internal/playback"
)

// stubEncoder is a pass-through Encoder that records its calls.
type stubEncoder struct {
	mu          sync.Mutex
	encodeCalls int
	volumeCalls []float64
	closeCalls  int
}

func (s *stubEncoder) Encode(pcm []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encodeCalls++
	return pcm, nil
}

func (s *stubEncoder) AdjustVolume(pcm []byte, factor float64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumeCalls = append(s.volumeCalls, factor)
	return pcm
}

func (s *stubEncoder) DecodeFile(path string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (s *stubEncoder) DecodeStream(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (s *stubEncoder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *stubEncoder) closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

type sentPacket struct {
	sequence  uint16
	timestamp uint32
	size      int
}

// recordingTransport captures every send and speaking transition.
type recordingTransport struct {
	mu         sync.Mutex
	sent       []sentPacket
	speaking   []bool
	closeCalls int
}

func (r *recordingTransport) Send(frame []byte, sequence uint16, timestamp uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentPacket{sequence: sequence, timestamp: timestamp, size: len(frame)})
	return nil
}

func (r *recordingTransport) SetSpeaking(speaking bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaking = append(r.speaking, speaking)
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeCalls++
	return nil
}

func (r *recordingTransport) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingTransport) packets() []sentPacket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentPacket(nil), r.sent...)
}

func (r *recordingTransport) speakingCalls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.speaking...)
}

func (r *recordingTransport) closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCalls
}

var _ playback.Encoder = (*stubEncoder)(nil)
var _ playback.Transport = (*recordingTransport)(nil)

// framedContainer builds a length-prefixed container with n frames of the
// given payload.
func framedContainer(n int, payload []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.WriteByte(byte(len(payload)))
		buf.WriteByte(byte(len(payload) >> 8))
		buf.Write(payload)
	}
	return buf.Bytes()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPlayFramedSendsAllFrames(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	container := []byte{0x02, 0x00, 0xAA, 0xBB, 0x00, 0x00}
	if err := e.PlayFramed(bytes.NewReader(container)); err != nil {
		t.Fatalf("PlayFramed() error: %v", err)
	}

	got := tr.packets()
	want := []sentPacket{
		{sequence: 1, timestamp: 960, size: 2},
		{sequence: 2, timestamp: 1920, size: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("sent %d packets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("packet %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	speaking := tr.speakingCalls()
	if len(speaking) != 2 || !speaking[0] || speaking[1] {
		t.Errorf("speaking calls = %v, want [true false]", speaking)
	}

	// Framed frames are passed through; the encoder must stay untouched.
	if enc.encodeCalls != 0 || len(enc.volumeCalls) != 0 {
		t.Errorf("encoder touched during framed playback: %d encodes, %v volume calls",
			enc.encodeCalls, enc.volumeCalls)
	}

	if e.Playing() {
		t.Error("Playing() = true after stream end")
	}
}

func TestPlayRawEncodesAndPaces(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	start := time.Now()
	if err := e.PlayRaw(bytes.NewReader(make([]byte, playback.FrameBytes*3))); err != nil {
		t.Fatalf("PlayRaw() error: %v", err)
	}
	elapsed := time.Since(start)

	if got := tr.sentCount(); got != 3 {
		t.Fatalf("sent %d packets, want 3", got)
	}
	if enc.encodeCalls != 3 {
		t.Errorf("encoder calls = %d, want 3", enc.encodeCalls)
	}
	// Three paced packets plus the trailing grace frame.
	if elapsed < 60*time.Millisecond {
		t.Errorf("playback finished in %v, want at least 60ms of pacing", elapsed)
	}
}

func TestStopTerminatesWithinOneInterval(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	// Endless source: zeros forever.
	finished := make(chan error, 1)
	go func() {
		finished <- e.PlayRaw(endlessZeros{})
	}()

	waitFor(t, time.Second, func() bool { return tr.sentCount() >= 1 })

	e.Stop()
	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("PlayRaw() after Stop() error: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("loop did not terminate after Stop()")
	}

	speaking := tr.speakingCalls()
	var falses int
	for _, s := range speaking {
		if !s {
			falses++
		}
	}
	if falses != 1 {
		t.Errorf("SetSpeaking(false) called %d times, want exactly 1", falses)
	}
}

func TestSkipConversion(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int64
	}{
		{seconds: 0.02, want: 1},
		{seconds: 0.05, want: 3},
		{seconds: 0.12, want: 6},
		{seconds: 1.0, want: 50},
		{seconds: 0, want: 0},
		{seconds: -2, want: 0},
	}

	for _, tt := range tests {
		e := playback.NewEngine(&stubEncoder{}, &recordingTransport{})
		e.Skip(tt.seconds)
		if got := e.PendingSkips(); got != tt.want {
			t.Errorf("Skip(%v) pending = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestSkipSuppressesSendsAndClock(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	pr, pw := io.Pipe()
	finished := make(chan error, 1)
	go func() {
		finished <- e.PlayRaw(pr)
	}()

	waitFor(t, time.Second, func() bool { return e.Playing() })

	// Two of the next frames must be consumed silently.
	e.Skip(0.04)

	frame := make([]byte, playback.FrameBytes)
	for i := 0; i < 4; i++ {
		if _, err := pw.Write(frame); err != nil {
			t.Fatalf("feeding frame %d: %v", i, err)
		}
	}
	pw.Close()

	if err := <-finished; err != nil {
		t.Fatalf("PlayRaw() error: %v", err)
	}

	// Four frames in, two skipped: exactly two packets out, numbered
	// consecutively because the clock holds still across skips.
	got := tr.packets()
	if len(got) != 2 {
		t.Fatalf("sent %d packets, want 2", len(got))
	}
	if got[0].sequence != 1 || got[0].timestamp != 960 {
		t.Errorf("first packet = (%d, %d), want (1, 960)", got[0].sequence, got[0].timestamp)
	}
	if got[1].sequence != 2 || got[1].timestamp != 1920 {
		t.Errorf("second packet = (%d, %d), want (2, 1920)", got[1].sequence, got[1].timestamp)
	}
	if skips := e.PendingSkips(); skips != 0 {
		t.Errorf("pending skips after play = %d, want 0", skips)
	}
}

func TestUnderrunRetryBudgetEndsStreamCleanly(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	// A source that forever delivers torn length prefixes exhausts the
	// retry budget and must end the stream without an error or a packet.
	if err := e.PlayFramed(perpetualUnderrun{}); err != nil {
		t.Fatalf("PlayFramed() error: %v", err)
	}

	if got := tr.sentCount(); got != 0 {
		t.Errorf("sent %d packets, want 0", got)
	}
	speaking := tr.speakingCalls()
	if len(speaking) != 2 || !speaking[0] || speaking[1] {
		t.Errorf("speaking calls = %v, want [true false]", speaking)
	}
}

func TestPauseHaltsEmissionAndResumeContinues(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	finished := make(chan error, 1)
	go func() {
		finished <- e.PlayRaw(endlessZeros{})
	}()

	waitFor(t, time.Second, func() bool { return tr.sentCount() >= 1 })

	e.Pause()
	// One in-flight frame may still go out before the loop parks.
	time.Sleep(50 * time.Millisecond)
	paused := tr.sentCount()

	time.Sleep(150 * time.Millisecond)
	if got := tr.sentCount(); got != paused {
		t.Errorf("packets sent while paused: %d -> %d", paused, got)
	}

	e.Resume()
	waitFor(t, time.Second, func() bool { return tr.sentCount() > paused })

	e.Stop()
	if err := <-finished; err != nil {
		t.Fatalf("PlayRaw() error: %v", err)
	}
}

func TestNewPlayStopsPreviousLoop(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	first := make(chan error, 1)
	go func() {
		first <- e.PlayRaw(endlessZeros{})
	}()

	waitFor(t, time.Second, func() bool { return tr.sentCount() >= 1 })

	// A second play request must fully stop the first loop before
	// emitting anything of its own.
	if err := e.PlayFramed(bytes.NewReader(framedContainer(2, []byte{0x01}))); err != nil {
		t.Fatalf("PlayFramed() error: %v", err)
	}

	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("first PlayRaw() error: %v", err)
		}
	default:
		t.Fatal("first loop still running after second play returned")
	}

	// The second stream restarts the clock from zero.
	pkts := tr.packets()
	last := pkts[len(pkts)-1]
	if last.sequence != 2 || last.timestamp != 1920 {
		t.Errorf("final packet = (%d, %d), want (2, 1920) from restarted clock",
			last.sequence, last.timestamp)
	}
}

func TestVolumeAppliedToRawOnly(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	e.SetVolume(0.5)
	if err := e.PlayRaw(bytes.NewReader(make([]byte, playback.FrameBytes))); err != nil {
		t.Fatalf("PlayRaw() error: %v", err)
	}
	if len(enc.volumeCalls) != 1 || enc.volumeCalls[0] != 0.5 {
		t.Errorf("volume calls = %v, want [0.5]", enc.volumeCalls)
	}

	// Unity gain skips the volume step entirely.
	enc.volumeCalls = nil
	e.SetVolume(1.0)
	if err := e.PlayRaw(bytes.NewReader(make([]byte, playback.FrameBytes))); err != nil {
		t.Fatalf("PlayRaw() error: %v", err)
	}
	if len(enc.volumeCalls) != 0 {
		t.Errorf("volume calls at unity gain = %v, want none", enc.volumeCalls)
	}
}

func TestElapsedDerivesFromPacketCount(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	if err := e.PlayFramed(bytes.NewReader(framedContainer(2, []byte{0x01}))); err != nil {
		t.Fatalf("PlayFramed() error: %v", err)
	}

	if got := e.Elapsed(); got != 40*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 40ms", got)
	}
}

func TestDestroyReleasesCollaboratorsOnce(t *testing.T) {
	enc := &stubEncoder{}
	tr := &recordingTransport{}
	e := playback.NewEngine(enc, tr)

	// Destroy while idle still releases both collaborators.
	if err := e.Destroy(); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}
	if e.Playing() {
		t.Error("Playing() = true after Destroy()")
	}
	if enc.closed() != 1 || tr.closed() != 1 {
		t.Errorf("release counts = (%d, %d), want (1, 1)", enc.closed(), tr.closed())
	}

	if err := e.Destroy(); err != nil {
		t.Fatalf("second Destroy() error: %v", err)
	}
	if enc.closed() != 1 || tr.closed() != 1 {
		t.Errorf("release counts after second Destroy = (%d, %d), want (1, 1)",
			enc.closed(), tr.closed())
	}
}

// endlessZeros produces silence forever.
type endlessZeros struct{}

func (endlessZeros) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// perpetualUnderrun hands io.ReadFull one byte and EOF on every call,
// producing an endless stream of torn reads.
type perpetualUnderrun struct{}

func (perpetualUnderrun) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = 0x01
	return 1, io.EOF
}
