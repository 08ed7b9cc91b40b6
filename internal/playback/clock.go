package playback

// Voice packets carry 48 kHz stereo audio in 20ms frames.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of interleaved audio channels.
	Channels = 2
	// FrameSamples is the number of samples per channel in one frame.
	FrameSamples = 960
	// FrameBytes is the size of one raw frame: 960 stereo 16-bit samples.
	FrameBytes = FrameSamples * Channels * 2
	// PacketsPerSecond is how many frames fill one second of audio.
	PacketsPerSecond = 1000 / FrameLengthMS
	// FrameLengthMS is the ideal inter-packet cadence in milliseconds.
	FrameLengthMS = 20
)

// Counter ceilings for the fixed-width wire fields, with safety margins.
// Wraparound triggers when the next increment would land inside the margin,
// not at the literal ceiling. The lookahead keeps the counters from ever
// overflowing the wire format's uint16/uint32 fields mid-stream.
const (
	maxSequence     = 65535
	sequenceMargin  = 10
	maxTimestamp    = 4294967295
	timestampMargin = 9600
)

// Clock generates the packet sequence number and sample timestamp for each
// emitted packet. It is pure arithmetic; the Engine owns all synchronization.
type Clock struct {
	sequence  uint16
	timestamp uint32
}

// Advance steps both counters for the next packet and returns the new values.
// The sequence increments by one and the timestamp by one frame's worth of
// samples, each resetting to zero at its safety margin.
func (c *Clock) Advance() (sequence uint16, timestamp uint32) {
	if uint32(c.sequence)+sequenceMargin >= maxSequence {
		c.sequence = 0
	} else {
		c.sequence++
	}

	if uint64(c.timestamp)+timestampMargin >= maxTimestamp {
		c.timestamp = 0
	} else {
		c.timestamp += FrameSamples
	}

	return c.sequence, c.timestamp
}

// Reset returns both counters to zero for a fresh stream.
func (c *Clock) Reset() {
	c.sequence = 0
	c.timestamp = 0
}
