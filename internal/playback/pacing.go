package playback

import (
	"sync"
	"time"
)

// Default pacing measurement schedule: measure one loop iteration every
// hundred packets, offset so the first window lands after startup settles.
const (
	DefaultAdjustInterval = 100
	DefaultAdjustOffset   = 10
)

// IdealLengthMS is the target inter-packet delay in milliseconds.
const IdealLengthMS = 20.0

// Pacer computes the corrected inter-packet delay from periodic latency
// measurements. At a measurement boundary the Engine calls BeginWindow,
// and exactly one packet later EndWindow, which folds the observed
// iteration time into the delay for the following window.
//
// Pacer is safe for concurrent use; the loop goroutine updates it while
// other goroutines read the current length for elapsed-time queries.
type Pacer struct {
	mu        sync.Mutex
	average   bool
	lengthMS  float64
	pending   bool
	startedAt time.Time

	// now is replaced in tests to feed synthetic measurements.
	now func() time.Time
}

// NewPacer returns a Pacer starting at the ideal cadence. With average set,
// each correction is smoothed with the previous window's length instead of
// replacing it outright.
func NewPacer(average bool) *Pacer {
	return &Pacer{
		average:  average,
		lengthMS: IdealLengthMS,
		now:      time.Now,
	}
}

// LengthMS returns the current corrected inter-packet delay in milliseconds.
func (p *Pacer) LengthMS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lengthMS
}

// Delay returns the current inter-packet delay as a duration.
func (p *Pacer) Delay() time.Duration {
	return time.Duration(p.LengthMS() * float64(time.Millisecond))
}

// BeginWindow captures the monotonic start of a measurement window.
func (p *Pacer) BeginWindow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startedAt = p.now()
	p.pending = true
}

// Pending reports whether a window was begun and not yet ended.
func (p *Pacer) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// EndWindow closes the measurement window and returns the new delay.
// A negative elapsed time (clock anomaly) drops the measurement and keeps
// the previous length. The corrected length is floored at zero so the loop
// never tries to sleep a negative duration; a window measured that badly
// simply runs flat out until the next measurement recovers.
func (p *Pacer) EndWindow() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pending {
		return p.lengthMS
	}
	p.pending = false

	elapsedMS := float64(p.now().Sub(p.startedAt)) / float64(time.Millisecond)
	if elapsedMS < 0 {
		return p.lengthMS
	}

	next := IdealLengthMS - elapsedMS
	if p.average {
		next = (next + p.lengthMS) / 2
	}
	if next < 0 {
		next = 0
	}
	p.lengthMS = next
	return next
}

// Reset restores the ideal cadence and discards any open window.
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lengthMS = IdealLengthMS
	p.pending = false
}

// SetAveraging toggles smoothing of corrections with the previous length.
func (p *Pacer) SetAveraging(average bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.average = average
}
