package playback_test

import (
	"testing"

	"github.com/lowensten/voicebox/internal/playback"
)

func TestClockAdvanceSteps(t *testing.T) {
	var c playback.Clock

	seq, ts := c.Advance()
	if seq != 1 || ts != 960 {
		t.Fatalf("first Advance() = (%d, %d), want (1, 960)", seq, ts)
	}

	seq, ts = c.Advance()
	if seq != 2 || ts != 1920 {
		t.Fatalf("second Advance() = (%d, %d), want (2, 1920)", seq, ts)
	}
}

func TestClockSequenceWrapsAtMargin(t *testing.T) {
	var c playback.Clock

	var prev uint16
	wrapped := false
	for i := 0; i < 70000; i++ {
		seq, _ := c.Advance()
		if seq == 0 {
			// The wraparound fires at the safety margin, ten short of
			// the uint16 ceiling, never at the ceiling itself.
			if prev != 65525 {
				t.Fatalf("sequence wrapped after %d, want wrap after 65525", prev)
			}
			wrapped = true
			break
		}
		if seq != prev+1 {
			t.Fatalf("sequence jumped from %d to %d", prev, seq)
		}
		prev = seq
	}
	if !wrapped {
		t.Fatal("sequence never wrapped within 70000 advances")
	}
}

func TestClockTimestampWrapsAtMargin(t *testing.T) {
	var c playback.Clock

	var prev uint32
	wrapped := false
	// Timestamp climbs by 960 per packet and wraps inside the 9600-sample
	// margin below the uint32 ceiling; ~4.5M advances reach it.
	for i := 0; i < 4_500_000; i++ {
		_, ts := c.Advance()
		if ts == 0 {
			if uint64(prev)+9600 < 4294967295 {
				t.Fatalf("timestamp wrapped early after %d", prev)
			}
			wrapped = true
			break
		}
		if ts != prev+960 {
			t.Fatalf("timestamp jumped from %d to %d", prev, ts)
		}
		prev = ts
	}
	if !wrapped {
		t.Fatal("timestamp never wrapped within 4.5M advances")
	}
}

func TestClockReset(t *testing.T) {
	var c playback.Clock
	c.Advance()
	c.Advance()
	c.Reset()

	seq, ts := c.Advance()
	if seq != 1 || ts != 960 {
		t.Errorf("Advance() after Reset() = (%d, %d), want (1, 960)", seq, ts)
	}
}
