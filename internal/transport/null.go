package transport

import (
	"sync/atomic"

	"github.com/lowensten/voicebox/internal/playback"
)

// Null discards every frame and counts what passed through. The dev CLI
// uses it to exercise the playback loop without a live connection.
type Null struct {
	sent     atomic.Int64
	speaking atomic.Bool
}

func NewNull() *Null {
	return &Null{}
}

func (n *Null) Send(frame []byte, _ uint16, _ uint32) error {
	n.sent.Add(1)
	return nil
}

func (n *Null) SetSpeaking(speaking bool) error {
	n.speaking.Store(speaking)
	return nil
}

func (n *Null) Close() error {
	return nil
}

// Sent reports how many frames were discarded so far.
func (n *Null) Sent() int64 {
	return n.sent.Load()
}

// Speaking reports the last speaking state set.
func (n *Null) Speaking() bool {
	return n.speaking.Load()
}

var _ playback.Transport = (*Null)(nil)
