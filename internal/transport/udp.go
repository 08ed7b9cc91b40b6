package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/lowensten/voicebox/internal/playback"
)

const (
	headerSize = 12
	nonceSize  = 24

	versionFlags = 0x80
	payloadType  = 0x78
)

// UDPVoice sends Opus frames over a UDP socket in RTP-style packets sealed
// with xsalsa20-poly1305. Each packet is a 12-byte header (version 0x80,
// payload type 0x78, big-endian sequence, timestamp, and SSRC) followed by
// the sealed frame; the nonce is the header padded to 24 bytes.
type UDPVoice struct {
	conn net.Conn
	ssrc uint32
	key  [32]byte

	// OnSpeaking, when set, is invoked from SetSpeaking so callers can
	// propagate the state over their signaling channel.
	OnSpeaking func(speaking bool) error

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// NewUDPVoice wraps an established UDP connection. The secret key is the
// 32-byte session key negotiated out of band.
func NewUDPVoice(conn net.Conn, ssrc uint32, key [32]byte) *UDPVoice {
	return &UDPVoice{
		conn: conn,
		ssrc: ssrc,
		key:  key,
		buf:  make([]byte, 0, headerSize+secretbox.Overhead+playback.FrameBytes),
	}
}

// Send seals one frame and writes it as a single datagram.
func (u *UDPVoice) Send(frame []byte, sequence uint16, timestamp uint32) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return net.ErrClosed
	}

	var header [headerSize]byte
	header[0] = versionFlags
	header[1] = payloadType
	binary.BigEndian.PutUint16(header[2:4], sequence)
	binary.BigEndian.PutUint32(header[4:8], timestamp)
	binary.BigEndian.PutUint32(header[8:12], u.ssrc)

	var nonce [nonceSize]byte
	copy(nonce[:], header[:])

	u.buf = append(u.buf[:0], header[:]...)
	u.buf = secretbox.Seal(u.buf, frame, &nonce, &u.key)

	if _, err := u.conn.Write(u.buf); err != nil {
		return fmt.Errorf("write voice packet: %w", err)
	}
	return nil
}

func (u *UDPVoice) SetSpeaking(speaking bool) error {
	if u.OnSpeaking == nil {
		return nil
	}
	return u.OnSpeaking(speaking)
}

func (u *UDPVoice) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	return u.conn.Close()
}

var _ playback.Transport = (*UDPVoice)(nil)
