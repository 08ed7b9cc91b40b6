package transport

import (
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lowensten/voicebox/internal/playback"
)

// ErrSendTimeout reports that the voice connection stopped draining its
// send channel, which usually means it silently died.
var ErrSendTimeout = errors.New("voice connection send timeout")

// DiscordVoice adapts a discordgo voice connection to playback.Transport.
// discordgo owns the wire framing, so the sequence and timestamp arguments
// are satisfied by its internal counters and ignored here.
type DiscordVoice struct {
	vc          *discordgo.VoiceConnection
	sendTimeout time.Duration
}

// NewDiscordVoice wraps an already-joined voice connection.
func NewDiscordVoice(vc *discordgo.VoiceConnection) *DiscordVoice {
	return &DiscordVoice{
		vc:          vc,
		sendTimeout: time.Minute,
	}
}

// Send queues one Opus frame for transmission. Fire-and-forget: a frame is
// either accepted by the connection or the connection is declared dead.
func (d *DiscordVoice) Send(frame []byte, _ uint16, _ uint32) error {
	timer := time.NewTimer(d.sendTimeout)
	defer timer.Stop()

	select {
	case d.vc.OpusSend <- frame:
		return nil
	case <-timer.C:
		return ErrSendTimeout
	}
}

// SetSpeaking reports speaking state over the voice websocket.
func (d *DiscordVoice) SetSpeaking(speaking bool) error {
	return d.vc.Speaking(speaking)
}

// Close disconnects from the voice channel.
func (d *DiscordVoice) Close() error {
	return d.vc.Disconnect()
}

var _ playback.Transport = (*DiscordVoice)(nil)
