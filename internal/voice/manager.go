package voice

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/lowensten/voicebox/internal/codec"
	"github.com/lowensten/voicebox/internal/config"
	"github.com/lowensten/voicebox/internal/playback"
	"github.com/lowensten/voicebox/internal/transport"
)

// Manager owns one playback engine per guild. Joining a channel while the
// guild already has an engine reuses it; the engine's own serialization
// stops any sound still playing.
type Manager struct {
	session *discordgo.Session
	cfg     *config.VoiceConfig

	mu      sync.Mutex
	engines map[string]*playback.Engine
}

func NewManager(session *discordgo.Session, cfg *config.VoiceConfig) *Manager {
	return &Manager{
		session: session,
		cfg:     cfg,
		engines: make(map[string]*playback.Engine),
	}
}

// Join connects to the voice channel and returns the guild's engine,
// creating one on first use.
func (m *Manager) Join(guildID, channelID string) (*playback.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if engine, ok := m.engines[guildID]; ok {
		if _, err := m.session.ChannelVoiceJoin(guildID, channelID, false, true); err != nil {
			return nil, fmt.Errorf("unable to move to voice channel: %w", err)
		}
		return engine, nil
	}

	vc, err := m.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("unable to join the voice channel: %w", err)
	}

	encoder, err := codec.NewOpusEncoder(m.cfg.Bitrate)
	if err != nil {
		if derr := vc.Disconnect(); derr != nil {
			err = fmt.Errorf("%w (disconnect: %v)", err, derr)
		}
		return nil, fmt.Errorf("unable to create encoder: %w", err)
	}
	encoder.FFmpegPath = m.cfg.FFmpegPath

	engine := playback.NewEngine(encoder, transport.NewDiscordVoice(vc))
	engine.SetPacing(m.cfg.AdjustInterval, m.cfg.AdjustOffset, m.cfg.PacingAverage)
	m.engines[guildID] = engine
	return engine, nil
}

// Get returns the guild's engine if one exists.
func (m *Manager) Get(guildID string) (*playback.Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	engine, ok := m.engines[guildID]
	return engine, ok
}

// Leave tears down the guild's engine and disconnects from voice.
func (m *Manager) Leave(guildID string) error {
	m.mu.Lock()
	engine, ok := m.engines[guildID]
	delete(m.engines, guildID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return engine.Destroy()
}

// Close tears down every guild's engine.
func (m *Manager) Close() error {
	m.mu.Lock()
	engines := m.engines
	m.engines = make(map[string]*playback.Engine)
	m.mu.Unlock()

	var err error
	for guildID, engine := range engines {
		if derr := engine.Destroy(); derr != nil {
			err = fmt.Errorf("destroy engine for guild %s: %w", guildID, derr)
		}
	}
	return err
}

// MaxAttendedChannel returns the voice channel with the most members in it,
// or nil if no channel has any members.
func MaxAttendedChannel(channels []*discordgo.Channel) *discordgo.Channel {
	var maxAttendedChannel *discordgo.Channel
	maxAttended := -1

	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}

		if len(channel.Members) > maxAttended {
			maxAttendedChannel = channel
			maxAttended = len(channel.Members)
		}
	}

	return maxAttendedChannel
}
