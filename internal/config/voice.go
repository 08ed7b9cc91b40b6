package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// VoiceConfig tunes the paced playback loop and the encoder.
type VoiceConfig struct {
	// AdjustInterval is the packet count between pacing measurement windows.
	AdjustInterval int `env:"VOICE_ADJUST_INTERVAL, default=100"`
	// AdjustOffset is where within each interval the window opens.
	AdjustOffset int `env:"VOICE_ADJUST_OFFSET, default=10"`
	// PacingAverage blends each new frame length with the previous one
	// instead of replacing it.
	PacingAverage bool `env:"VOICE_PACING_AVERAGE"`
	// Bitrate is the Opus encoder bitrate in bits per second.
	Bitrate int `env:"VOICE_BITRATE, default=64000"`
	// FFmpegPath overrides the ffmpeg binary used for transcoding.
	FFmpegPath string `env:"VOICE_FFMPEG_PATH, default=ffmpeg"`
}

func NewVoiceConfigFromEnv() (*VoiceConfig, error) {
	var cfg VoiceConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.AdjustInterval <= 0 {
		return nil, fmt.Errorf("VOICE_ADJUST_INTERVAL must be positive, got %d", cfg.AdjustInterval)
	}
	if cfg.AdjustOffset < 0 || cfg.AdjustOffset >= cfg.AdjustInterval {
		return nil, fmt.Errorf("VOICE_ADJUST_OFFSET %d must be within [0, %d)", cfg.AdjustOffset, cfg.AdjustInterval)
	}
	return &cfg, nil
}
