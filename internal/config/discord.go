package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// DiscordConfig identifies the bot and scopes where its commands register.
type DiscordConfig struct {
	// Token authenticates the gateway session.
	Token string `env:"DISCORD_TOKEN, required"`
	// GuildID scopes slash commands to one guild for fast iteration.
	GuildID string `env:"DISCORD_GUILD_ID"`
	// RunBotGlobally registers commands globally instead of per guild.
	// Global registration propagates slowly, so development runs pin a guild.
	RunBotGlobally bool `env:"DISCORD_RUN_BOT_GLOBALLY"`
	// ClientID is the application ID the commands register under.
	ClientID string `env:"DISCORD_CLIENT_ID, required"`
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.GuildID == "" && !cfg.RunBotGlobally {
		return nil, fmt.Errorf("no command scope: set DISCORD_GUILD_ID, or DISCORD_RUN_BOT_GLOBALLY=true to register globally")
	}

	return &cfg, nil
}
