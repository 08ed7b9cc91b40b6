package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// RedisConfig locates the redis instance backing the announcement job
// stream shared by the bot and its playback workers.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, required"`
	// Password is empty for unauthenticated development instances.
	Password string `env:"REDIS_PASSWORD"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
