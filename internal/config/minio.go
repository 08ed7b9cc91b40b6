package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// MinioConfig locates the blob store holding encoded frame containers.
type MinioConfig struct {
	Endpoint string `env:"MINIO_ENDPOINT, required"`
	Username string `env:"MINIO_USERNAME, required"`
	Password string `env:"MINIO_PASSWORD, required"`
	// Bucket holds every guild's sounds, keyed by guild and sound ID.
	Bucket string `env:"MINIO_BUCKET, default=voicebox"`
}

func NewMinioConfigFromEnv() (*MinioConfig, error) {
	var cfg MinioConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
