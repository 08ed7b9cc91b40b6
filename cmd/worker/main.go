package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lowensten/voicebox/internal/announce"
	"github.com/lowensten/voicebox/internal/config"
	"github.com/lowensten/voicebox/internal/datalayer"
	"github.com/lowensten/voicebox/internal/handler"
	"github.com/lowensten/voicebox/internal/voice"
)

var dryRun = flag.Bool("dry-run", false, "Do not use Discord, just print job info to terminal")

func jobLogAttrs(job announce.PlayJob) []any {
	return []any{
		"announcementID", job.AnnouncementID,
		"guildID", job.GuildID,
		"channelID", job.ChannelID,
		"storageKey", job.StorageKey,
		"runAt", job.RunTime.Format(time.RFC3339),
	}
}

func runWorkerForever() error {
	flag.Parse()
	slog.SetLogLoggerLevel(slog.LevelDebug)
	config.LoadEnv()
	ctx := context.Background()

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}

	voiceConfig, err := config.NewVoiceConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load voice config: %w", err)
	}

	minioStorage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create minio storage: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	queue, err := announce.NewRedisJobQueue(rdb)
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}

	consumer, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}

	session, err := handler.NewSession(discordConfig.Token, handler.Handlers{
		Ready: handler.ReadyLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Error("failed to close discord session", "error", err)
		}
	}()

	manager := voice.NewManager(session, voiceConfig)
	defer func() {
		if err := manager.Close(); err != nil {
			slog.Error("failed to close voice manager", "error", err)
		}
	}()

	for {
		jobs, err := queue.Consume(ctx, consumer, 30*time.Second)
		if err != nil {
			return fmt.Errorf("failed to receive jobs: %w", err)
		}

		for _, job := range jobs {
			job := job
			announce.RunAt(ctx, job.RunTime, func(ctx context.Context) {
				if *dryRun {
					slog.Info("Dry run mode: job would be executed", jobLogAttrs(job)...)
					return
				}
				if err := playJob(ctx, manager, minioStorage, job); err != nil {
					attrs := append(jobLogAttrs(job), "error", err)
					slog.Error("failed to execute announcement job", attrs...)
				}
			})
		}
	}
}

// playJob plays one stored sound in the job's channel and blocks until the
// sound finishes.
func playJob(ctx context.Context, manager *voice.Manager, storage datalayer.BlobStorage, job announce.PlayJob) error {
	stream, err := storage.Get(ctx, job.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to fetch sound: %w", err)
	}
	defer stream.Close()

	engine, err := manager.Join(job.GuildID, job.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	if err := engine.PlayFramed(stream); err != nil {
		return fmt.Errorf("failed to play sound: %w", err)
	}
	return nil
}

func main() {
	if err := runWorkerForever(); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
