package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lowensten/voicebox/internal/announce"
	"github.com/lowensten/voicebox/internal/config"
	"github.com/lowensten/voicebox/internal/datalayer"
	"github.com/lowensten/voicebox/internal/handler"
	"github.com/lowensten/voicebox/internal/repository"
	"github.com/lowensten/voicebox/internal/voice"
)

// pollInterval staggers announcement claims so multiple bot replicas do not
// hammer the job table at the same moment.
const pollInterval = 27 * time.Second

func runBotForever() error {
	config.LoadEnv()
	ctx := context.Background()

	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}

	voiceConfig, err := config.NewVoiceConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load voice config: %w", err)
	}

	soundRepo := repository.NewPostgresSoundRepository(pool)
	announcementRepo := repository.NewPostgresAnnouncementRepository(pool)

	minioStorage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := minioStorage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure minio bucket: %w", err)
	}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
	})
	jobQueue, err := announce.NewRedisJobQueue(rdb)
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}

	svc := &handler.SoundService{
		Repo:          soundRepo,
		Announcements: announcementRepo,
		Storage:       minioStorage,
		FFmpegPath:    voiceConfig.FFmpegPath,
		Bitrate:       voiceConfig.Bitrate,
	}

	session, err := handler.NewSession(discordConfig.Token, handler.Handlers{
		Ready:             handler.ReadyLog,
		InteractionCreate: handler.MakeInteractionCreateHandler(svc),
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	svc.Manager = voice.NewManager(session, voiceConfig)
	defer func() {
		if err := svc.Manager.Close(); err != nil {
			slog.Warn("failed to close voice manager", "error", err)
		}
	}()

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	commandGuild := discordConfig.GuildID
	if discordConfig.RunBotGlobally {
		commandGuild = ""
	}
	if err := handler.EstablishCommands(session, commandGuild); err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}

	go pollAnnouncements(ctx, announcementRepo, jobQueue)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	return nil
}

// pollAnnouncements periodically claims due announcement jobs, hands them to
// the playback workers, and restocks each claimed announcement's schedule.
func pollAnnouncements(ctx context.Context, repo *repository.PostgresAnnouncementRepository, queue announce.JobQueue) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		due, err := repo.ClaimDue(ctx, time.Now().Add(time.Minute))
		if err != nil {
			slog.Error("failed to claim due announcement jobs", "error", err)
			continue
		}
		if len(due) == 0 {
			continue
		}

		jobs := make([]announce.PlayJob, 0, len(due))
		claimed := make(map[string]repository.DueJob)
		for _, d := range due {
			jobs = append(jobs, announce.PlayJob{
				AnnouncementID: d.AnnouncementID.String(),
				GuildID:        d.GuildID,
				ChannelID:      d.ChannelID,
				StorageKey:     d.StorageKey,
				RunTime:        d.RunTime,
			})
			claimed[d.AnnouncementID.String()] = d
		}

		if err := queue.Enqueue(ctx, jobs...); err != nil {
			slog.Error("failed to enqueue announcement jobs", "error", err)
			continue
		}
		slog.Info("enqueued announcement jobs", "count", len(jobs))

		for _, d := range claimed {
			if err := repo.Refill(ctx, d.AnnouncementID); err != nil {
				slog.Error("failed to refill announcement jobs", "announcementID", d.AnnouncementID, "error", err)
			}
		}
	}
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
