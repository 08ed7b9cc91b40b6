package announce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobStream        = "announce_jobs"
	jobConsumerGroup = "announce_playback_group"
)

// PlayJob asks the playback worker to play one stored sound in a channel.
type PlayJob struct {
	AnnouncementID string
	GuildID        string
	ChannelID      string
	StorageKey     string
	RunTime        time.Time
}

// JobQueue hands claimed announcement jobs to playback workers.
type JobQueue interface {
	Enqueue(ctx context.Context, jobs ...PlayJob) error
}

type RedisJobQueue struct {
	client *redis.Client
}

// NewRedisJobQueue creates the stream and consumer group if needed.
func NewRedisJobQueue(client *redis.Client) (*RedisJobQueue, error) {
	err := client.XGroupCreateMkStream(context.Background(), jobStream, jobConsumerGroup, "$").Err()
	if err != nil && !errors.Is(err, redis.Nil) && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, err
	}
	return &RedisJobQueue{client: client}, nil
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, jobs ...PlayJob) error {
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, job := range jobs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: jobStream,
				Values: map[string]any{
					"announcementID": job.AnnouncementID,
					"guildID":        job.GuildID,
					"channelID":      job.ChannelID,
					"storageKey":     job.StorageKey,
					"runAt":          job.RunTime.Format(time.RFC3339),
				},
			})
		}
		return nil
	})
	return err
}

// Consume blocks for up to the given duration and returns the next batch of
// jobs addressed to this consumer. An empty slice means the wait timed out.
func (q *RedisJobQueue) Consume(ctx context.Context, consumer string, block time.Duration) ([]PlayJob, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    jobConsumerGroup,
		Consumer: consumer,
		Streams:  []string{jobStream, ">"},
		Count:    10,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job stream: %w", err)
	}

	var jobs []PlayJob
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job, err := playJobFromValues(msg.Values)
			if err != nil {
				return nil, fmt.Errorf("malformed job %s: %w", msg.ID, err)
			}
			jobs = append(jobs, job)

			if err := q.client.XAck(ctx, jobStream, jobConsumerGroup, msg.ID).Err(); err != nil {
				return nil, fmt.Errorf("failed to ack job %s: %w", msg.ID, err)
			}
		}
	}
	return jobs, nil
}

func playJobFromValues(values map[string]any) (PlayJob, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}

	runAt, err := time.Parse(time.RFC3339, str("runAt"))
	if err != nil {
		return PlayJob{}, fmt.Errorf("bad runAt: %w", err)
	}

	job := PlayJob{
		AnnouncementID: str("announcementID"),
		GuildID:        str("guildID"),
		ChannelID:      str("channelID"),
		StorageKey:     str("storageKey"),
		RunTime:        runAt,
	}
	if job.GuildID == "" || job.ChannelID == "" || job.StorageKey == "" {
		return PlayJob{}, fmt.Errorf("missing required fields in %v", values)
	}
	return job, nil
}
