package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lowensten/voicebox/internal/announce"
)

// Announcement schedules a sound to play in a channel on a cron cadence.
type Announcement struct {
	ID        uuid.UUID
	SoundID   uuid.UUID
	ChannelID string
	Cron      string
}

// AnnouncementJob is one concrete upcoming run of an announcement.
type AnnouncementJob struct {
	ID             int64
	AnnouncementID uuid.UUID
	RunTime        time.Time
}

// AnnouncementSaver is the write surface the schedule command needs.
type AnnouncementSaver interface {
	Save(ctx context.Context, a Announcement) error
}

type PostgresAnnouncementRepository struct {
	db *pgxpool.Pool
}

var _ AnnouncementSaver = (*PostgresAnnouncementRepository)(nil)

func NewPostgresAnnouncementRepository(db *pgxpool.Pool) *PostgresAnnouncementRepository {
	return &PostgresAnnouncementRepository{db: db}
}

// Save upserts the announcement and materializes its next five run times so
// the worker can claim them.
func (r *PostgresAnnouncementRepository) Save(ctx context.Context, a Announcement) error {
	const announcementQuery = `
	INSERT INTO announcement (id, sound_id, channel_id, cron)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		sound_id = EXCLUDED.sound_id,
		channel_id = EXCLUDED.channel_id,
		cron = EXCLUDED.cron
	`

	nextRuns, err := announce.NextRunTimes(a.Cron, 5)
	if err != nil {
		return fmt.Errorf("failed to get next run times: %w", err)
	}

	const jobsQuery = `
	INSERT INTO announcement_job (announcement_id, run_time)
	SELECT $1, unnest($2::timestamptz[])
	ON CONFLICT (announcement_id, run_time) DO NOTHING
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Warn("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, announcementQuery, a.ID, a.SoundID, a.ChannelID, a.Cron); err != nil {
		return fmt.Errorf("failed to save announcement: %w", err)
	}

	if _, err := tx.Exec(ctx, jobsQuery, a.ID, nextRuns); err != nil {
		return fmt.Errorf("failed to save announcement jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ClaimDue removes and returns jobs whose run time is at or before now,
// joined with the sound and channel needed to play them.
type DueJob struct {
	AnnouncementID uuid.UUID
	ChannelID      string
	GuildID        string
	StorageKey     string
	RunTime        time.Time
}

func (r *PostgresAnnouncementRepository) ClaimDue(ctx context.Context, now time.Time) ([]DueJob, error) {
	const query = `
	DELETE FROM announcement_job j
	USING announcement a, sound s
	WHERE j.announcement_id = a.id
	  AND a.sound_id = s.id
	  AND j.run_time <= $1
	RETURNING a.id, a.channel_id, s.guild_id, s.storage_key, j.run_time
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []DueJob
	for rows.Next() {
		var j DueJob
		if err := rows.Scan(&j.AnnouncementID, &j.ChannelID, &j.GuildID, &j.StorageKey, &j.RunTime); err != nil {
			return nil, fmt.Errorf("failed to scan due job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Refill tops an announcement's job table back up after claims drained it.
func (r *PostgresAnnouncementRepository) Refill(ctx context.Context, id uuid.UUID) error {
	const cronQuery = `SELECT cron FROM announcement WHERE id = $1`

	var cron string
	if err := r.db.QueryRow(ctx, cronQuery, id).Scan(&cron); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to load announcement %s: %w", id, err)
	}

	nextRuns, err := announce.NextRunTimes(cron, 5)
	if err != nil {
		return fmt.Errorf("failed to get next run times: %w", err)
	}

	const jobsQuery = `
	INSERT INTO announcement_job (announcement_id, run_time)
	SELECT $1, unnest($2::timestamptz[])
	ON CONFLICT (announcement_id, run_time) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, jobsQuery, id, nextRuns); err != nil {
		return fmt.Errorf("failed to refill announcement jobs: %w", err)
	}
	return nil
}
