package repository_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/lowensten/voicebox/internal/datalayer"
	"github.com/lowensten/voicebox/internal/repository"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := t.Context()

	postgresContainer, err := postgres.Run(
		ctx,
		"postgres",
		postgres.WithDatabase("voicebox"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}
	return pool
}

func TestSoundRepository(t *testing.T) {
	ctx := t.Context()
	pool := newTestPool(t)
	repo := repository.NewPostgresSoundRepository(pool)

	alarm := repository.Sound{
		ID:       uuid.New(),
		GuildID:  "1234567890",
		Name:     "alarm",
		Key:      "1234567890/alarm.dca",
		FileSize: 24576,
	}
	bell := repository.Sound{
		ID:       uuid.New(),
		GuildID:  "1234567890",
		Name:     "bell",
		Key:      "1234567890/bell.dca",
		FileSize: 8192,
	}
	for _, s := range []repository.Sound{alarm, bell} {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("failed to save sound %q: %v", s.Name, err)
		}
	}

	t.Run("List returns the guild's sounds by name", func(t *testing.T) {
		got, err := repo.List(ctx, "1234567890")
		if err != nil {
			t.Fatalf("failed to list sounds: %v", err)
		}
		if diff := cmp.Diff([]repository.Sound{alarm, bell}, got); diff != "" {
			t.Errorf("List() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("List of another guild is empty", func(t *testing.T) {
		got, err := repo.List(ctx, "another-guild")
		if err != nil {
			t.Fatalf("failed to list sounds: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List() = %v, want empty", got)
		}
	})

	t.Run("GetByName finds a saved sound", func(t *testing.T) {
		got, err := repo.GetByName(ctx, "1234567890", "alarm")
		if err != nil {
			t.Fatalf("failed to get sound: %v", err)
		}
		if diff := cmp.Diff(alarm, got); diff != "" {
			t.Errorf("GetByName() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("GetByName on a missing sound reports not found", func(t *testing.T) {
		_, err := repo.GetByName(ctx, "1234567890", "no-such-sound")
		if !errors.Is(err, repository.ErrSoundNotFound) {
			t.Errorf("GetByName() error = %v, want ErrSoundNotFound", err)
		}
	})

	t.Run("Save replaces the stored key on name conflict", func(t *testing.T) {
		updated := alarm
		updated.Key = "1234567890/alarm-v2.dca"
		updated.FileSize = 30720
		if err := repo.Save(ctx, updated); err != nil {
			t.Fatalf("failed to re-save sound: %v", err)
		}
		got, err := repo.GetByName(ctx, "1234567890", "alarm")
		if err != nil {
			t.Fatalf("failed to get sound: %v", err)
		}
		if got.Key != updated.Key || got.FileSize != updated.FileSize {
			t.Errorf("GetByName() after upsert = %+v, want key %q size %d", got, updated.Key, updated.FileSize)
		}
	})

	t.Run("Delete removes the sound and returns it", func(t *testing.T) {
		got, err := repo.Delete(ctx, "1234567890", "bell")
		if err != nil {
			t.Fatalf("failed to delete sound: %v", err)
		}
		if got.ID != bell.ID {
			t.Errorf("Delete() returned ID %s, want %s", got.ID, bell.ID)
		}
		if _, err := repo.GetByName(ctx, "1234567890", "bell"); !errors.Is(err, repository.ErrSoundNotFound) {
			t.Errorf("GetByName() after delete error = %v, want ErrSoundNotFound", err)
		}
	})
}

func TestAnnouncementRepositorySaveMaterializesJobs(t *testing.T) {
	ctx := t.Context()
	pool := newTestPool(t)

	soundRepo := repository.NewPostgresSoundRepository(pool)
	sound := repository.Sound{
		ID:      uuid.New(),
		GuildID: "1234567890",
		Name:    "chime",
		Key:     "1234567890/chime.dca",
	}
	if err := soundRepo.Save(ctx, sound); err != nil {
		t.Fatalf("failed to save sound: %v", err)
	}

	repo := repository.NewPostgresAnnouncementRepository(pool)
	announcement := repository.Announcement{
		ID:        uuid.New(),
		SoundID:   sound.ID,
		ChannelID: "555",
		Cron:      "* * * * *",
	}
	if err := repo.Save(ctx, announcement); err != nil {
		t.Fatalf("failed to save announcement: %v", err)
	}

	t.Run("upcoming jobs exist within the next six minutes", func(t *testing.T) {
		rows, err := pool.Query(ctx, "SELECT announcement_id, run_time FROM announcement_job WHERE announcement_id = $1", announcement.ID)
		if err != nil {
			t.Fatalf("failed to query jobs: %v", err)
		}
		defer rows.Close()

		var count int
		for rows.Next() {
			var job repository.AnnouncementJob
			if err := rows.Scan(&job.AnnouncementID, &job.RunTime); err != nil {
				t.Fatalf("failed to scan job: %v", err)
			}
			count++
			if job.RunTime.Before(time.Now().Add(-time.Minute)) || job.RunTime.After(time.Now().Add(6*time.Minute)) {
				t.Errorf("job run time out of range: %v", job.RunTime)
			}
		}
		if count != 5 {
			t.Errorf("materialized %d jobs, want 5", count)
		}
	})

	t.Run("ClaimDue removes nothing when nothing is due", func(t *testing.T) {
		jobs, err := repo.ClaimDue(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("failed to claim due jobs: %v", err)
		}
		if len(jobs) != 0 {
			t.Errorf("ClaimDue() = %v, want empty", jobs)
		}
	})

	t.Run("ClaimDue drains every job in the window", func(t *testing.T) {
		jobs, err := repo.ClaimDue(ctx, time.Now().Add(6*time.Minute))
		if err != nil {
			t.Fatalf("failed to claim due jobs: %v", err)
		}
		if len(jobs) != 5 {
			t.Fatalf("ClaimDue() returned %d jobs, want 5", len(jobs))
		}
		for _, job := range jobs {
			if job.StorageKey != sound.Key || job.ChannelID != "555" || job.GuildID != "1234567890" {
				t.Errorf("ClaimDue() job = %+v, want key %q channel 555", job, sound.Key)
			}
		}

		again, err := repo.ClaimDue(ctx, time.Now().Add(6*time.Minute))
		if err != nil {
			t.Fatalf("failed to re-claim jobs: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("second ClaimDue() = %v, want empty", again)
		}
	})

	t.Run("Refill restocks the job table", func(t *testing.T) {
		if err := repo.Refill(ctx, announcement.ID); err != nil {
			t.Fatalf("failed to refill jobs: %v", err)
		}
		var count int
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM announcement_job WHERE announcement_id = $1", announcement.ID).Scan(&count); err != nil {
			t.Fatalf("failed to count jobs: %v", err)
		}
		if count != 5 {
			t.Errorf("refilled %d jobs, want 5", count)
		}
	})
}
