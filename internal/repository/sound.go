package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSoundNotFound reports that no sound matched the lookup.
var ErrSoundNotFound = errors.New("sound not found")

// Sound is one uploaded sound in a guild's library. Key is the blob storage
// key of its encoded frame container.
type Sound struct {
	ID       uuid.UUID
	GuildID  string
	Name     string
	Key      string
	FileSize int64
}

// SoundRepository persists the sound library.
type SoundRepository interface {
	Save(ctx context.Context, sound Sound) error
	List(ctx context.Context, guildID string) ([]Sound, error)
	GetByName(ctx context.Context, guildID, name string) (Sound, error)
	Delete(ctx context.Context, guildID, name string) (Sound, error)
}

type PostgresSoundRepository struct {
	db *pgxpool.Pool
}

func NewPostgresSoundRepository(db *pgxpool.Pool) *PostgresSoundRepository {
	return &PostgresSoundRepository{db: db}
}

func (r *PostgresSoundRepository) Save(ctx context.Context, sound Sound) error {
	const query = `
	INSERT INTO sound (id, guild_id, sound_name, storage_key, file_size)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (guild_id, sound_name) DO UPDATE SET
		storage_key = EXCLUDED.storage_key,
		file_size = EXCLUDED.file_size
	`

	_, err := r.db.Exec(ctx, query, sound.ID, sound.GuildID, sound.Name, sound.Key, sound.FileSize)
	if err != nil {
		return fmt.Errorf("failed to save sound %q: %w", sound.Name, err)
	}
	return nil
}

func (r *PostgresSoundRepository) List(ctx context.Context, guildID string) ([]Sound, error) {
	const query = `
	SELECT id, guild_id, sound_name, storage_key, file_size
	FROM sound
	WHERE guild_id = $1
	ORDER BY sound_name
	`

	rows, err := r.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sounds: %w", err)
	}
	defer rows.Close()

	var sounds []Sound
	for rows.Next() {
		var s Sound
		if err := rows.Scan(&s.ID, &s.GuildID, &s.Name, &s.Key, &s.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan sound row: %w", err)
		}
		sounds = append(sounds, s)
	}
	return sounds, rows.Err()
}

func (r *PostgresSoundRepository) GetByName(ctx context.Context, guildID, name string) (Sound, error) {
	const query = `
	SELECT id, guild_id, sound_name, storage_key, file_size
	FROM sound
	WHERE guild_id = $1 AND sound_name = $2
	`

	var s Sound
	err := r.db.QueryRow(ctx, query, guildID, name).Scan(&s.ID, &s.GuildID, &s.Name, &s.Key, &s.FileSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sound{}, ErrSoundNotFound
	}
	if err != nil {
		return Sound{}, fmt.Errorf("failed to get sound %q: %w", name, err)
	}
	return s, nil
}

func (r *PostgresSoundRepository) Delete(ctx context.Context, guildID, name string) (Sound, error) {
	const query = `
	DELETE FROM sound
	WHERE guild_id = $1 AND sound_name = $2
	RETURNING id, guild_id, sound_name, storage_key, file_size
	`

	var s Sound
	err := r.db.QueryRow(ctx, query, guildID, name).Scan(&s.ID, &s.GuildID, &s.Name, &s.Key, &s.FileSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sound{}, ErrSoundNotFound
	}
	if err != nil {
		return Sound{}, fmt.Errorf("failed to delete sound %q: %w", name, err)
	}
	return s, nil
}

var _ SoundRepository = (*PostgresSoundRepository)(nil)
