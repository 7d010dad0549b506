package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// QueueRepository mirrors in-memory queue contents so a restart can
// rebuild them. Best effort: the in-memory pool is the source of truth
// while the process is up.
type QueueRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewQueueRepository(sqlDB *sql.DB, logger zerolog.Logger) *QueueRepository {
	return &QueueRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *QueueRepository) Save(ctx context.Context, guildID string, members []string) error {
	encoded, err := marshalJSON(members)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO guild_queues (guild_id, members, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET
			members = excluded.members,
			updated_at = CURRENT_TIMESTAMP`,
		guildID, encoded)
	if err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	return nil
}

func (r *QueueRepository) LoadAll(ctx context.Context) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guild_id, members FROM guild_queues`)
	if err != nil {
		return nil, fmt.Errorf("failed to load queues: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var guildID, encoded string
		if err := rows.Scan(&guildID, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan queue: %w", err)
		}
		var members []string
		if err := json.Unmarshal([]byte(encoded), &members); err != nil {
			return nil, fmt.Errorf("failed to decode queue %s: %w", guildID, err)
		}
		if len(members) > 0 {
			out[guildID] = members
		}
	}
	return out, rows.Err()
}
