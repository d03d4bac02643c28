package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserConfig is a named selection of catalog entries with resolved
// parameter values. Secret-typed values are vault references, never the
// secrets themselves. Every update bumps Version and writes a snapshot.
type UserConfig struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Entries   json.RawMessage `json:"entries"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateConfig inserts a new config at version 1 and records its first
// snapshot. The caller may pre-assign the id; a zero id gets a fresh one.
func (db *DB) CreateConfig(ctx context.Context, config *UserConfig) error {
	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO user_configs (id, name, entries)
			VALUES ($1, $2, $3)
			RETURNING version, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query, config.ID, config.Name, config.Entries).
			Scan(&config.Version, &config.CreatedAt, &config.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert config: %w", err)
		}

		return insertSnapshot(ctx, tx, config)
	})
}

// GetConfig retrieves a config by id. Returns nil when it does not exist.
func (db *DB) GetConfig(ctx context.Context, id uuid.UUID) (*UserConfig, error) {
	query := `
		SELECT id, name, entries, version, created_at, updated_at
		FROM user_configs
		WHERE id = $1
	`

	config := &UserConfig{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&config.ID, &config.Name, &config.Entries,
		&config.Version, &config.CreatedAt, &config.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}

	return config, nil
}

// ListConfigs retrieves configs with pagination, newest first.
func (db *DB) ListConfigs(ctx context.Context, limit, offset int) ([]*UserConfig, int, error) {
	var total int
	err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM user_configs").Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count configs: %w", err)
	}

	query := `
		SELECT id, name, entries, version, created_at, updated_at
		FROM user_configs
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query configs: %w", err)
	}
	defer rows.Close()

	configs := make([]*UserConfig, 0)
	for rows.Next() {
		config := &UserConfig{}
		err := rows.Scan(
			&config.ID, &config.Name, &config.Entries,
			&config.Version, &config.CreatedAt, &config.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan config row: %w", err)
		}
		configs = append(configs, config)
	}

	return configs, total, nil
}

// UpdateConfig replaces a config's name and entries, bumps its version
// and records a snapshot of the new state. Returns nil without touching
// the database when the config does not exist.
func (db *DB) UpdateConfig(ctx context.Context, id uuid.UUID, name string, entries json.RawMessage) (*UserConfig, error) {
	config := &UserConfig{ID: id, Name: name, Entries: entries}

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE user_configs
			SET name = $1, entries = $2, version = version + 1, updated_at = NOW()
			WHERE id = $3
			RETURNING version, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query, name, entries, id).
			Scan(&config.Version, &config.CreatedAt, &config.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			config = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("update config: %w", err)
		}

		return insertSnapshot(ctx, tx, config)
	})
	if err != nil {
		return nil, err
	}

	return config, nil
}

// DeleteConfig removes a config and, via cascade, its version history.
// Reports whether a row was deleted.
func (db *DB) DeleteConfig(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx, "DELETE FROM user_configs WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete config: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func insertSnapshot(ctx context.Context, tx pgx.Tx, config *UserConfig) error {
	query := `
		INSERT INTO config_versions (config_id, version, snapshot)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, query, config.ID, config.Version, config.Entries); err != nil {
		return fmt.Errorf("insert config snapshot: %w", err)
	}
	return nil
}
