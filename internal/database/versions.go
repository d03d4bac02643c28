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

// ConfigVersion is one immutable snapshot of a config's entries.
type ConfigVersion struct {
	ID        uuid.UUID       `json:"id"`
	ConfigID  uuid.UUID       `json:"config_id"`
	Version   int             `json:"version"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListVersions retrieves a config's version history, newest first.
func (db *DB) ListVersions(ctx context.Context, configID uuid.UUID, limit, offset int) ([]*ConfigVersion, int, error) {
	var total int
	err := db.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM config_versions WHERE config_id = $1", configID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count versions: %w", err)
	}

	query := `
		SELECT id, config_id, version, snapshot, created_at
		FROM config_versions
		WHERE config_id = $1
		ORDER BY version DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := db.pool.Query(ctx, query, configID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*ConfigVersion, 0)
	for rows.Next() {
		version := &ConfigVersion{}
		err := rows.Scan(
			&version.ID, &version.ConfigID, &version.Version,
			&version.Snapshot, &version.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan version row: %w", err)
		}
		versions = append(versions, version)
	}

	return versions, total, nil
}

// GetVersion retrieves one snapshot. Returns nil when the config has no
// such version.
func (db *DB) GetVersion(ctx context.Context, configID uuid.UUID, version int) (*ConfigVersion, error) {
	query := `
		SELECT id, config_id, version, snapshot, created_at
		FROM config_versions
		WHERE config_id = $1 AND version = $2
	`

	cv := &ConfigVersion{}
	err := db.pool.QueryRow(ctx, query, configID, version).Scan(
		&cv.ID, &cv.ConfigID, &cv.Version, &cv.Snapshot, &cv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}

	return cv, nil
}

// RollbackConfig restores a config to an earlier snapshot. The restore
// is itself a new version, so the history stays append-only. Returns
// nil when the config or the target version does not exist.
func (db *DB) RollbackConfig(ctx context.Context, configID uuid.UUID, version int) (*UserConfig, error) {
	config := &UserConfig{ID: configID}

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var snapshot json.RawMessage
		err := tx.QueryRow(ctx,
			"SELECT snapshot FROM config_versions WHERE config_id = $1 AND version = $2",
			configID, version).Scan(&snapshot)
		if errors.Is(err, pgx.ErrNoRows) {
			config = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}

		query := `
			UPDATE user_configs
			SET entries = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2
			RETURNING name, entries, version, created_at, updated_at
		`
		err = tx.QueryRow(ctx, query, snapshot, configID).Scan(
			&config.Name, &config.Entries, &config.Version,
			&config.CreatedAt, &config.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			config = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("restore config: %w", err)
		}

		return insertSnapshot(ctx, tx, config)
	})
	if err != nil {
		return nil, err
	}

	return config, nil
}
