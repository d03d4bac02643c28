package database

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	identity TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	license TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]',
	readme TEXT NOT NULL DEFAULT '',
	tools JSONB NOT NULL DEFAULT '[]',
	resources JSONB NOT NULL DEFAULT '[]',
	prompts JSONB NOT NULL DEFAULT '[]',
	launch JSONB NOT NULL DEFAULT '{}',
	required_params JSONB NOT NULL DEFAULT '[]',
	optional_params JSONB NOT NULL DEFAULT '[]',
	source TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	package_name TEXT,
	popularity INTEGER NOT NULL DEFAULT 0,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_researched TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_catalog_entries_popularity
	ON catalog_entries (popularity DESC);

CREATE INDEX IF NOT EXISTS idx_catalog_entries_search
	ON catalog_entries
	USING GIN (to_tsvector('english', coalesce(name, '') || ' ' || coalesce(description, '')));

CREATE TABLE IF NOT EXISTS user_configs (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	entries JSONB NOT NULL DEFAULT '[]',
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS config_versions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	config_id UUID NOT NULL REFERENCES user_configs(id) ON DELETE CASCADE,
	version INTEGER NOT NULL,
	snapshot JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (config_id, version)
);
`

// Migrate creates the tables and indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
