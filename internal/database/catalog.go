package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
)

const entryColumns = `
	identity, name, description, version, author, license, tags, readme,
	tools, resources, prompts, launch, required_params, optional_params,
	source, source_url, package_name, popularity, verified,
	created_at, updated_at, last_researched
`

func scanEntry(row pgx.Row) (*catalog.Entry, error) {
	entry := &catalog.Entry{}
	err := row.Scan(
		&entry.Identity, &entry.Name, &entry.Description, &entry.Version,
		&entry.Author, &entry.License, &entry.Tags, &entry.Readme,
		&entry.Tools, &entry.Resources, &entry.Prompts, &entry.Launch,
		&entry.RequiredParams, &entry.OptionalParams,
		&entry.Source, &entry.SourceURL, &entry.PackageName,
		&entry.Popularity, &entry.Verified,
		&entry.CreatedAt, &entry.UpdatedAt, &entry.LastResearched,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpsertEntry inserts or updates a catalog entry, deduplicated by its
// identity. Re-discovering an entry refreshes its descriptive fields
// and bumps last_researched.
func (db *DB) UpsertEntry(ctx context.Context, entry *catalog.Entry) error {
	query := `
		INSERT INTO catalog_entries (
			identity, name, description, version, author, license, tags,
			readme, tools, resources, prompts, launch,
			required_params, optional_params,
			source, source_url, package_name, popularity, verified
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (identity)
		DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			author = EXCLUDED.author,
			license = EXCLUDED.license,
			tags = EXCLUDED.tags,
			readme = EXCLUDED.readme,
			tools = EXCLUDED.tools,
			resources = EXCLUDED.resources,
			prompts = EXCLUDED.prompts,
			launch = EXCLUDED.launch,
			required_params = EXCLUDED.required_params,
			optional_params = EXCLUDED.optional_params,
			source = EXCLUDED.source,
			source_url = EXCLUDED.source_url,
			package_name = EXCLUDED.package_name,
			popularity = EXCLUDED.popularity,
			verified = EXCLUDED.verified,
			updated_at = NOW(),
			last_researched = NOW()
		RETURNING created_at, updated_at, last_researched
	`

	err := db.pool.QueryRow(ctx, query,
		entry.Identity,
		entry.Name,
		entry.Description,
		entry.Version,
		entry.Author,
		entry.License,
		entry.Tags,
		entry.Readme,
		entry.Tools,
		entry.Resources,
		entry.Prompts,
		entry.Launch,
		entry.RequiredParams,
		entry.OptionalParams,
		entry.Source,
		entry.SourceURL,
		entry.PackageName,
		entry.Popularity,
		entry.Verified,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt, &entry.LastResearched)

	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}

	return nil
}

// GetEntry retrieves an entry by identity. Returns nil when no entry
// with that identity exists.
func (db *DB) GetEntry(ctx context.Context, identity string) (*catalog.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM catalog_entries WHERE identity = $1`

	entry, err := scanEntry(db.pool.QueryRow(ctx, query, identity))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	return entry, nil
}

// ListEntries retrieves entries ordered by popularity, with pagination.
func (db *DB) ListEntries(ctx context.Context, limit, offset int) ([]*catalog.Entry, int, error) {
	var total int
	err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM catalog_entries").Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	query := `
		SELECT ` + entryColumns + `
		FROM catalog_entries
		ORDER BY popularity DESC, updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*catalog.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan entry row: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, total, nil
}

// SearchEntries performs full-text search over names and descriptions.
func (db *DB) SearchEntries(ctx context.Context, query string, limit, offset int) ([]*catalog.Entry, int, error) {
	var total int
	countQuery := `
		SELECT COUNT(*) FROM catalog_entries
		WHERE to_tsvector('english', coalesce(name, '') || ' ' || coalesce(description, ''))
		@@ plainto_tsquery('english', $1)
	`
	err := db.pool.QueryRow(ctx, countQuery, query).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	searchQuery := `
		SELECT ` + entryColumns + `
		FROM catalog_entries
		WHERE to_tsvector('english', coalesce(name, '') || ' ' || coalesce(description, ''))
		@@ plainto_tsquery('english', $1)
		ORDER BY popularity DESC, updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := db.pool.Query(ctx, searchQuery, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*catalog.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan entry row: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, total, nil
}

// GetStaleEntries retrieves entries whose last analysis is older than
// maxAge, oldest first.
func (db *DB) GetStaleEntries(ctx context.Context, maxAge time.Duration, limit int) ([]*catalog.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM catalog_entries
		WHERE last_researched < $1
		ORDER BY last_researched ASC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, time.Now().Add(-maxAge), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*catalog.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// CountsBySource returns how many entries each source contributed.
func (db *DB) CountsBySource(ctx context.Context) (map[string]int, error) {
	rows, err := db.pool.Query(ctx, "SELECT source, COUNT(*) FROM catalog_entries GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		counts[source] = count
	}

	return counts, nil
}
