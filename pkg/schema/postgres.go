package schema

import (
	"context"
	"database/sql"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Executor is the minimal query surface the describer needs. *sql.DB
// satisfies it.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// defaultCacheSize bounds the table-metadata cache. Schemas rarely have
// more tables than this; evictions just cause a re-describe.
const defaultCacheSize = 128

// PostgresDescriber resolves column metadata from information_schema.
// Results are cached: schema metadata is treated as read-only once the
// process is up, so a table is described at most once per cache window.
type PostgresDescriber struct {
	db    Executor
	cache *lru.Cache[string, map[string]Column]
}

// NewPostgresDescriber creates a describer backed by db.
func NewPostgresDescriber(db Executor) (*PostgresDescriber, error) {
	cache, err := lru.New[string, map[string]Column](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &PostgresDescriber{db: db, cache: cache}, nil
}

// DescribeTable implements Describer.
func (d *PostgresDescriber) DescribeTable(ctx context.Context, table string) (map[string]Column, error) {
	if cols, ok := d.cache.Get(table); ok {
		return cols, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %q: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]Column)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		cols[name] = Column{
			Name:     name,
			Type:     dataType,
			Nullable: nullable == "YES",
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("schema: unknown table %q", table)
	}

	d.cache.Add(table, cols)
	return cols, nil
}
