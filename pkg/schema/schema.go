// Package schema describes the relational metadata the search compiler
// operates on: tables, columns, associations, and the weight codes that
// rank an attribute's contribution to the search document.
//
// The package is deliberately thin. Model definitions are owned by the
// application; pgsearch only needs enough metadata to decide casts,
// null handling, and join direction.
package schema

import (
	"context"
	"fmt"
)

// Weight ranks an attribute's contribution to the search document.
// 'A' is the highest priority, 'D' the lowest. Any other value is a
// configuration error.
type Weight string

const (
	WeightA Weight = "A"
	WeightB Weight = "B"
	WeightC Weight = "C"
	WeightD Weight = "D"
)

// Valid reports whether w is one of the four recognized weight codes.
func (w Weight) Valid() bool {
	switch w {
	case WeightA, WeightB, WeightC, WeightD:
		return true
	}
	return false
}

// AssociationType describes the cardinality and direction of a
// relationship between two tables.
type AssociationType string

const (
	// BelongsTo: the parent table holds the foreign key targeting the
	// associated table's key. At most one associated row per parent.
	BelongsTo AssociationType = "belongsTo"
	// HasOne: the associated table holds the foreign key targeting the
	// parent's key. At most one associated row per parent.
	HasOne AssociationType = "hasOne"
	// HasMany: the associated table holds the foreign key targeting the
	// parent's key. Any number of associated rows per parent.
	HasMany AssociationType = "hasMany"
)

// Valid reports whether t is a recognized association type.
func (t AssociationType) Valid() bool {
	switch t {
	case BelongsTo, HasOne, HasMany:
		return true
	}
	return false
}

// Column holds the storage metadata for a single table column.
type Column struct {
	Name     string
	Type     string // PostgreSQL data type, e.g. "text", "integer", "date"
	Nullable bool
}

// IsText reports whether the column's storage type is already a string
// type, i.e. it needs no cast before text operations.
func (c Column) IsText() bool {
	switch c.Type {
	case "text", "character varying", "varchar", "character", "char", "citext":
		return true
	}
	return false
}

// Model describes a searchable table: its name, primary key, the
// ordered attribute list, and any named projections (scopes).
type Model struct {
	Table      string
	PrimaryKey string
	// Attributes is the full ordered column list.
	Attributes []string
	// Scopes maps a scope name to a projection. The orchestrator looks
	// for a "search" scope first, then "default", before falling back
	// to Attributes.
	Scopes map[string][]string
}

// ScopeSearch and ScopeDefault are the scope names the orchestrator
// consults when resolving a projection.
const (
	ScopeSearch  = "search"
	ScopeDefault = "default"
)

// Scope returns the named projection, if defined and non-empty.
func (m Model) Scope(name string) ([]string, bool) {
	attrs, ok := m.Scopes[name]
	if !ok || len(attrs) == 0 {
		return nil, false
	}
	return attrs, true
}

// Describer resolves column metadata for a table. Implementations may
// hit the database, so lookups take a context. Describers must be safe
// for concurrent use; the document builder fetches sibling include
// metadata in parallel.
type Describer interface {
	DescribeTable(ctx context.Context, table string) (map[string]Column, error)
}

// StaticDescriber serves column metadata from an in-memory map. Useful
// in tests and for applications that already know their schema.
type StaticDescriber map[string]map[string]Column

// DescribeTable implements Describer.
func (d StaticDescriber) DescribeTable(_ context.Context, table string) (map[string]Column, error) {
	cols, ok := d[table]
	if !ok {
		return nil, fmt.Errorf("schema: unknown table %q", table)
	}
	return cols, nil
}
