package schemareg

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

// TypeCategory is the normalized bucket a declared column type falls into.
// The PII heuristics only ever look at the category, never the raw type text.
type TypeCategory string

const (
	TypeCategoryText     TypeCategory = "text"
	TypeCategoryNumeric  TypeCategory = "numeric"
	TypeCategoryTemporal TypeCategory = "temporal"
	TypeCategoryBoolean  TypeCategory = "boolean"
	TypeCategoryUuid     TypeCategory = "uuid"
	TypeCategoryOther    TypeCategory = "other"
)

type ColumnDefinition struct {
	Name         string
	Ordinal      int
	DeclaredType string // raw type text as written in the CREATE TABLE
	Category     TypeCategory
}

type TableSchema struct {
	Name    *sqlname.TableName
	Columns []ColumnDefinition
	// Synthetic marks a schema reconstructed from INSERT/COPY column lists
	// during a scan, as opposed to one declared by CREATE TABLE.
	Synthetic bool
}

func (ts *TableSchema) ColumnCount() int {
	return len(ts.Columns)
}

func (ts *TableSchema) ColumnNames() []string {
	names := make([]string, len(ts.Columns))
	for i, col := range ts.Columns {
		names[i] = col.Name
	}
	return names
}

func (ts *TableSchema) GetColumn(columnName string) (*ColumnDefinition, bool) {
	for i := range ts.Columns {
		if ts.Columns[i].Name == columnName {
			return &ts.Columns[i], true
		}
	}
	return nil, false
}

// Registry maps qualified table names to their schemas for one run.
// Populated by DDL capture, consulted by every data row. In-memory only.
type Registry struct {
	tables map[string]*TableSchema
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*TableSchema)}
}

// Define registers a table schema. A later definition for the same qualified
// name overwrites the earlier one (last-wins).
func (r *Registry) Define(schema *TableSchema) {
	for i := range schema.Columns {
		schema.Columns[i].Ordinal = i
	}
	r.tables[schema.Name.Qualified()] = schema
}

func (r *Registry) Lookup(qualifiedName string) (*TableSchema, bool) {
	ts, ok := r.tables[qualifiedName]
	return ts, ok
}

func (r *Registry) TableCount() int {
	return len(r.tables)
}

// QualifiedNames returns all registered table names sorted, so that plans,
// reports and emitted configurations are deterministic.
func (r *Registry) QualifiedNames() []string {
	names := maps.Keys(r.tables)
	slices.Sort(names)
	return names
}

// CategoryForType normalizes a declared PostgreSQL type to a TypeCategory.
// Length/precision modifiers and the occasional qualifier are stripped before
// matching; anything unrecognized (arrays, enums, bytea, json, network types)
// is TypeCategoryOther and treated conservatively downstream.
func CategoryForType(declaredType string) TypeCategory {
	t := strings.ToLower(strings.TrimSpace(declaredType))
	if idx := strings.IndexByte(t, '('); idx != -1 {
		t = strings.TrimSpace(t[:idx]) + modifierSuffix(t)
	}
	if strings.HasSuffix(t, "[]") {
		return TypeCategoryOther
	}
	switch t {
	case "text", "varchar", "character varying", "char", "character", "bpchar", "citext", "name":
		return TypeCategoryText
	case "smallint", "integer", "bigint", "int", "int2", "int4", "int8",
		"decimal", "numeric", "real", "double precision", "float4", "float8",
		"money", "serial", "bigserial", "smallserial", "oid":
		return TypeCategoryNumeric
	case "date", "time", "timetz", "timestamp", "timestamptz", "interval",
		"timestamp with time zone", "timestamp without time zone",
		"time with time zone", "time without time zone":
		return TypeCategoryTemporal
	case "boolean", "bool":
		return TypeCategoryBoolean
	case "uuid":
		return TypeCategoryUuid
	default:
		return TypeCategoryOther
	}
}

// modifierSuffix preserves a "with/without time zone" tail that follows a
// precision modifier, as in "timestamp(6) with time zone".
func modifierSuffix(t string) string {
	if idx := strings.IndexByte(t, ')'); idx != -1 && idx+1 < len(t) {
		tail := strings.TrimSpace(t[idx+1:])
		if tail != "" {
			return " " + tail
		}
	}
	return ""
}
