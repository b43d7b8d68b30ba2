package schemareg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

func newTestSchema(qualified string, columnNames ...string) *TableSchema {
	name, err := sqlname.ParseTableName(qualified, "public")
	if err != nil {
		panic(err)
	}
	columns := make([]ColumnDefinition, len(columnNames))
	for i, cn := range columnNames {
		columns[i] = ColumnDefinition{Name: cn, DeclaredType: "text", Category: TypeCategoryText}
	}
	return &TableSchema{Name: name, Columns: columns}
}

func TestDefineAndLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Define(newTestSchema("public.users", "id", "email"))

	ts, ok := registry.Lookup("public.users")
	require.True(t, ok)
	assert.Equal(t, 2, ts.ColumnCount())
	assert.Equal(t, []string{"id", "email"}, ts.ColumnNames())
	assert.Equal(t, 0, ts.Columns[0].Ordinal)
	assert.Equal(t, 1, ts.Columns[1].Ordinal)

	_, ok = registry.Lookup("public.orders")
	assert.False(t, ok)
}

func TestRedefinitionIsLastWins(t *testing.T) {
	registry := NewRegistry()
	registry.Define(newTestSchema("public.users", "id", "email"))
	registry.Define(newTestSchema("public.users", "id", "email", "phone"))

	ts, ok := registry.Lookup("public.users")
	require.True(t, ok)
	expectedColumns := []ColumnDefinition{
		{Name: "id", Ordinal: 0, DeclaredType: "text", Category: TypeCategoryText},
		{Name: "email", Ordinal: 1, DeclaredType: "text", Category: TypeCategoryText},
		{Name: "phone", Ordinal: 2, DeclaredType: "text", Category: TypeCategoryText},
	}
	assert.True(t, cmp.Equal(expectedColumns, ts.Columns))
}

func TestQualifiedNamesAreSorted(t *testing.T) {
	registry := NewRegistry()
	registry.Define(newTestSchema("public.zebras", "id"))
	registry.Define(newTestSchema("public.antelopes", "id"))
	registry.Define(newTestSchema("audit.events", "id"))

	assert.Equal(t, []string{"audit.events", "public.antelopes", "public.zebras"}, registry.QualifiedNames())
}

func TestGetColumn(t *testing.T) {
	ts := newTestSchema("public.users", "id", "email")
	col, ok := ts.GetColumn("email")
	require.True(t, ok)
	assert.Equal(t, 1, col.Ordinal)

	_, ok = ts.GetColumn("missing")
	assert.False(t, ok)
}

func TestCategoryForType(t *testing.T) {
	tests := []struct {
		declaredType string
		expected     TypeCategory
	}{
		{"text", TypeCategoryText},
		{"TEXT", TypeCategoryText},
		{"varchar(255)", TypeCategoryText},
		{"character varying(40)", TypeCategoryText},
		{"char(2)", TypeCategoryText},
		{"integer", TypeCategoryNumeric},
		{"bigint", TypeCategoryNumeric},
		{"numeric(12,2)", TypeCategoryNumeric},
		{"double precision", TypeCategoryNumeric},
		{"serial", TypeCategoryNumeric},
		{"date", TypeCategoryTemporal},
		{"timestamp without time zone", TypeCategoryTemporal},
		{"timestamp(6) with time zone", TypeCategoryTemporal},
		{"timestamptz", TypeCategoryTemporal},
		{"boolean", TypeCategoryBoolean},
		{"uuid", TypeCategoryUuid},
		{"bytea", TypeCategoryOther},
		{"jsonb", TypeCategoryOther},
		{"text[]", TypeCategoryOther},
		{"inet", TypeCategoryOther},
		{"my_enum_type", TypeCategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.declaredType, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategoryForType(tt.declaredType))
		})
	}
}
