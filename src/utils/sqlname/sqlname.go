package sqlname

import (
	"fmt"
	"strings"
)

// Identifier holds the three renderings of one SQL identifier from a
// PostgreSQL dump. Unquoted identifiers fold to lowercase on parse, matching
// server-side case folding, so that `CREATE TABLE Users` and `COPY users`
// resolve to the same registry entry.
type Identifier struct {
	Quoted    string // always double-quoted
	Unquoted  string // canonical form, used as map key and digest input
	MinQuoted string // quoted only when required
}

func NewIdentifier(raw string) Identifier {
	var unquoted string
	if isQuoted(raw) {
		unquoted = strings.ReplaceAll(raw[1:len(raw)-1], `""`, `"`)
	} else {
		unquoted = strings.ToLower(raw)
	}
	quoted := `"` + strings.ReplaceAll(unquoted, `"`, `""`) + `"`
	minQuoted := unquoted
	if needsQuoting(unquoted) {
		minQuoted = quoted
	}
	return Identifier{Quoted: quoted, Unquoted: unquoted, MinQuoted: minQuoted}
}

// MinQuote renders an already-unquoted identifier, quoting only when the bare
// form would not survive a round trip through the parser.
func MinQuote(unquoted string) string {
	if needsQuoting(unquoted) {
		return `"` + strings.ReplaceAll(unquoted, `"`, `""`) + `"`
	}
	return unquoted
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

func needsQuoting(unquoted string) bool {
	if unquoted == "" {
		return true
	}
	for i, c := range unquoted {
		switch {
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// TableName is a schema-qualified table identifier.
type TableName struct {
	Schema Identifier
	Object Identifier
}

func NewTableName(schemaName, objectName string) *TableName {
	if schemaName == "" {
		panic("schema name cannot be empty")
	}
	return &TableName{
		Schema: NewIdentifier(schemaName),
		Object: NewIdentifier(objectName),
	}
}

// ParseTableName splits a possibly schema-qualified, possibly quoted table
// reference as written in a dump statement. A bare table name is qualified
// with defaultSchema.
func ParseTableName(raw string, defaultSchema string) (*TableName, error) {
	parts, err := splitQualified(raw)
	if err != nil {
		return nil, err
	}
	switch len(parts) {
	case 1:
		return NewTableName(defaultSchema, parts[0]), nil
	case 2:
		return NewTableName(parts[0], parts[1]), nil
	default:
		return nil, fmt.Errorf("invalid qualified name: %s", raw)
	}
}

// splitQualified splits on dots that are outside double quotes.
func splitQualified(raw string) ([]string, error) {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == '.' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted identifier in %q", raw)
	}
	parts = append(parts, cur.String())
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty identifier in %q", raw)
		}
	}
	return parts, nil
}

// Qualified returns the canonical schema.table key used by the schema
// registry and the configuration object.
func (t *TableName) Qualified() string {
	return t.Schema.Unquoted + "." + t.Object.Unquoted
}

// MinQuoted renders the name the way the output statement should carry it.
func (t *TableName) MinQuoted() string {
	return t.Schema.MinQuoted + "." + t.Object.MinQuoted
}

func (t *TableName) String() string {
	return t.Qualified()
}

// ColumnQualifier is the fully qualified schema.table.column identity that
// scopes per-value determinism in the anonymization digest.
func (t *TableName) ColumnQualifier(column string) string {
	return t.Qualified() + "." + column
}
