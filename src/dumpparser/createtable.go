package dumpparser

import (
	"bytes"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-anonymizer/src/schemareg"
	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

// table-level entries that declare constraints rather than columns
var tableConstraintStarters = map[string]bool{
	"constraint": true,
	"primary":    true,
	"unique":     true,
	"check":      true,
	"foreign":    true,
	"exclude":    true,
	"like":       true,
}

// keywords that end the type portion of a column definition
var columnTypeEnders = map[string]bool{
	"not":        true,
	"null":       true,
	"default":    true,
	"primary":    true,
	"references": true,
	"unique":     true,
	"check":      true,
	"collate":    true,
	"generated":  true,
	"constraint": true,
}

// scanCreateTable harvests the column definitions of a CREATE TABLE
// statement for the schema registry and returns the statement verbatim.
// Anything it cannot parse falls back to plain passthrough, leaving the
// table unregistered.
func (s *Scanner) scanCreateTable(start int64, head *bytes.Buffer) (*Statement, error) {
	t, err := s.nextToken(head)
	if err != nil {
		return nil, err
	}
	for t.kind == tokWord && isCreateTableModifier(t.text) {
		t, err = s.nextToken(head)
		if err != nil {
			return nil, err
		}
	}
	if t.kind != tokWord || !strings.EqualFold(t.text, "TABLE") {
		return s.finishGeneric(start, head)
	}
	t, err = s.nextToken(head)
	if err != nil {
		return nil, err
	}
	if t.kind == tokWord && strings.EqualFold(t.text, "IF") {
		t2, err := s.nextToken(head)
		if err != nil {
			return nil, err
		}
		t3, err := s.nextToken(head)
		if err != nil {
			return nil, err
		}
		if t2.kind != tokWord || !strings.EqualFold(t2.text, "NOT") ||
			t3.kind != tokWord || !strings.EqualFold(t3.text, "EXISTS") {
			return s.finishGeneric(start, head)
		}
		t, err = s.nextToken(head)
		if err != nil {
			return nil, err
		}
	}
	s.pushToken(t)
	table, ok, err := s.lexTableRef(head)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.finishGeneric(start, head)
	}
	t, err = s.nextToken(head)
	if err != nil {
		return nil, err
	}
	if t.kind != tokPunct || t.text != "(" {
		// CREATE TABLE AS, PARTITION OF and other shells carry no column list
		s.pushToken(t)
		return s.finishGeneric(start, head)
	}
	columns, ok, err := s.lexColumnDefs(head)
	if err == io.ErrUnexpectedEOF {
		return s.finishGeneric(start, head)
	}
	if err != nil {
		return nil, err
	}
	if !ok || len(columns) == 0 {
		log.Warnf("could not parse CREATE TABLE for %s at offset %d, its schema will not be registered", table, start)
		return s.finishGeneric(start, head)
	}
	if err := s.consumeToSemicolon(head); err != nil && err != io.EOF {
		return nil, err
	}
	schema := &schemareg.TableSchema{Name: table, Columns: columns}
	return &Statement{Kind: StatementCreateTable, Offset: start, Raw: head.Bytes(), Schema: schema}, nil
}

func isCreateTableModifier(w string) bool {
	switch strings.ToLower(w) {
	case "unlogged", "temp", "temporary", "global", "local":
		return true
	}
	return false
}

// lexColumnDefs walks the entries between the outer parentheses. Table-level
// constraint entries are skipped; everything else contributes a column.
func (s *Scanner) lexColumnDefs(head *bytes.Buffer) ([]schemareg.ColumnDefinition, bool, error) {
	var cols []schemareg.ColumnDefinition
	for {
		t, err := s.nextToken(head)
		if err != nil {
			return nil, false, err
		}
		switch {
		case t.kind == tokEOF:
			return nil, false, nil
		case t.kind == tokWord && tableConstraintStarters[strings.ToLower(t.text)]:
			closed, err := s.skipColumnEntry(head)
			if err != nil {
				return nil, false, err
			}
			if closed {
				return cols, true, nil
			}
		case t.kind == tokWord || t.kind == tokQuoted:
			name := sqlname.NewIdentifier(t.text).Unquoted
			declared, closed, err := s.lexColumnType(head)
			if err != nil {
				return nil, false, err
			}
			if declared == "" {
				return nil, false, nil
			}
			cols = append(cols, schemareg.ColumnDefinition{
				Name:         name,
				DeclaredType: declared,
				Category:     schemareg.CategoryForType(declared),
			})
			if closed {
				return cols, true, nil
			}
		case t.kind == tokPunct && t.text == ")":
			return cols, true, nil
		default:
			return nil, false, nil
		}
	}
}

// skipColumnEntry consumes the rest of one entry, returning true when it hit
// the list's closing parenthesis rather than a comma.
func (s *Scanner) skipColumnEntry(head *bytes.Buffer) (bool, error) {
	depth := 0
	for {
		t, err := s.nextToken(head)
		if err != nil {
			return false, err
		}
		switch {
		case t.kind == tokEOF:
			return false, io.ErrUnexpectedEOF
		case t.kind == tokPunct && t.text == "(":
			depth++
		case t.kind == tokPunct && t.text == ")":
			if depth == 0 {
				return true, nil
			}
			depth--
		case t.kind == tokPunct && t.text == "," && depth == 0:
			return false, nil
		}
	}
}

// lexColumnType gathers the declared type of one column definition and
// consumes the rest of the entry. The type ends at the first constraint
// keyword.
func (s *Scanner) lexColumnType(head *bytes.Buffer) (string, bool, error) {
	var parts []string
	collecting := true
	closed := false
	depth := 0
loop:
	for {
		t, err := s.nextToken(head)
		if err != nil {
			return "", false, err
		}
		switch {
		case t.kind == tokEOF:
			return "", false, io.ErrUnexpectedEOF
		case t.kind == tokPunct && t.text == "(":
			if depth == 0 && collecting && len(parts) > 0 {
				mod, err := s.lexParenSpan(head)
				if err != nil {
					return "", false, err
				}
				parts[len(parts)-1] += mod
				continue
			}
			depth++
		case t.kind == tokPunct && t.text == ")":
			if depth == 0 {
				closed = true
				break loop
			}
			depth--
		case t.kind == tokPunct && t.text == ",":
			if depth == 0 {
				break loop
			}
		case t.kind == tokWord:
			lower := strings.ToLower(t.text)
			switch {
			case collecting && columnTypeEnders[lower] && len(parts) > 0:
				collecting = false
			case collecting:
				parts = append(parts, lower)
			}
		case t.kind == tokQuoted:
			if collecting {
				parts = append(parts, sqlname.NewIdentifier(t.text).Unquoted)
			}
		case t.kind == tokOther && t.text == "[":
			if collecting && len(parts) > 0 && !strings.HasSuffix(parts[len(parts)-1], "[]") {
				parts[len(parts)-1] += "[]"
			}
		}
	}
	if len(parts) == 0 {
		return "", closed, nil
	}
	return strings.Join(parts, " "), closed, nil
}

// lexParenSpan rebuilds the text of a parenthesized type modifier such as
// (10,2); the opening parenthesis was already consumed.
func (s *Scanner) lexParenSpan(head *bytes.Buffer) (string, error) {
	var sb strings.Builder
	sb.WriteByte('(')
	depth := 1
	for depth > 0 {
		t, err := s.nextToken(head)
		if err != nil {
			return "", err
		}
		switch {
		case t.kind == tokEOF:
			return "", io.ErrUnexpectedEOF
		case t.kind == tokPunct && t.text == "(":
			depth++
			sb.WriteString("(")
		case t.kind == tokPunct && t.text == ")":
			depth--
			if depth > 0 {
				sb.WriteString(")")
			}
		default:
			sb.WriteString(t.text)
		}
	}
	sb.WriteByte(')')
	return sb.String(), nil
}
