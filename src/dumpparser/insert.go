package dumpparser

import (
	"bytes"
	"io"

	"golang.org/x/exp/slices"

	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

// InsertStatement streams the tuples of one INSERT ... VALUES statement.
// After Bind, rows come back in schema ordinal order regardless of how the
// statement orders its column list; positions the statement does not mention
// hold omitted markers.
type InsertStatement struct {
	Table *sqlname.TableName
	// Columns is the statement's explicit column list in unquoted form, nil
	// when the statement relies on table order.
	Columns []string
	Offset  int64

	cur          *cursor
	mapping      []int
	emitOrdinals []int
	arity        int
	bound        bool
	done         bool
	trailer      []byte
	rows         int64
}

// Bind resolves the statement's columns against the table schema. NextRow
// requires it.
func (st *InsertStatement) Bind(schema *schemareg.TableSchema) error {
	mapping, err := bindColumns(schema, st.Columns)
	if err != nil {
		return err
	}
	st.mapping = mapping
	st.arity = schema.ColumnCount()
	st.emitOrdinals = append([]int(nil), mapping...)
	slices.Sort(st.emitOrdinals)
	st.bound = true
	return nil
}

// NextRow returns the next tuple in schema order, or io.EOF once the
// statement's semicolon has been consumed.
func (st *InsertStatement) NextRow() ([]RawValue, error) {
	if !st.bound {
		return nil, errs.NewSchemaError(st.Table.Qualified(), "INSERT statement is not bound to a schema")
	}
	vals, err := st.nextTuple()
	if err != nil {
		return nil, err
	}
	return st.projectRow(vals)
}

// nextTuple lexes one parenthesized tuple and its trailing separator. It
// needs no schema, so a statement can be drained without being bound.
func (st *InsertStatement) nextTuple() ([]RawValue, error) {
	if st.done {
		return nil, io.EOF
	}
	if err := skipSpaceAndComments(st.cur); err != nil {
		return nil, errs.NewMalformedLiteralError(st.cur.off, "INSERT statement for %s ends before a tuple", st.Table)
	}
	b, err := st.cur.readByte()
	if err != nil || b != '(' {
		return nil, errs.NewMalformedLiteralError(st.cur.off, "expected tuple in INSERT statement for %s", st.Table)
	}
	vals, err := lexTuple(st.cur)
	if err != nil {
		return nil, err
	}
	st.rows++
	if err := st.consumeRowSeparator(); err != nil {
		return nil, err
	}
	return vals, nil
}

func (st *InsertStatement) projectRow(vals []RawValue) ([]RawValue, error) {
	if st.Columns != nil && len(vals) != len(st.Columns) {
		return nil, errs.NewSchemaError(st.Table.Qualified(),
			"tuple has %d values for %d listed columns", len(vals), len(st.Columns))
	}
	if st.Columns == nil && len(vals) > st.arity {
		return nil, errs.NewSchemaError(st.Table.Qualified(),
			"tuple has %d values but the table has %d columns", len(vals), st.arity)
	}
	row := make([]RawValue, st.arity)
	for i := range row {
		row[i] = OmittedValue()
	}
	for i, v := range vals {
		row[st.mapping[i]] = v
	}
	return row, nil
}

func (st *InsertStatement) consumeRowSeparator() error {
	if err := skipSpaceAndComments(st.cur); err != nil {
		return errs.NewMalformedLiteralError(st.cur.off, "INSERT statement for %s is not terminated", st.Table)
	}
	b, err := st.cur.readByte()
	if err != nil {
		return errs.NewMalformedLiteralError(st.cur.off, "INSERT statement for %s is not terminated", st.Table)
	}
	switch {
	case b == ',':
		return nil
	case b == ';':
		st.done = true
		return nil
	case isWordStart(b):
		st.cur.unreadByte()
		return st.consumeTrailer()
	default:
		return errs.NewMalformedLiteralError(st.cur.off-1,
			"unexpected %q after tuple in INSERT statement for %s", string(rune(b)), st.Table)
	}
}

// consumeTrailer captures a clause between the final tuple and the
// semicolon, such as ON CONFLICT DO NOTHING.
func (st *InsertStatement) consumeTrailer() error {
	var buf bytes.Buffer
	for {
		b, err := st.cur.readByte()
		if err != nil {
			return errs.NewMalformedLiteralError(st.cur.off, "INSERT statement for %s is not terminated", st.Table)
		}
		switch b {
		case ';':
			st.done = true
			st.trailer = bytes.TrimRight(buf.Bytes(), " \t\n\r")
			return nil
		case '\'':
			st.cur.unreadByte()
			if _, err := lexQuotedString(st.cur, false, &buf); err != nil {
				return err
			}
		default:
			buf.WriteByte(b)
		}
	}
}

// Trailer returns the clause captured between the last tuple and the
// semicolon, if any. Populated once rows are exhausted.
func (st *InsertStatement) Trailer() []byte {
	return st.trailer
}

// EmitOrdinals lists the schema ordinals a rewritten statement should cover,
// in output order.
func (st *InsertStatement) EmitOrdinals() []int {
	return st.emitOrdinals
}

// Rows returns how many tuples have been read so far.
func (st *InsertStatement) Rows() int64 {
	return st.rows
}

func (st *InsertStatement) finish() error {
	for {
		if _, err := st.nextTuple(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// bindColumns maps a statement's column list to schema ordinals. A nil list
// maps every column in table order.
func bindColumns(schema *schemareg.TableSchema, columns []string) ([]int, error) {
	if columns == nil {
		mapping := make([]int, schema.ColumnCount())
		for i := range mapping {
			mapping[i] = i
		}
		return mapping, nil
	}
	mapping := make([]int, len(columns))
	seen := make(map[int]bool, len(columns))
	for i, col := range columns {
		def, ok := schema.GetColumn(col)
		if !ok {
			return nil, errs.NewColumnSchemaError(schema.Name.Qualified(), col, "column is not declared by the table schema")
		}
		if seen[def.Ordinal] {
			return nil, errs.NewColumnSchemaError(schema.Name.Qualified(), col, "column is listed twice")
		}
		seen[def.Ordinal] = true
		mapping[i] = def.Ordinal
	}
	return mapping, nil
}
