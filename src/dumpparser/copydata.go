package dumpparser

import (
	"io"

	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

// CopyStatement streams the data section of one COPY ... FROM stdin block.
// The header line passes through unchanged; each data line decodes into one
// row.
type CopyStatement struct {
	Table *sqlname.TableName
	// Columns is the header's column list in unquoted form, nil when the
	// header names no columns.
	Columns []string
	// HeaderRaw is the complete COPY statement line including its newline.
	HeaderRaw []byte
	Offset    int64

	cur     *cursor
	mapping []int
	arity   int
	bound   bool
	done    bool
	rows    int64
}

// Bind resolves the header's columns against the table schema. NextRow
// requires it; finish does not, so a scan can skip a block cheaply.
func (st *CopyStatement) Bind(schema *schemareg.TableSchema) error {
	mapping, err := bindColumns(schema, st.Columns)
	if err != nil {
		return err
	}
	st.mapping = mapping
	st.arity = schema.ColumnCount()
	st.bound = true
	return nil
}

// NextRow decodes the next data line into a schema-ordered row, or returns
// io.EOF at the end-of-data marker.
func (st *CopyStatement) NextRow() ([]RawValue, error) {
	if !st.bound {
		return nil, errs.NewSchemaError(st.Table.Qualified(), "COPY statement is not bound to a schema")
	}
	if st.done {
		return nil, io.EOF
	}
	lineStart := st.cur.off
	line, err := st.cur.readLine()
	if err != nil {
		return nil, st.missingMarker(lineStart)
	}
	data, hadNewline := chompNewline(line)
	if isEndOfCopy(data) {
		st.done = true
		return nil, io.EOF
	}
	if !hadNewline {
		return nil, st.missingMarker(lineStart)
	}
	fields, err := decodeCopyLine(data, lineStart)
	if err != nil {
		return nil, err
	}
	if len(fields) != len(st.mapping) {
		return nil, errs.NewMalformedLiteralError(lineStart,
			"COPY line for %s has %d fields, expected %d", st.Table, len(fields), len(st.mapping))
	}
	st.rows++
	row := make([]RawValue, st.arity)
	for i := range row {
		row[i] = OmittedValue()
	}
	for i, f := range fields {
		row[st.mapping[i]] = f
	}
	return row, nil
}

// EmitOrdinals lists the schema ordinals of the header's columns in their
// original order, which is also the field order of every emitted line.
func (st *CopyStatement) EmitOrdinals() []int {
	return st.mapping
}

// Rows returns how many data lines have been decoded so far.
func (st *CopyStatement) Rows() int64 {
	return st.rows
}

// finish skips the remaining data lines without decoding them.
func (st *CopyStatement) finish() error {
	for !st.done {
		lineStart := st.cur.off
		line, err := st.cur.readLine()
		if err != nil {
			return st.missingMarker(lineStart)
		}
		data, hadNewline := chompNewline(line)
		if isEndOfCopy(data) {
			st.done = true
			return nil
		}
		if !hadNewline {
			return st.missingMarker(lineStart)
		}
	}
	return nil
}

func (st *CopyStatement) missingMarker(offset int64) error {
	return errs.NewMalformedLiteralError(offset, "COPY data for %s is missing its end-of-data marker", st.Table)
}

func chompNewline(line []byte) ([]byte, bool) {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		return line[:n-1], true
	}
	return line, false
}

func isEndOfCopy(data []byte) bool {
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return len(data) == 2 && data[0] == '\\' && data[1] == '.'
}

// decodeCopyLine splits one COPY text line into fields, undoing backslash
// escapes. Each field keeps its original encoded span so untouched values
// re-emit byte for byte.
func decodeCopyLine(data []byte, lineOffset int64) ([]RawValue, error) {
	var fields []RawValue
	var text []byte
	start := 0
	flush := func(end int) {
		raw := append([]byte(nil), data[start:end]...)
		if len(raw) == 2 && raw[0] == '\\' && raw[1] == 'N' {
			fields = append(fields, NullValue(raw))
		} else {
			fields = append(fields, StringValue(string(text), raw, false))
		}
		text = text[:0]
	}
	i := 0
	for i < len(data) {
		b := data[i]
		switch b {
		case '\t':
			flush(i)
			i++
			start = i
		case '\\':
			if i+1 >= len(data) {
				return nil, errs.NewMalformedLiteralError(lineOffset+int64(i), "COPY line ends with a lone backslash")
			}
			nb := data[i+1]
			switch {
			case nb == 'b':
				text = append(text, '\b')
				i += 2
			case nb == 'f':
				text = append(text, '\f')
				i += 2
			case nb == 'n':
				text = append(text, '\n')
				i += 2
			case nb == 'r':
				text = append(text, '\r')
				i += 2
			case nb == 't':
				text = append(text, '\t')
				i += 2
			case nb == 'v':
				text = append(text, '\v')
				i += 2
			case nb >= '0' && nb <= '7':
				v := int(nb - '0')
				j := i + 2
				for j < len(data) && j < i+4 && data[j] >= '0' && data[j] <= '7' {
					v = v*8 + int(data[j]-'0')
					j++
				}
				text = append(text, byte(v))
				i = j
			case nb == 'x':
				v, n, j := 0, 0, i+2
				for j < len(data) && n < 2 && hexVal(data[j]) >= 0 {
					v = v*16 + hexVal(data[j])
					j++
					n++
				}
				if n == 0 {
					text = append(text, 'x')
					i += 2
				} else {
					text = append(text, byte(v))
					i = j
				}
			default:
				// any other escaped character stands for itself
				text = append(text, nb)
				i += 2
			}
		default:
			text = append(text, b)
			i++
		}
	}
	flush(len(data))
	return fields, nil
}
