package pipeline

import (
	"bytes"

	"github.com/yugabyte/yb-anonymizer/src/dumpparser"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

// writeInsertHead renders everything before the first tuple. An explicit
// column list is re-emitted in schema order to match the tuple ordering
// used by writeInsertTuple.
func writeInsertHead(buf *bytes.Buffer, schema *schemareg.TableSchema, ordinals []int, explicit bool) {
	buf.WriteString("INSERT INTO ")
	buf.WriteString(schema.Name.MinQuoted())
	buf.WriteByte(' ')
	if explicit {
		buf.WriteByte('(')
		for i, ord := range ordinals {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(sqlname.MinQuote(schema.Columns[ord].Name))
		}
		buf.WriteString(") ")
	}
	buf.WriteString("VALUES ")
}

// writeInsertTuple renders one parenthesized tuple. Trailing omitted values
// are dropped rather than invented, preserving the original default-fill
// semantics for short tuples.
func writeInsertTuple(buf *bytes.Buffer, row []dumpparser.RawValue, ordinals []int) {
	end := len(ordinals)
	for end > 0 && row[ordinals[end-1]].IsOmitted() {
		end--
	}
	buf.WriteByte('(')
	for i := 0; i < end; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(row[ordinals[i]].EncodeInsert())
	}
	buf.WriteByte(')')
}

// encodeCopyLine renders one COPY data line in the column order of the
// original COPY header.
func encodeCopyLine(row []dumpparser.RawValue, ordinals []int) []byte {
	var out []byte
	for i, ord := range ordinals {
		if i > 0 {
			out = append(out, '\t')
		}
		out = append(out, row[ord].EncodeCopy()...)
	}
	return append(out, '\n')
}
