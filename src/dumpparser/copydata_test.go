package dumpparser

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-anonymizer/src/errs"
)

func scanCopy(t *testing.T, input string) *CopyStatement {
	t.Helper()
	sc := NewScanner(strings.NewReader(input))
	stmt, err := sc.Next()
	require.NoError(t, err)
	require.Equal(t, StatementCopy, stmt.Kind)
	return stmt.Copy
}

func TestCopyStreamRows(t *testing.T) {
	header := "COPY public.users (id, email, full_name) FROM stdin;\n"
	input := header +
		"1\talice@example.com\tAlice Smith\n" +
		"2\t\\N\tBob \\\\ Jones\n" +
		"\\.\n"
	cp := scanCopy(t, input)
	require.NoError(t, cp.Bind(usersSchema()))
	assert.Equal(t, header, string(cp.HeaderRaw))

	row, err := cp.NextRow()
	require.NoError(t, err)
	require.Len(t, row, 3)
	assert.Equal(t, "1", row[0].Text)
	assert.Equal(t, "alice@example.com", row[1].Text)
	assert.Equal(t, "Alice Smith", row[2].Text)

	row, err = cp.NextRow()
	require.NoError(t, err)
	assert.True(t, row[1].IsNull())
	assert.Equal(t, "\\N", string(row[1].Raw))
	assert.Equal(t, "Bob \\ Jones", row[2].Text)
	assert.Equal(t, "Bob \\\\ Jones", string(row[2].Raw))

	_, err = cp.NextRow()
	assert.Equal(t, io.EOF, err)
	_, err = cp.NextRow()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(2), cp.Rows())
}

func TestCopyPartialColumnList(t *testing.T) {
	input := "COPY public.users (email) FROM stdin;\n" +
		"solo@example.com\n" +
		"\\.\n"
	cp := scanCopy(t, input)
	require.NoError(t, cp.Bind(usersSchema()))
	assert.Equal(t, []int{1}, cp.EmitOrdinals())

	row, err := cp.NextRow()
	require.NoError(t, err)
	assert.True(t, row[0].IsOmitted())
	assert.Equal(t, "solo@example.com", row[1].Text)
	assert.True(t, row[2].IsOmitted())
}

func TestCopyWithoutColumnListUsesTableOrder(t *testing.T) {
	input := "COPY public.users FROM stdin;\n" +
		"1\ta@b.example\tAlice\n" +
		"\\.\n"
	cp := scanCopy(t, input)
	require.NoError(t, cp.Bind(usersSchema()))
	assert.Equal(t, []int{0, 1, 2}, cp.EmitOrdinals())

	row, err := cp.NextRow()
	require.NoError(t, err)
	assert.Equal(t, "Alice", row[2].Text)
}

func TestCopyEndOfDataMarkerVariants(t *testing.T) {
	for name, tail := range map[string]string{
		"plain":                   "\\.\n",
		"carriage return":         "\\.\r\n",
		"no final newline":        "\\.",
		"statement follows block": "\\.\nSET x = 1;\n",
	} {
		t.Run(name, func(t *testing.T) {
			cp := scanCopy(t, "COPY public.users (id, email, full_name) FROM stdin;\n1\ta\tb\n"+tail)
			require.NoError(t, cp.Bind(usersSchema()))
			_, err := cp.NextRow()
			require.NoError(t, err)
			_, err = cp.NextRow()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestCopyMissingTerminator(t *testing.T) {
	t.Run("input ends mid block", func(t *testing.T) {
		cp := scanCopy(t, "COPY public.users (id, email, full_name) FROM stdin;\n1\ta\tb\n")
		require.NoError(t, cp.Bind(usersSchema()))
		_, err := cp.NextRow()
		require.NoError(t, err)
		_, err = cp.NextRow()
		var mle *errs.MalformedLiteralError
		require.ErrorAs(t, err, &mle)
		assert.Contains(t, err.Error(), "end-of-data marker")
	})
	t.Run("last line unterminated", func(t *testing.T) {
		cp := scanCopy(t, "COPY public.users (id, email, full_name) FROM stdin;\n1\ta\tb")
		require.NoError(t, cp.Bind(usersSchema()))
		_, err := cp.NextRow()
		var mle *errs.MalformedLiteralError
		require.ErrorAs(t, err, &mle)
	})
}

func TestCopyFieldCountMismatch(t *testing.T) {
	cp := scanCopy(t, "COPY public.users (id, email, full_name) FROM stdin;\n1\tonly-two\n\\.\n")
	require.NoError(t, cp.Bind(usersSchema()))
	_, err := cp.NextRow()
	var mle *errs.MalformedLiteralError
	require.ErrorAs(t, err, &mle)
	assert.Contains(t, err.Error(), "expected 3")
}

func TestCopyNextRowWithoutBind(t *testing.T) {
	cp := scanCopy(t, "COPY public.users FROM stdin;\n\\.\n")
	_, err := cp.NextRow()
	var se *errs.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "public.users", se.Table())
}

func TestDecodeCopyLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string // decoded texts; "\x00N" marks expected null
	}{
		{"plain fields", "a\tb\tc", []string{"a", "b", "c"}},
		{"empty line is one empty field", "", []string{""}},
		{"empty middle field", "a\t\tc", []string{"a", "", "c"}},
		{"control escapes", "a\\tb\\nc", []string{"a\tb\nc"}},
		{"vertical tab and friends", "\\v\\b\\f\\r", []string{"\v\b\f\r"}},
		{"backslash escape", "x\\\\y", []string{"x\\y"}},
		{"null field", "\\N", []string{"\x00N"}},
		{"escaped N is not null", "\\NN", []string{"NN"}},
		{"octal", "\\101", []string{"A"}},
		{"octal stops at three digits", "\\1011", []string{"A1"}},
		{"hex", "\\x41", []string{"A"}},
		{"hex stops at two digits", "\\x411", []string{"A1"}},
		{"bare x after backslash", "\\xzz", []string{"xzz"}},
		{"unknown escape is the character itself", "\\q", []string{"q"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := decodeCopyLine([]byte(tt.line), 0)
			require.NoError(t, err)
			require.Len(t, fields, len(tt.want))
			for i, want := range tt.want {
				if want == "\x00N" {
					assert.True(t, fields[i].IsNull(), "field %d", i)
					continue
				}
				assert.Equal(t, want, fields[i].Text, "field %d", i)
			}
		})
	}
}

func TestDecodeCopyLineKeepsRawSpans(t *testing.T) {
	fields, err := decodeCopyLine([]byte("plain\ta\\tb"), 0)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "plain", string(fields[0].Raw))
	assert.Equal(t, "a\\tb", string(fields[1].Raw))
	assert.Equal(t, "a\tb", fields[1].Text)
}

func TestDecodeCopyLineLoneBackslash(t *testing.T) {
	_, err := decodeCopyLine([]byte("abc\\"), 7)
	var mle *errs.MalformedLiteralError
	require.ErrorAs(t, err, &mle)
	assert.Equal(t, int64(10), mle.Offset())
	assert.Contains(t, err.Error(), "lone backslash")
}
