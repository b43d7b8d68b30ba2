package dumpparser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-anonymizer/src/errs"
)

func cursorOf(s string) *cursor {
	return newCursor(strings.NewReader(s))
}

func TestLexValueKinds(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind ValueKind
		text string
		raw  string
	}{
		{"integer", "123", ValueBare, "", "123"},
		{"negative float", "-1.5e3", ValueBare, "", "-1.5e3"},
		{"boolean", "true", ValueBare, "", "true"},
		{"null uppercase", "NULL", ValueNull, "", "NULL"},
		{"null lowercase", "null", ValueNull, "", "null"},
		{"string", "'abc'", ValueString, "abc", "'abc'"},
		{"string with doubled quote", "'O''Brien'", ValueString, "O'Brien", "'O''Brien'"},
		{"escape string", `E'a\nb'`, ValueString, "a\nb", `E'a\nb'`},
		{"lowercase escape string", `e'\t'`, ValueString, "\t", `e'\t'`},
		{"cast suffix makes the span bare", "'x'::jsonb", ValueBare, "", "'x'::jsonb"},
		{"function call", "now()", ValueBare, "", "now()"},
		{"array constructor", "ARRAY['a,b', 'c']", ValueBare, "", "ARRAY['a,b', 'c']"},
		{"bit string", "B'1010'", ValueBare, "", "B'1010'"},
		{"dollar quoted", "$tag$v;al$tag$", ValueBare, "", "$tag$v;al$tag$"},
		{"word that starts with e", "epoch", ValueBare, "", "epoch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cursorOf(tt.in + ")")
			v, err := lexValue(c)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, tt.raw, string(v.Raw))
			if tt.kind == ValueString {
				assert.Equal(t, tt.text, v.Text)
			}
			b, ok := c.peekByte()
			require.True(t, ok)
			assert.Equal(t, byte(')'), b, "value must stop at the separator")
		})
	}
}

func TestLexTuple(t *testing.T) {
	t.Run("values and terminator", func(t *testing.T) {
		c := cursorOf("1, 'a', NULL);")
		vals, err := lexTuple(c)
		require.NoError(t, err)
		require.Len(t, vals, 3)
		assert.Equal(t, ValueBare, vals[0].Kind)
		assert.Equal(t, ValueString, vals[1].Kind)
		assert.True(t, vals[2].IsNull())
		b, ok := c.peekByte()
		require.True(t, ok)
		assert.Equal(t, byte(';'), b)
	})
	t.Run("comments between values are dropped", func(t *testing.T) {
		c := cursorOf("1, /* note */ 'a',\n-- note\n2)")
		vals, err := lexTuple(c)
		require.NoError(t, err)
		require.Len(t, vals, 3)
		assert.Equal(t, "'a'", string(vals[1].Raw))
		assert.Equal(t, "2", string(vals[2].Raw))
	})
	t.Run("empty tuple", func(t *testing.T) {
		_, err := lexTuple(cursorOf(")"))
		var mle *errs.MalformedLiteralError
		require.ErrorAs(t, err, &mle)
		assert.Contains(t, err.Error(), "empty value")
	})
	t.Run("unterminated", func(t *testing.T) {
		_, err := lexTuple(cursorOf("1, 2"))
		var mle *errs.MalformedLiteralError
		require.ErrorAs(t, err, &mle)
	})
}

func TestEscapeStringDecoding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newline", `'a\nb'`, "a\nb"},
		{"tab", `'\t'`, "\t"},
		{"backslash", `'\\'`, `\`},
		{"escaped quote", `'\''`, "'"},
		{"doubled quote", `''''`, "'"},
		{"octal", `'\101'`, "A"},
		{"octal stops at three digits", `'\1011'`, "A1"},
		{"hex", `'\x41'`, "A"},
		{"bare x after backslash", `'\xzz'`, "xzz"},
		{"unicode four digits", `'\u00e9'`, "é"},
		{"unicode eight digits", `'\U0001F600'`, "😀"},
		{"unknown escape is the character itself", `'\q'`, "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw bytes.Buffer
			text, err := lexQuotedString(cursorOf(tt.in), true, &raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, tt.in, raw.String(), "raw span must keep the encoded bytes")
		})
	}
}

func TestQuotedStringErrors(t *testing.T) {
	t.Run("unterminated", func(t *testing.T) {
		var raw bytes.Buffer
		_, err := lexQuotedString(cursorOf("'abc"), false, &raw)
		var mle *errs.MalformedLiteralError
		require.ErrorAs(t, err, &mle)
		assert.Contains(t, err.Error(), "unterminated string literal")
	})
	t.Run("invalid unicode escape", func(t *testing.T) {
		var raw bytes.Buffer
		_, err := lexQuotedString(cursorOf(`'\u00zz'`), true, &raw)
		var mle *errs.MalformedLiteralError
		require.ErrorAs(t, err, &mle)
		assert.Contains(t, err.Error(), "unicode")
	})
}

func TestStandardStringKeepsBackslash(t *testing.T) {
	var raw bytes.Buffer
	text, err := lexQuotedString(cursorOf(`'a\nb'`), false, &raw)
	require.NoError(t, err)
	assert.Equal(t, `a\nb`, text)
	assert.Equal(t, `'a\nb'`, raw.String())
}

func TestSkipSpaceAndComments(t *testing.T) {
	t.Run("whitespace and nested comments", func(t *testing.T) {
		c := cursorOf("  -- line\n  /* block /* nested */ */\t1")
		require.NoError(t, skipSpaceAndComments(c))
		b, ok := c.peekByte()
		require.True(t, ok)
		assert.Equal(t, byte('1'), b)
	})
	t.Run("minus sign is not a comment", func(t *testing.T) {
		c := cursorOf(" -1)")
		require.NoError(t, skipSpaceAndComments(c))
		b, ok := c.peekByte()
		require.True(t, ok)
		assert.Equal(t, byte('-'), b)
	})
}
