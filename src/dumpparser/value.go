package dumpparser

// ValueKind discriminates how a literal appeared in the dump.
type ValueKind int

const (
	// ValueNull is a NULL keyword in a VALUES list or \N in a COPY line.
	ValueNull ValueKind = iota
	// ValueString is a quoted SQL string or a COPY text field.
	ValueString
	// ValueBare is an unquoted literal: numbers, booleans, casts, anything
	// balanced up to the next top-level separator. Never transformed.
	ValueBare
	// ValueOmitted marks a column absent from a partial INSERT column list.
	ValueOmitted
)

// RawValue is one literal from a data row. Raw keeps the original encoding
// (quotes and escapes included) so Keep re-emits byte-for-byte; Text is the
// decoded payload used for transformation and structural checks.
type RawValue struct {
	Kind ValueKind
	Text string
	Raw  []byte
	// EscapeString marks an E'...' literal whose Raw uses backslash escapes.
	EscapeString bool
}

func NullValue(raw []byte) RawValue {
	return RawValue{Kind: ValueNull, Raw: raw}
}

func StringValue(text string, raw []byte, escapeString bool) RawValue {
	return RawValue{Kind: ValueString, Text: text, Raw: raw, EscapeString: escapeString}
}

func BareValue(raw []byte) RawValue {
	return RawValue{Kind: ValueBare, Raw: raw}
}

// ReplacementValue carries a transformed payload. Raw is nil; the writer
// re-encodes Text for whichever statement form it lands in.
func ReplacementValue(text string) RawValue {
	return RawValue{Kind: ValueString, Text: text}
}

func OmittedValue() RawValue {
	return RawValue{Kind: ValueOmitted}
}

func (v RawValue) IsNull() bool {
	return v.Kind == ValueNull
}

func (v RawValue) IsOmitted() bool {
	return v.Kind == ValueOmitted
}

// EncodeInsert renders the value for a VALUES tuple. Unmodified values keep
// their original bytes; replacements become standard quoted literals with
// doubled single quotes.
func (v RawValue) EncodeInsert() []byte {
	if v.Raw != nil {
		return v.Raw
	}
	out := make([]byte, 0, len(v.Text)+2)
	out = append(out, '\'')
	for i := 0; i < len(v.Text); i++ {
		c := v.Text[i]
		if c == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, c)
		}
	}
	return append(out, '\'')
}

// EncodeCopy renders the value for a COPY data line.
func (v RawValue) EncodeCopy() []byte {
	if v.Kind == ValueNull {
		return []byte(`\N`)
	}
	if v.Raw != nil {
		return v.Raw
	}
	out := make([]byte, 0, len(v.Text))
	for i := 0; i < len(v.Text); i++ {
		switch c := v.Text[i]; c {
		case '\\':
			out = append(out, '\\', '\\')
		case '\t':
			out = append(out, '\\', 't')
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return out
}
