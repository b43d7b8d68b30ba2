package dumpparser

import (
	"bytes"
	"strings"

	"github.com/yugabyte/yb-anonymizer/src/errs"
)

// lexTuple reads the remainder of one parenthesized tuple. The cursor must
// sit just past the opening parenthesis.
func lexTuple(c *cursor) ([]RawValue, error) {
	var vals []RawValue
	for {
		if err := skipSpaceAndComments(c); err != nil {
			return nil, errs.NewMalformedLiteralError(c.off, "unterminated VALUES tuple")
		}
		v, err := lexValue(c)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		if err := skipSpaceAndComments(c); err != nil {
			return nil, errs.NewMalformedLiteralError(c.off, "unterminated VALUES tuple")
		}
		b, err := c.readByte()
		if err != nil {
			return nil, errs.NewMalformedLiteralError(c.off, "unterminated VALUES tuple")
		}
		switch b {
		case ',':
		case ')':
			return vals, nil
		default:
			return nil, errs.NewMalformedLiteralError(c.off-1, "unexpected %q in VALUES tuple", string(rune(b)))
		}
	}
}

// lexValue reads one literal, stopping before the next top-level ',' or ')'.
func lexValue(c *cursor) (RawValue, error) {
	start := c.off
	b, ok := c.peekByte()
	if !ok {
		return RawValue{}, errs.NewMalformedLiteralError(start, "unexpected end of input in VALUES tuple")
	}
	var raw bytes.Buffer
	switch {
	case b == '\'':
		text, err := lexQuotedString(c, false, &raw)
		if err != nil {
			return RawValue{}, err
		}
		return finishStringValue(c, text, &raw, false)
	case b == 'E' || b == 'e':
		if p := c.peekN(2); len(p) == 2 && p[1] == '\'' {
			c.readByte()
			raw.WriteByte(b)
			text, err := lexQuotedString(c, true, &raw)
			if err != nil {
				return RawValue{}, err
			}
			return finishStringValue(c, text, &raw, true)
		}
		return lexBareValue(c, start, &raw)
	default:
		return lexBareValue(c, start, &raw)
	}
}

// finishStringValue decides whether a leading string literal is the whole
// value. A suffix such as a ::cast turns the span into a bare value, which
// is never a transformation target.
func finishStringValue(c *cursor, text string, raw *bytes.Buffer, escape bool) (RawValue, error) {
	if valueEnded(c) {
		return StringValue(text, append([]byte(nil), raw.Bytes()...), escape), nil
	}
	return lexBareValue(c, c.off, raw)
}

// valueEnded peeks past whitespace for the next separator without consuming
// anything.
func valueEnded(c *cursor) bool {
	p := c.peekN(256)
	for _, b := range p {
		switch b {
		case ' ', '\t', '\n', '\r':
		case ',', ')':
			return true
		default:
			return false
		}
	}
	return len(p) == 0
}

// lexBareValue consumes an unquoted literal with balanced parentheses and
// brackets, strings and dollar quotes included, up to the next top-level
// separator. raw may already hold a consumed prefix.
func lexBareValue(c *cursor, start int64, raw *bytes.Buffer) (RawValue, error) {
	depth := 0
	prevWord := false
	if rb := raw.Bytes(); len(rb) > 0 {
		prevWord = isWordChar(rb[len(rb)-1])
	}
	for {
		b, ok := c.peekByte()
		if !ok {
			return RawValue{}, errs.NewMalformedLiteralError(start, "unterminated value in VALUES tuple")
		}
		if depth == 0 && (b == ',' || b == ')') {
			break
		}
		switch {
		case b == '\'':
			if _, err := lexQuotedString(c, false, raw); err != nil {
				return RawValue{}, err
			}
			prevWord = false
			continue
		case (b == 'E' || b == 'e') && !prevWord:
			if p := c.peekN(2); len(p) == 2 && p[1] == '\'' {
				c.readByte()
				raw.WriteByte(b)
				if _, err := lexQuotedString(c, true, raw); err != nil {
					return RawValue{}, err
				}
				prevWord = false
				continue
			}
			c.readByte()
			raw.WriteByte(b)
		case b == '"':
			c.readByte()
			raw.WriteByte(b)
			if err := consumeQuotedIdentRaw(c, raw); err != nil {
				return RawValue{}, errs.NewMalformedLiteralError(start, "unterminated quoted identifier in VALUES tuple")
			}
			prevWord = false
			continue
		case b == '$' && !prevWord:
			c.readByte()
			raw.WriteByte(b)
			if err := consumeDollarQuote(c, raw); err != nil {
				return RawValue{}, errs.NewMalformedLiteralError(start, "unterminated dollar-quoted literal in VALUES tuple")
			}
			prevWord = false
			continue
		case b == '(' || b == '[':
			depth++
			c.readByte()
			raw.WriteByte(b)
		case b == ')' || b == ']':
			if depth > 0 {
				depth--
			}
			c.readByte()
			raw.WriteByte(b)
		default:
			c.readByte()
			raw.WriteByte(b)
		}
		prevWord = isWordChar(b)
	}
	data := bytes.TrimRight(raw.Bytes(), " \t\n\r")
	if len(data) == 0 {
		return RawValue{}, errs.NewMalformedLiteralError(start, "empty value in VALUES tuple")
	}
	out := append([]byte(nil), data...)
	if isBareNull(out) {
		return NullValue(out), nil
	}
	return BareValue(out), nil
}

func isBareNull(data []byte) bool {
	return len(data) == 4 && strings.EqualFold(string(data), "NULL")
}

func consumeQuotedIdentRaw(c *cursor, raw *bytes.Buffer) error {
	for {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		raw.WriteByte(b)
		if b == '"' {
			if nb, ok := c.peekByte(); ok && nb == '"' {
				c.readByte()
				raw.WriteByte(nb)
				continue
			}
			return nil
		}
	}
}

// lexQuotedString decodes a single-quoted literal, appending the original
// bytes to raw. The cursor must sit on the opening quote. escape enables the
// E'...' backslash sequences.
func lexQuotedString(c *cursor, escape bool, raw *bytes.Buffer) (string, error) {
	start := c.off
	b, err := c.readByte()
	if err != nil || b != '\'' {
		return "", errs.NewMalformedLiteralError(start, "expected string literal")
	}
	raw.WriteByte(b)
	var text strings.Builder
	for {
		b, err := c.readByte()
		if err != nil {
			return "", errs.NewMalformedLiteralError(start, "unterminated string literal")
		}
		raw.WriteByte(b)
		switch {
		case b == '\'':
			if nb, ok := c.peekByte(); ok && nb == '\'' {
				c.readByte()
				raw.WriteByte('\'')
				text.WriteByte('\'')
				continue
			}
			return text.String(), nil
		case escape && b == '\\':
			if err := decodeStringEscape(c, raw, &text); err != nil {
				return "", err
			}
		default:
			text.WriteByte(b)
		}
	}
}

// decodeStringEscape handles one E'...' backslash sequence; the backslash
// itself was already consumed. Unknown sequences decode to the escaped
// character, matching server behavior.
func decodeStringEscape(c *cursor, raw *bytes.Buffer, text *strings.Builder) error {
	at := c.off
	b, err := c.readByte()
	if err != nil {
		return errs.NewMalformedLiteralError(at, "unterminated escape sequence")
	}
	raw.WriteByte(b)
	switch {
	case b == 'b':
		text.WriteByte('\b')
	case b == 'f':
		text.WriteByte('\f')
	case b == 'n':
		text.WriteByte('\n')
	case b == 'r':
		text.WriteByte('\r')
	case b == 't':
		text.WriteByte('\t')
	case b >= '0' && b <= '7':
		v := int(b - '0')
		for i := 0; i < 2; i++ {
			nb, ok := c.peekByte()
			if !ok || nb < '0' || nb > '7' {
				break
			}
			c.readByte()
			raw.WriteByte(nb)
			v = v*8 + int(nb-'0')
		}
		text.WriteByte(byte(v))
	case b == 'x':
		v, n := 0, 0
		for n < 2 {
			nb, ok := c.peekByte()
			if !ok || hexVal(nb) < 0 {
				break
			}
			c.readByte()
			raw.WriteByte(nb)
			v = v*16 + hexVal(nb)
			n++
		}
		if n == 0 {
			text.WriteByte('x')
		} else {
			text.WriteByte(byte(v))
		}
	case b == 'u' || b == 'U':
		n := 4
		if b == 'U' {
			n = 8
		}
		v := 0
		for i := 0; i < n; i++ {
			nb, err := c.readByte()
			if err != nil || hexVal(nb) < 0 {
				return errs.NewMalformedLiteralError(at, "invalid unicode escape in string literal")
			}
			raw.WriteByte(nb)
			v = v*16 + hexVal(nb)
		}
		text.WriteRune(rune(v))
	default:
		// covers \' and \\ as well
		text.WriteByte(b)
	}
	return nil
}

func hexVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	default:
		return -1
	}
}

// skipSpaceAndComments drops whitespace and comments between tuple elements.
// Dropped bytes are not part of any value's raw span.
func skipSpaceAndComments(c *cursor) error {
	for {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		switch {
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
		case b == '-':
			nb, ok := c.peekByte()
			if !ok || nb != '-' {
				c.unreadByte()
				return nil
			}
			for {
				b, err = c.readByte()
				if err != nil {
					return err
				}
				if b == '\n' {
					break
				}
			}
		case b == '/':
			nb, ok := c.peekByte()
			if !ok || nb != '*' {
				c.unreadByte()
				return nil
			}
			c.readByte()
			depth := 1
			prev := byte(0)
			for depth > 0 {
				b, err = c.readByte()
				if err != nil {
					return err
				}
				switch {
				case prev == '/' && b == '*':
					depth++
					b = 0
				case prev == '*' && b == '/':
					depth--
					b = 0
				}
				prev = b
			}
		default:
			c.unreadByte()
			return nil
		}
	}
}
