// Package dumpparser splits a plain-format PostgreSQL dump into statements
// and streams the rows of its data-bearing statements. Everything that
// carries no row data passes through byte for byte.
package dumpparser

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
	"github.com/yugabyte/yb-anonymizer/src/utils/sqlname"
)

// DefaultSchema qualifies table references that carry no schema prefix.
const DefaultSchema = "public"

type StatementKind int

const (
	// StatementVerbatim covers whitespace runs, comments and every statement
	// that carries no row data. Its bytes pass through untouched.
	StatementVerbatim StatementKind = iota
	// StatementCreateTable passes through untouched as well, after its
	// column definitions are harvested for the schema registry.
	StatementCreateTable
	StatementInsert
	StatementCopy
)

type Statement struct {
	Kind   StatementKind
	Offset int64
	// Raw holds the complete statement bytes for verbatim and CREATE TABLE
	// statements. Data-bearing statements stream their rows instead.
	Raw    []byte
	Schema *schemareg.TableSchema
	Insert *InsertStatement
	Copy   *CopyStatement
}

// Scanner walks a dump one statement at a time. After Next returns an INSERT
// or COPY statement the caller owns its rows; whatever the caller leaves
// unread is drained unseen on the following Next call.
type Scanner struct {
	cur     *cursor
	active  interface{ finish() error }
	pending *token
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{cur: newCursor(r)}
}

// Offset returns the absolute position of the next unread byte.
func (s *Scanner) Offset() int64 {
	return s.cur.off
}

// Next returns the next statement, or io.EOF at end of input.
func (s *Scanner) Next() (*Statement, error) {
	if s.active != nil {
		if err := s.active.finish(); err != nil {
			return nil, err
		}
		s.active = nil
	}
	gapStart := s.cur.off
	var gap bytes.Buffer
	for {
		b, err := s.cur.readByte()
		if err == io.EOF {
			if gap.Len() > 0 {
				return &Statement{Kind: StatementVerbatim, Offset: gapStart, Raw: gap.Bytes()}, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		switch {
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			gap.WriteByte(b)
		case b == '-' && s.peekIs('-'):
			gap.WriteByte(b)
			if err := s.consumeLineComment(&gap); err != nil {
				return nil, err
			}
		case b == '/' && s.peekIs('*'):
			gap.WriteByte(b)
			if err := s.consumeBlockComment(&gap); err != nil {
				return nil, err
			}
		case b == '\\':
			// psql directive such as \connect or \restrict: one whole line
			s.cur.unreadByte()
			if gap.Len() > 0 {
				return &Statement{Kind: StatementVerbatim, Offset: gapStart, Raw: gap.Bytes()}, nil
			}
			return s.scanDirectiveLine()
		default:
			s.cur.unreadByte()
			if gap.Len() > 0 {
				return &Statement{Kind: StatementVerbatim, Offset: gapStart, Raw: gap.Bytes()}, nil
			}
			return s.scanStatement()
		}
	}
}

func (s *Scanner) scanDirectiveLine() (*Statement, error) {
	start := s.cur.off
	line, err := s.cur.readLine()
	if err != nil {
		return nil, err
	}
	return &Statement{Kind: StatementVerbatim, Offset: start, Raw: line}, nil
}

func (s *Scanner) scanStatement() (*Statement, error) {
	start := s.cur.off
	var head bytes.Buffer
	t, err := s.nextToken(&head)
	if err != nil {
		return nil, err
	}
	if t.kind == tokWord {
		switch strings.ToLower(t.text) {
		case "insert":
			return s.scanInsertHeader(start, &head)
		case "copy":
			return s.scanCopyHeader(start, &head)
		case "create":
			return s.scanCreateTable(start, &head)
		}
	}
	return s.finishGeneric(start, &head)
}

func (s *Scanner) scanInsertHeader(start int64, head *bytes.Buffer) (*Statement, error) {
	t, err := s.nextToken(head)
	if err != nil {
		return nil, err
	}
	if t.kind != tokWord || !strings.EqualFold(t.text, "INTO") {
		return s.finishGeneric(start, head)
	}
	table, ok, err := s.lexTableRef(head)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.finishGeneric(start, head)
	}
	columns, ok, err := s.lexColumnList(head)
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
	if t.kind == tokWord && strings.EqualFold(t.text, "OVERRIDING") {
		t2, err := s.nextToken(head) // SYSTEM or USER
		if err != nil {
			return nil, err
		}
		t3, err := s.nextToken(head) // VALUE
		if err != nil {
			return nil, err
		}
		if t2.kind != tokWord || t3.kind != tokWord || !strings.EqualFold(t3.text, "VALUE") {
			return s.finishGeneric(start, head)
		}
		t, err = s.nextToken(head)
		if err != nil {
			return nil, err
		}
	}
	// DEFAULT VALUES and SELECT forms carry no literal tuples
	if t.kind != tokWord || !strings.EqualFold(t.text, "VALUES") {
		return s.finishGeneric(start, head)
	}
	ins := &InsertStatement{cur: s.cur, Table: table, Columns: columns, Offset: start}
	s.active = ins
	return &Statement{Kind: StatementInsert, Offset: start, Insert: ins}, nil
}

func (s *Scanner) scanCopyHeader(start int64, head *bytes.Buffer) (*Statement, error) {
	table, ok, err := s.lexTableRef(head)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.finishGeneric(start, head)
	}
	columns, ok, err := s.lexColumnList(head)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.finishGeneric(start, head)
	}
	t, err := s.nextToken(head)
	if err != nil {
		return nil, err
	}
	if t.kind != tokWord || !strings.EqualFold(t.text, "FROM") {
		return s.finishGeneric(start, head)
	}
	t, err = s.nextToken(head)
	if err != nil {
		return nil, err
	}
	// COPY ... FROM '/path' and COPY ... TO never appear with inline data
	if t.kind != tokWord || !strings.EqualFold(t.text, "STDIN") {
		return s.finishGeneric(start, head)
	}
	for {
		t, err = s.nextToken(head)
		if err != nil {
			return nil, err
		}
		if t.kind == tokEOF {
			return s.finishGeneric(start, head)
		}
		if t.kind == tokWord && (strings.EqualFold(t.text, "csv") || strings.EqualFold(t.text, "binary")) {
			return nil, errs.NewMalformedLiteralError(start,
				"COPY for %s uses the %s format, only the text format is supported", table, strings.ToLower(t.text))
		}
		if t.kind == tokPunct && t.text == ";" {
			break
		}
	}
	// data starts on the next line
	for {
		b, err := s.cur.readByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		head.WriteByte(b)
		if b == '\n' {
			break
		}
	}
	cp := &CopyStatement{cur: s.cur, Table: table, Columns: columns, HeaderRaw: head.Bytes(), Offset: start}
	s.active = cp
	return &Statement{Kind: StatementCopy, Offset: start, Copy: cp}, nil
}

// lexTableRef reads a possibly qualified, possibly quoted table reference.
func (s *Scanner) lexTableRef(head *bytes.Buffer) (*sqlname.TableName, bool, error) {
	t, err := s.nextToken(head)
	if err != nil {
		return nil, false, err
	}
	if t.kind != tokWord && t.kind != tokQuoted {
		return nil, false, nil
	}
	raw := t.text
	t2, err := s.nextToken(head)
	if err != nil {
		return nil, false, err
	}
	if t2.kind == tokPunct && t2.text == "." {
		t3, err := s.nextToken(head)
		if err != nil {
			return nil, false, err
		}
		if t3.kind != tokWord && t3.kind != tokQuoted {
			return nil, false, nil
		}
		raw = raw + "." + t3.text
	} else {
		s.pushToken(t2)
	}
	name, err := sqlname.ParseTableName(raw, DefaultSchema)
	if err != nil {
		return nil, false, nil
	}
	return name, true, nil
}

// lexColumnList reads an optional parenthesized identifier list. The boolean
// is false when the statement cannot be parsed and must fall back to
// verbatim passthrough.
func (s *Scanner) lexColumnList(head *bytes.Buffer) ([]string, bool, error) {
	t, err := s.nextToken(head)
	if err != nil {
		return nil, false, err
	}
	if t.kind != tokPunct || t.text != "(" {
		s.pushToken(t)
		return nil, true, nil
	}
	var cols []string
	for {
		t, err = s.nextToken(head)
		if err != nil {
			return nil, false, err
		}
		if t.kind != tokWord && t.kind != tokQuoted {
			return nil, false, nil
		}
		cols = append(cols, sqlname.NewIdentifier(t.text).Unquoted)
		t, err = s.nextToken(head)
		if err != nil {
			return nil, false, err
		}
		switch {
		case t.kind == tokPunct && t.text == ",":
		case t.kind == tokPunct && t.text == ")":
			return cols, true, nil
		default:
			return nil, false, nil
		}
	}
}

// finishGeneric consumes the remainder of the current statement through its
// terminating semicolon and returns it verbatim.
func (s *Scanner) finishGeneric(start int64, head *bytes.Buffer) (*Statement, error) {
	s.pending = nil // pushed-back token bytes already live in head
	if err := s.consumeToSemicolon(head); err != nil && err != io.EOF {
		return nil, err
	}
	return &Statement{Kind: StatementVerbatim, Offset: start, Raw: head.Bytes()}, nil
}

// consumeToSemicolon appends bytes up to and including the next top-level
// semicolon, honoring strings, quoted identifiers, dollar quoting and
// comments. Truncated input returns io.EOF with everything read so far in
// buf.
func (s *Scanner) consumeToSemicolon(buf *bytes.Buffer) error {
	prevWord := false
	for {
		b, err := s.cur.readByte()
		if err != nil {
			return err
		}
		switch {
		case b == ';':
			buf.WriteByte(b)
			return nil
		case b == '\'':
			s.cur.unreadByte()
			if _, err := lexQuotedString(s.cur, false, buf); err != nil {
				return io.EOF
			}
			prevWord = false
			continue
		case (b == 'E' || b == 'e') && !prevWord && s.peekIs('\''):
			buf.WriteByte(b)
			if _, err := lexQuotedString(s.cur, true, buf); err != nil {
				return io.EOF
			}
			prevWord = false
			continue
		case b == '"':
			buf.WriteByte(b)
			if err := s.consumeQuotedIdent(buf); err != nil {
				return err
			}
			prevWord = false
			continue
		case b == '$' && !prevWord:
			buf.WriteByte(b)
			if err := consumeDollarQuote(s.cur, buf); err != nil {
				return err
			}
			prevWord = false
			continue
		case b == '-' && s.peekIs('-'):
			buf.WriteByte(b)
			if err := s.consumeLineComment(buf); err != nil {
				return err
			}
			prevWord = false
			continue
		case b == '/' && s.peekIs('*'):
			buf.WriteByte(b)
			if err := s.consumeBlockComment(buf); err != nil {
				return err
			}
			prevWord = false
			continue
		default:
			buf.WriteByte(b)
		}
		prevWord = isWordChar(b)
	}
}

func (s *Scanner) consumeQuotedIdent(buf *bytes.Buffer) error {
	for {
		b, err := s.cur.readByte()
		if err != nil {
			return err
		}
		buf.WriteByte(b)
		if b == '"' {
			if s.peekIs('"') {
				b, _ = s.cur.readByte()
				buf.WriteByte(b)
				continue
			}
			return nil
		}
	}
}

func (s *Scanner) consumeLineComment(buf *bytes.Buffer) error {
	for {
		b, err := s.cur.readByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		buf.WriteByte(b)
		if b == '\n' {
			return nil
		}
	}
}

// consumeBlockComment handles nesting; the caller has consumed the opening
// slash.
func (s *Scanner) consumeBlockComment(buf *bytes.Buffer) error {
	depth := 0
	prev := byte('/')
	for {
		b, err := s.cur.readByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		buf.WriteByte(b)
		switch {
		case prev == '/' && b == '*':
			depth++
			b = 0
		case prev == '*' && b == '/':
			depth--
			if depth == 0 {
				return nil
			}
			b = 0
		}
		prev = b
	}
}

// consumeDollarQuote scans past a $tag$...$tag$ literal when one starts at
// the cursor; the '$' itself was already consumed. A '$' that opens no valid
// tag is left as a plain byte.
func consumeDollarQuote(c *cursor, buf *bytes.Buffer) error {
	p := c.peekN(64)
	i := 0
	for i < len(p) && (isWordStart(p[i]) || (p[i] >= '0' && p[i] <= '9')) {
		i++
	}
	if i >= len(p) || p[i] != '$' {
		return nil
	}
	closer := "$" + string(p[:i]) + "$"
	for j := 0; j <= i; j++ {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		buf.WriteByte(b)
	}
	window := make([]byte, 0, len(closer))
	for {
		b, err := c.readByte()
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return err
		}
		buf.WriteByte(b)
		window = append(window, b)
		if len(window) > len(closer) {
			window = window[1:]
		}
		if string(window) == closer {
			return nil
		}
	}
}

// header token machinery

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokQuoted
	tokPunct
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

func (s *Scanner) pushToken(t token) {
	s.pending = &t
}

// nextToken lexes one header token, appending every consumed byte to head so
// an unrecognized statement can fall back to verbatim without loss.
func (s *Scanner) nextToken(head *bytes.Buffer) (token, error) {
	if s.pending != nil {
		t := *s.pending
		s.pending = nil
		return t, nil
	}
	if err := s.skipHeaderSpace(head); err != nil {
		if err == io.EOF {
			return token{kind: tokEOF}, nil
		}
		return token{}, err
	}
	b, err := s.cur.readByte()
	if err == io.EOF {
		return token{kind: tokEOF}, nil
	}
	if err != nil {
		return token{}, err
	}
	switch {
	case isWordStart(b):
		head.WriteByte(b)
		var w strings.Builder
		w.WriteByte(b)
		for {
			nb, ok := s.cur.peekByte()
			if !ok || !isWordChar(nb) {
				return token{kind: tokWord, text: w.String()}, nil
			}
			s.cur.readByte()
			head.WriteByte(nb)
			w.WriteByte(nb)
		}
	case b == '"':
		head.WriteByte(b)
		var w strings.Builder
		w.WriteByte('"')
		for {
			nb, err := s.cur.readByte()
			if err != nil {
				return token{kind: tokOther, text: w.String()}, nil
			}
			head.WriteByte(nb)
			w.WriteByte(nb)
			if nb == '"' {
				if s.peekIs('"') {
					nb, _ = s.cur.readByte()
					head.WriteByte(nb)
					w.WriteByte(nb)
					continue
				}
				return token{kind: tokQuoted, text: w.String()}, nil
			}
		}
	case b == '(' || b == ')' || b == ',' || b == ';' || b == '.':
		head.WriteByte(b)
		return token{kind: tokPunct, text: string(b)}, nil
	case b == '\'':
		s.cur.unreadByte()
		if _, err := lexQuotedString(s.cur, false, head); err != nil {
			return token{kind: tokOther}, nil
		}
		return token{kind: tokOther}, nil
	default:
		head.WriteByte(b)
		return token{kind: tokOther, text: string(b)}, nil
	}
}

func (s *Scanner) skipHeaderSpace(head *bytes.Buffer) error {
	for {
		b, err := s.cur.readByte()
		if err != nil {
			return err
		}
		switch {
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			head.WriteByte(b)
		case b == '-' && s.peekIs('-'):
			head.WriteByte(b)
			if err := s.consumeLineComment(head); err != nil {
				return err
			}
		case b == '/' && s.peekIs('*'):
			head.WriteByte(b)
			if err := s.consumeBlockComment(head); err != nil {
				return err
			}
		default:
			s.cur.unreadByte()
			return nil
		}
	}
}

func (s *Scanner) peekIs(want byte) bool {
	b, ok := s.cur.peekByte()
	return ok && b == want
}

func isWordStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}

func isWordChar(b byte) bool {
	return isWordStart(b) || (b >= '0' && b <= '9') || b == '$'
}

// cursor is a byte reader that tracks the absolute offset for error
// reporting.
type cursor struct {
	r   *bufio.Reader
	off int64
}

func newCursor(r io.Reader) *cursor {
	return &cursor{r: bufio.NewReaderSize(r, 64*1024)}
}

func (c *cursor) readByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.off++
	}
	return b, err
}

func (c *cursor) unreadByte() {
	if err := c.r.UnreadByte(); err == nil {
		c.off--
	}
}

func (c *cursor) peekByte() (byte, bool) {
	p, err := c.r.Peek(1)
	if err != nil || len(p) == 0 {
		return 0, false
	}
	return p[0], true
}

func (c *cursor) peekN(n int) []byte {
	p, _ := c.r.Peek(n)
	return p
}

// readLine returns one line including its newline when present; the final
// line of a file may come back without one.
func (c *cursor) readLine() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	c.off += int64(len(line))
	if len(line) > 0 {
		return line, nil
	}
	return nil, err
}
