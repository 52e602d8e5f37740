package macroparser

import (
	"strings"

	"github.com/midi-macros/midi-macros/internal/parsebuf"
)

// maybeParsePredicates reads zero or more `{...}` match-predicates
// immediately following a note, chord, or parenthesized trigger group.
func maybeParsePredicates(buf *parsebuf.Buffer) ([]string, error) {
	var predicates []string
	for {
		c, err := buf.Peek()
		if err != nil || c != '{' {
			break
		}
		text, err := readBalancedPredicate(buf)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, text)
	}
	return predicates, nil
}

// readBalancedPredicate reads one `{ ... }` predicate body by balanced
// brace skipping, treating Python-style string literals (including
// triple-quoted) as transparent to brace counting; the body may span
// lines.
func readBalancedPredicate(buf *parsebuf.Buffer) (string, error) {
	if err := buf.Advance(1); err != nil { // '{'
		return "", err
	}
	var b strings.Builder
	depth := 0
	for {
		if buf.AtEOL() {
			if err := buf.Newline(); err != nil {
				return "", err
			}
			b.WriteByte('\n')
			continue
		}
		c, err := buf.Peek()
		if err != nil {
			return "", err
		}
		switch c {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				if err := buf.Advance(1); err != nil {
					return "", err
				}
				return strings.TrimSpace(b.String()), nil
			}
			depth--
		case '\'', '"':
			s, err := readPythonString(buf)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			continue
		}
		b.WriteByte(c)
		if err := buf.Advance(1); err != nil {
			return "", err
		}
	}
}

// readPythonString consumes and returns the verbatim text of a Python
// string literal (single, double, or triple-quoted), honoring backslash
// escapes, leaving brace counting blind to its contents.
func readPythonString(buf *parsebuf.Buffer) (string, error) {
	quote, err := buf.Peek()
	if err != nil {
		return "", err
	}
	triple := hasTripleQuoteAt(buf, quote)
	n := 1
	if triple {
		n = 3
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(quote)
	}
	if err := buf.Advance(n); err != nil {
		return "", err
	}
	escaping := false
	consecutiveQuotes := 0
	for {
		if buf.AtEOL() {
			if err := buf.Newline(); err != nil {
				return "", err
			}
			b.WriteByte('\n')
			continue
		}
		c, err := buf.Peek()
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
		if err := buf.Advance(1); err != nil {
			return "", err
		}
		if c == quote && !escaping {
			if !triple {
				return b.String(), nil
			}
			consecutiveQuotes++
			if consecutiveQuotes == 3 {
				return b.String(), nil
			}
			continue
		}
		consecutiveQuotes = 0
		escaping = !escaping && c == '\\'
	}
}

func hasTripleQuoteAt(buf *parsebuf.Buffer, quote byte) bool {
	line := buf.CurrentLineText()
	pos := buf.Position()
	if pos.Col+3 > len(line) {
		return false
	}
	return line[pos.Col] == quote && line[pos.Col+1] == quote && line[pos.Col+2] == quote
}
