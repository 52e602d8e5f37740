package macroparser

import (
	"math"
	"strings"

	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/parsebuf"
)

var fstringShorthand = map[byte]string{
	'm': "MIDI",
	'p': "PIANO",
	'a': "ASPN",
	'A': "ASPN_UNICODE",
	'v': "VELOCITY",
	't': "TIME",
	'c': "CHANNEL",
	'n': "NONE",
}

// parseArgumentDefinition parses the 'NOTES range? predicate* processor?'
// or 'MIDI predicate* processor?' production following a wildcard '*' or
// a trigger sequence.
func parseArgumentDefinition(buf *parsebuf.Buffer) (*macro.ArgumentDefinition, error) {
	kind, err := parseArgDefKeyword(buf)
	if err != nil {
		return nil, err
	}

	rng := macro.UnboundedRange
	if kind == macro.ArgPlayedNotes {
		c, err := buf.Peek()
		if err == nil && c == '[' {
			rng, err = parseArgumentNumberRange(buf)
			if err != nil {
				return nil, err
			}
		}
	}

	predicates, err := maybeParsePredicates(buf)
	if err != nil {
		return nil, err
	}

	def := &macro.ArgumentDefinition{Kind: kind, Range: rng, Predicates: predicates}

	buf.SkipWhitespace()
	c, err := buf.Peek()
	if err == nil && c == '(' {
		proc, err := parseProcessor(buf)
		if err != nil {
			return nil, err
		}
		def.Processor = proc
	}
	return def, nil
}

func parseArgDefKeyword(buf *parsebuf.Buffer) (macro.ArgumentKind, error) {
	if matchKeyword(buf, "NOTES") {
		return macro.ArgPlayedNotes, nil
	}
	if matchKeyword(buf, "MIDI") {
		return macro.ArgMidi, nil
	}
	return 0, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected NOTES or MIDI"}
}

func matchKeyword(buf *parsebuf.Buffer, kw string) bool {
	if !peekKeyword(buf, kw) {
		return false
	}
	_ = buf.Advance(len(kw))
	return true
}

// peekKeyword reports whether kw sits at the cursor as a whole word,
// without consuming it.
func peekKeyword(buf *parsebuf.Buffer, kw string) bool {
	line := buf.CurrentLineText()
	pos := buf.Position()
	if pos.Col+len(kw) > len(line) {
		return false
	}
	if line[pos.Col:pos.Col+len(kw)] != kw {
		return false
	}
	end := pos.Col + len(kw)
	if end < len(line) && (isAlnum(line[end]) || line[end] == '_') {
		return false
	}
	return true
}

func parseArgumentNumberRange(buf *parsebuf.Buffer) (macro.ArgumentNumberRange, error) {
	if err := buf.Advance(1); err != nil { // '['
		return macro.ArgumentNumberRange{}, err
	}
	lower := 0
	haveLower := false
	c, err := buf.Peek()
	if err != nil {
		return macro.ArgumentNumberRange{}, err
	}
	if isDigit(c) {
		lower, err = parsePositiveInteger(buf)
		if err != nil {
			return macro.ArgumentNumberRange{}, err
		}
		haveLower = true
		c, err = buf.Peek()
		if err != nil {
			return macro.ArgumentNumberRange{}, err
		}
		if c == ']' {
			if err := buf.Advance(1); err != nil {
				return macro.ArgumentNumberRange{}, err
			}
			return macro.ExactRange(lower), nil
		}
	}
	if c != ':' {
		msg := "expected number or ':'"
		if haveLower {
			msg = "expected ':' or ']'"
		}
		return macro.ArgumentNumberRange{}, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: msg}
	}
	if err := buf.Advance(1); err != nil {
		return macro.ArgumentNumberRange{}, err
	}
	upper := math.Inf(1)
	c, err = buf.Peek()
	if err != nil {
		return macro.ArgumentNumberRange{}, err
	}
	if isDigit(c) {
		n, err := parsePositiveInteger(buf)
		if err != nil {
			return macro.ArgumentNumberRange{}, err
		}
		upper = float64(n)
	}
	c, err = buf.Peek()
	if err != nil || c != ']' {
		return macro.ArgumentNumberRange{}, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected ']'"}
	}
	if err := buf.Advance(1); err != nil {
		return macro.ArgumentNumberRange{}, err
	}
	return macro.ArgumentNumberRange{Lower: lower, Upper: upper}, nil
}

func parseProcessor(buf *parsebuf.Buffer) (*macro.ArgumentProcessor, error) {
	if err := buf.Advance(1); err != nil { // '('
		return nil, err
	}
	buf.SkipWhitespace()
	c, err := buf.Peek()
	if err != nil {
		return nil, err
	}
	if c == '"' || c == '\'' {
		return parseReplacementList(buf)
	}
	proc, err := parseArgBody(buf)
	if err != nil {
		return nil, err
	}
	buf.SkipWhitespace()
	if err := expectByte(buf, ')'); err != nil {
		return nil, err
	}
	return proc, nil
}

func parseReplacementList(buf *parsebuf.Buffer) (*macro.ArgumentProcessor, error) {
	var replacements []macro.Replacement
	for {
		buf.SkipWhitespace()
		token, err := readQuotedString(buf)
		if err != nil {
			return nil, err
		}
		buf.SkipWhitespace()
		if err := parseArrow(buf); err != nil {
			return nil, err
		}
		buf.SkipWhitespace()
		joiner, err := parseArgBody(buf)
		if err != nil {
			return nil, err
		}
		replacements = append(replacements, macro.Replacement{Token: token, Processor: joiner})
		buf.SkipWhitespace()
		c, err := buf.Peek()
		if err != nil {
			return nil, err
		}
		if c == ',' {
			if err := buf.Advance(1); err != nil {
				return nil, err
			}
			continue
		}
		if c == ')' {
			if err := buf.Advance(1); err != nil {
				return nil, err
			}
			break
		}
		return nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected ',' or ')'"}
	}
	return &macro.ArgumentProcessor{Replacements: replacements}, nil
}

// parseArgBody parses 'separator? (namedFmt | fstring)'.
func parseArgBody(buf *parsebuf.Buffer) (*macro.ArgumentProcessor, error) {
	separator := " " // default argument separator
	c, err := buf.Peek()
	if err != nil {
		return nil, err
	}
	if c == '[' {
		if err := buf.Advance(1); err != nil {
			return nil, err
		}
		buf.SkipWhitespace()
		c, err := buf.Peek()
		if err != nil {
			return nil, err
		}
		if c == '"' || c == '\'' {
			separator, err = readQuotedString(buf)
			if err != nil {
				return nil, err
			}
		} else {
			separator, err = readUntilByte(buf, ']')
			if err != nil {
				return nil, err
			}
		}
		buf.SkipWhitespace()
		if err := expectByte(buf, ']'); err != nil {
			return nil, err
		}
		buf.SkipWhitespace()
	}

	c, err = buf.Peek()
	if err != nil {
		return nil, err
	}
	var parts []macro.FormatPart
	if c == 'f' {
		parts, err = parseFStringFormat(buf)
	} else {
		parts, err = parseNamedFormat(buf)
	}
	if err != nil {
		return nil, err
	}
	return &macro.ArgumentProcessor{Separator: separator, Format: parts}, nil
}

func parseNamedFormat(buf *parsebuf.Buffer) ([]macro.FormatPart, error) {
	name := readIdentifier(buf)
	field, ok := macro.Formats[name]
	if !ok {
		return nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "unknown argument format: " + name}
	}
	return []macro.FormatPart{{Field: field}}, nil
}

func readIdentifier(buf *parsebuf.Buffer) string {
	line := buf.CurrentLineText()
	start := buf.Position().Col
	end := start
	for end < len(line) && (isAlnum(line[end]) || line[end] == '_') {
		end++
	}
	_ = buf.Advance(end - start)
	return line[start:end]
}

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func parseFStringFormat(buf *parsebuf.Buffer) ([]macro.FormatPart, error) {
	if err := buf.Advance(1); err != nil { // 'f'
		return nil, err
	}
	raw, err := readQuotedString(buf)
	if err != nil {
		return nil, err
	}
	var parts []macro.FormatPart
	var literal strings.Builder
	flushLiteral := func() {
		if literal.Len() > 0 {
			parts = append(parts, macro.FormatPart{Literal: literal.String()})
			literal.Reset()
		}
	}
	escaping := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if escaping {
			if ch == '%' {
				literal.WriteByte('%')
				escaping = false
				continue
			}
			if name, ok := fstringShorthand[ch]; ok {
				flushLiteral()
				parts = append(parts, macro.FormatPart{Field: macro.Formats[name]})
				escaping = false
				continue
			}
			// '%' not followed by a recognized escape: treat literally.
			literal.WriteByte('%')
			literal.WriteByte(ch)
			escaping = false
			continue
		}
		if ch == '%' {
			escaping = true
			continue
		}
		literal.WriteByte(ch)
	}
	flushLiteral()
	return parts, nil
}

func readQuotedString(buf *parsebuf.Buffer) (string, error) {
	quote, err := buf.Peek()
	if err != nil {
		return "", err
	}
	if quote != '"' && quote != '\'' {
		return "", &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected a quoted string"}
	}
	if err := buf.Advance(1); err != nil {
		return "", err
	}
	var b strings.Builder
	escaping := false
	for {
		c, err := buf.Peek()
		if err != nil {
			return "", err
		}
		if c == quote && !escaping {
			if err := buf.Advance(1); err != nil {
				return "", err
			}
			return unescapeCStyle(b.String()), nil
		}
		b.WriteByte(c)
		if err := buf.Advance(1); err != nil {
			return "", err
		}
		escaping = !escaping && c == '\\'
	}
}

func unescapeCStyle(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case '"':
				b.WriteByte('"')
				i++
				continue
			case '\'':
				b.WriteByte('\'')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// readUntilByte reads up to (but not including) the next occurrence of
// stop on the current line.
func readUntilByte(buf *parsebuf.Buffer, stop byte) (string, error) {
	var b strings.Builder
	for {
		c, err := buf.Peek()
		if err != nil {
			return "", err
		}
		if c == stop {
			return b.String(), nil
		}
		b.WriteByte(c)
		if err := buf.Advance(1); err != nil {
			return "", err
		}
	}
}

func expectByte(buf *parsebuf.Buffer, want byte) error {
	c, err := buf.Peek()
	if err != nil {
		return err
	}
	if c != want {
		return &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected '" + string(want) + "'"}
	}
	return buf.Advance(1)
}
