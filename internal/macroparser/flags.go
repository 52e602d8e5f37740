package macroparser

import (
	"strings"

	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/parsebuf"
	"github.com/midi-macros/midi-macros/internal/predicate"
)

// maybeParseInterpreter reads an optional '(' parenthesizedString | freeText ')'
// interpreter specifier following the argument definition.
func maybeParseInterpreter(buf *parsebuf.Buffer) (string, error) {
	buf.SkipWhitespace()
	c, err := buf.Peek()
	if err != nil || c != '(' {
		return "", nil
	}
	if err := buf.Advance(1); err != nil {
		return "", err
	}
	buf.SkipWhitespace()
	c, err = buf.Peek()
	if err != nil {
		return "", err
	}
	if c == '"' || c == '\'' {
		s, err := readQuotedString(buf)
		if err != nil {
			return "", err
		}
		buf.SkipWhitespace()
		if err := expectByte(buf, ')'); err != nil {
			return "", err
		}
		return s, nil
	}
	start := buf.Position().Col
	line := buf.CurrentLineText()
	end := start
	for end < len(line) && line[end] != ')' {
		end++
	}
	if end >= len(line) {
		return "", &parsebuf.Error{Pos: buf.Position(), Line: line, Message: "unterminated interpreter specifier"}
	}
	text := strings.TrimSpace(line[start:end])
	if err := buf.Advance(end - start); err != nil {
		return "", err
	}
	if err := expectByte(buf, ')'); err != nil {
		return "", err
	}
	return text, nil
}

// maybeParseFlags reads an optional '[' flag ('|' flag)* ']' list.
func maybeParseFlags(buf *parsebuf.Buffer) (macro.ScriptFlag, []string, *macro.FormatExpr, error) {
	buf.SkipWhitespace()
	c, err := buf.Peek()
	if err != nil || c != '[' {
		return 0, nil, nil, nil
	}
	if err := buf.Advance(1); err != nil {
		return 0, nil, nil, err
	}
	var flags macro.ScriptFlag
	var locks []string
	var invocationFormat *macro.FormatExpr
	for {
		buf.SkipWhitespace()
		name := readIdentifier(buf)
		if name == "" {
			return 0, nil, nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected a flag name"}
		}
		c, err := buf.Peek()
		if err != nil {
			return 0, nil, nil, err
		}
		if c == '=' {
			if err := buf.Advance(1); err != nil {
				return 0, nil, nil, err
			}
			switch name {
			case "LOCK":
				locks, err = parseLockList(buf)
				if err != nil {
					return 0, nil, nil, err
				}
			case "INVOCATION_FORMAT":
				invocationFormat, err = parseInvocationFormat(buf)
				if err != nil {
					return 0, nil, nil, err
				}
			default:
				return 0, nil, nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "unknown valued flag: " + name}
			}
		} else {
			bit, ok := macro.FlagByName(name)
			if !ok {
				return 0, nil, nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "unknown flag: " + name}
			}
			flags |= bit
		}
		buf.SkipWhitespace()
		c, err = buf.Peek()
		if err != nil {
			return 0, nil, nil, err
		}
		if c == '|' {
			if err := buf.Advance(1); err != nil {
				return 0, nil, nil, err
			}
			continue
		}
		if c == ']' {
			if err := buf.Advance(1); err != nil {
				return 0, nil, nil, err
			}
			break
		}
		return 0, nil, nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected '|' or ']'"}
	}
	return flags, locks, invocationFormat, nil
}

func parseLockList(buf *parsebuf.Buffer) ([]string, error) {
	var names []string
	for {
		name := readIdentifier(buf)
		if name == "" {
			return nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected a lock name"}
		}
		names = append(names, name)
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
		return names, nil
	}
}

// parseInvocationFormat reads an f-string value whose `{expr}` segments
// are compiled as predicate-language sub-expressions, and whose `{{`/`}}`
// are literal braces.
func parseInvocationFormat(buf *parsebuf.Buffer) (*macro.FormatExpr, error) {
	buf.SkipWhitespace()
	c, err := buf.Peek()
	if err != nil {
		return nil, err
	}
	if c == 'f' {
		if err := buf.Advance(1); err != nil {
			return nil, err
		}
	}
	raw, err := readQuotedString(buf)
	if err != nil {
		return nil, err
	}
	return compileFormatExpr(raw)
}

func compileFormatExpr(raw string) (*macro.FormatExpr, error) {
	var parts []macro.FormatExprPart
	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			parts = append(parts, macro.FormatExprPart{Literal: literal.String()})
			literal.Reset()
		}
	}
	i := 0
	for i < len(raw) {
		switch raw[i] {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				literal.WriteByte('{')
				i += 2
				continue
			}
			flush()
			depth := 1
			start := i + 1
			j := start
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if depth > 0 {
					j++
				}
			}
			if depth != 0 {
				return nil, &parsebuf.Error{Message: "unterminated '{' in INVOCATION_FORMAT"}
			}
			expr, err := predicate.Compile(raw[start:j])
			if err != nil {
				return nil, err
			}
			parts = append(parts, macro.FormatExprPart{Expr: expr})
			i = j + 1
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				literal.WriteByte('}')
				i += 2
				continue
			}
			literal.WriteByte('}')
			i++
		default:
			literal.WriteByte(raw[i])
			i++
		}
	}
	flush()
	return &macro.FormatExpr{Parts: parts}, nil
}

// parseArrow consumes the '->' or '→' arrow operator.
func parseArrow(buf *parsebuf.Buffer) error {
	c, err := buf.Peek()
	if err != nil {
		return err
	}
	if c == 0xe2 { // UTF-8 lead byte of U+2192 '→'
		return buf.Advance(3)
	}
	if c != '-' {
		return &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected '->' or '→'"}
	}
	if err := buf.Advance(1); err != nil {
		return err
	}
	if err := expectByte(buf, '>'); err != nil {
		return err
	}
	return nil
}
