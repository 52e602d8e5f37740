package macroparser

import (
	"strings"

	"github.com/midi-macros/midi-macros/internal/parsebuf"
)

// parseScriptBody reads the script text after the arrow: either the rest
// of the current line, or a multi-line block opened by '{' at end of
// line. Every non-blank content line of a block must be indented with
// one literal tab (stripped from the stored text); blank lines
// contribute empty strings; a '}' alone on an unindented line closes the
// block.
func parseScriptBody(buf *parsebuf.Buffer) (string, error) {
	c, err := buf.Peek()
	if err != nil {
		return "", err
	}
	if c != '{' {
		return strings.TrimSpace(buf.ReadToEndOfLine()), nil
	}
	if err := buf.Advance(1); err != nil {
		return "", err
	}
	buf.SkipWhitespace()
	buf.SkipComment()
	if !buf.AtEOL() {
		return "", &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected end of line after '{'"}
	}
	var lines []string
	for {
		if err := buf.Newline(); err != nil {
			return "", err
		}
		line := buf.CurrentLineText()
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "}" && !strings.HasPrefix(line, "\t") {
			buf.ReadToEndOfLine()
			return strings.Join(lines, "\n"), nil
		}
		if trimmed == "" {
			lines = append(lines, "")
			buf.ReadToEndOfLine()
			continue
		}
		if line[0] != '\t' {
			return "", &parsebuf.Error{Pos: buf.Position(), Line: line, Message: "incorrect indentation"}
		}
		lines = append(lines, line[1:])
		buf.ReadToEndOfLine()
	}
}
