package instrument

import "strings"

// scanState carries lexical state across lines, so a /* comment opened on
// one line keeps suppressing structure until it closes.
type scanState struct {
	inBlockComment bool
}

// scanned is one source line in the three views the rewriter needs.
type scanned struct {
	// matchable has comments removed but string/char literals intact, so
	// declaration patterns can still see initializer literals.
	matchable string
	// structural additionally blanks literal contents, so braces inside
	// quotes are never counted as scope changes.
	structural string
	opens      int
	comment    bool // the whole line is comment
}

// scan classifies one line. Quotes and // must not be mistaken for
// structure, and a brace inside a char literal like '{' must not change
// depth.
func (st *scanState) scan(line string) scanned {
	var match, structural strings.Builder
	inStr, inChar, escaped := false, false, false
	hadCode := false

	for i := 0; i < len(line); i++ {
		c := line[i]

		if st.inBlockComment {
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				st.inBlockComment = false
				i++
			}
			continue
		}

		if inStr || inChar {
			match.WriteByte(c)
			if escaped {
				escaped = false
				structural.WriteByte(' ')
				continue
			}
			switch {
			case c == '\\':
				escaped = true
				structural.WriteByte(' ')
			case inStr && c == '"':
				inStr = false
				structural.WriteByte(c)
			case inChar && c == '\'':
				inChar = false
				structural.WriteByte(c)
			default:
				structural.WriteByte(' ')
			}
			continue
		}

		switch c {
		case '/':
			if i+1 < len(line) {
				if line[i+1] == '/' {
					i = len(line) // line comment: drop the rest
					continue
				}
				if line[i+1] == '*' {
					st.inBlockComment = true
					i++
					continue
				}
			}
		case '"':
			inStr = true
		case '\'':
			inChar = true
		}

		match.WriteByte(c)
		structural.WriteByte(c)
		if c != ' ' && c != '\t' {
			hadCode = true
		}
	}

	s := scanned{
		matchable:  match.String(),
		structural: structural.String(),
	}
	s.opens = strings.Count(s.structural, "{")
	s.comment = !hadCode && strings.TrimSpace(line) != ""
	return s
}

// splitTopLevel splits s on sep at paren/bracket depth zero. Used to take
// a for-header apart without being confused by commas or semicolons inside
// nested calls.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	inStr, inChar, escaped := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr || inChar {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if inStr && c == '"' {
				inStr = false
			} else if inChar && c == '\'' {
				inChar = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '\'':
			inChar = true
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
