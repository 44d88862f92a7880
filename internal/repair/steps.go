package repair

import (
	"regexp"
	"strings"
)

// Step is one pure text transform in the repair pipeline
type Step struct {
	Name  string
	Apply func(string) string
}

var (
	jsonFence = regexp.MustCompile("(?s)```[ \t]*(?i:json)[ \t]*\r?\n?(.*?)(?:```|$)")
	anyFence  = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n?(.*?)(?:```|$)")
)

// StripControlAndUnwrap removes BOM and non-whitespace control characters, unwraps
// a fenced code block (a json fence first, else any fence) and trims surrounding
// prose to the outermost object or array
func StripControlAndUnwrap(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\uFEFF':
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F:
		case r >= 0x80 && r <= 0x9F:
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()

	if m := jsonFence.FindStringSubmatch(out); m != nil {
		out = m[1]
	} else if m := anyFence.FindStringSubmatch(out); m != nil {
		out = m[1]
	}

	return trimToValue(strings.TrimSpace(out))
}

// trimToValue cuts leading and trailing prose around the first object or array
func trimToValue(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

// EscapeControlInStrings escapes literal newline, carriage return and tab
// characters inside string literals, leaving structural whitespace alone
func EscapeControlInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeInnerQuotes treats a quote inside a string as its terminator only when
// the next non-whitespace character is structural (, : } ] or end of input);
// any other quote is rewritten as \". Raw newline, carriage return and tab
// characters inside the strings it rebuilds are escaped too.
func EscapeInnerQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			if isStructural(nextNonSpace(s, i+1)) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeStrayBackslashes doubles backslashes inside strings that do not begin a
// valid JSON escape sequence
func EscapeStrayBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = false
			b.WriteByte(c)
		case '\\':
			if i+1 < len(s) && validEscape(s, i+1) {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// RemoveTrailingCommas drops commas that directly precede a closing } or ]
func RemoveTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = true
		case ',':
			if next := nextNonSpace(s, i+1); next == '}' || next == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// nextNonSpace returns the next non-whitespace byte at or after i, or 0 at end of input
func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

func isStructural(c byte) bool {
	switch c {
	case ',', ':', '}', ']', 0:
		return true
	default:
		return false
	}
}

func validEscape(s string, i int) bool {
	switch s[i] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		if i+5 > len(s) {
			return false
		}
		for _, h := range s[i+1 : i+5] {
			if !strings.ContainsRune("0123456789abcdefABCDEF", h) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
