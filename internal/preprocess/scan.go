package preprocess

import (
	"strings"
	"unicode/utf8"
)

func decodeRune(s string) (rune, int) {
	return utf8.DecodeRuneInString(s)
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

// matchIdent returns the identifier starting at pos, or "" if none.
func matchIdent(s string, pos int) string {
	i := pos
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if i == pos {
			if !isIdentStart(r) {
				return ""
			}
		} else if !isIdentPart(r) {
			break
		}
		i += size
	}
	return s[pos:i]
}

// matchKeyword reports whether s has word exactly at pos, followed by a
// non-identifier rune (or end of string).
func matchKeyword(s string, pos int, word string) bool {
	if !strings.HasPrefix(s[pos:], word) {
		return false
	}
	after := pos + len(word)
	if after >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[after:])
	return !isIdentPart(r)
}

func skipSpaces(s string, pos int) int {
	for pos < len(s) {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if r != ' ' && r != '\t' {
			break
		}
		pos += size
	}
	return pos
}

// findMatchingDelim returns the index of the close rune matching the
// open rune at s[openPos], respecting nesting and skipping over quoted
// string literals. Returns -1 if unterminated.
func findMatchingDelim(s string, openPos int, open, closeR byte) int {
	depth := 0
	i := openPos
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			end := skipStringLiteral(s, i)
			if end == -1 {
				return -1
			}
			i = end
			continue
		case c == open:
			depth++
		case c == closeR:
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

// skipStringLiteral returns the index just past the string literal
// starting at s[pos] (which must be a quote char), or -1 if unterminated.
func skipStringLiteral(s string, pos int) int {
	quote := s[pos]
	i := pos + 1
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		}
		i++
	}
	return -1
}

// findStatementEnd returns the index of the next unescaped newline or
// semicolon at bracket/brace/paren/string depth 0, starting from pos,
// or len(s) if none is found.
func findStatementEnd(s string, pos int) int {
	depth := 0
	i := pos
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			end := skipStringLiteral(s, i)
			if end == -1 {
				return len(s)
			}
			i = end
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case depth == 0 && (c == '\n' || c == ';'):
			return i
		}
		i++
	}
	return len(s)
}

var blockOpeners = []string{"function", "if", "for", "while", "do"}

// findMatchingEnd locates the "end" keyword that closes the block whose
// body starts at pos, counting nested block openers. Returns the start
// and end-of-match index of that "end" keyword, or -1,-1 if none found.
func findMatchingEnd(s string, pos int) (int, int) {
	depth := 1
	i := pos
	for i < len(s) {
		c := s[i]
		if c == '\'' || c == '"' {
			end := skipStringLiteral(s, i)
			if end == -1 {
				return -1, -1
			}
			i = end
			continue
		}
		if c == '-' && strings.HasPrefix(s[i:], "--") {
			if _, end, ok := matchCommentAt(s, i); ok {
				i = end
				continue
			}
		}
		if isIdentStart(rune(c)) || c >= 0x80 {
			word := matchIdent(s, i)
			if word != "" {
				switch word {
				case "end":
					depth--
					if depth == 0 {
						return i, i + 3
					}
				default:
					for _, opener := range blockOpeners {
						if word == opener {
							depth++
							break
						}
					}
				}
				i += len(word)
				continue
			}
		}
		i++
	}
	return -1, -1
}

// splitTopLevel splits s on sep at paren/bracket/brace/string depth 0.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			end := skipStringLiteral(s, i)
			if end == -1 {
				i = len(s)
				continue
			}
			i = end
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == sep:
			parts = append(parts, s[start:i])
			i++
			start = i
			continue
		}
		i++
	}
	parts = append(parts, s[start:])
	return parts
}

func trimArgs(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// parseDecoratorArgs splits a comma list of positional or key:value
// decorator arguments.
func parseDecoratorArgs(content string) []Arg {
	var args []Arg
	for _, item := range splitTopLevel(content, ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if idx := strings.IndexByte(item, ':'); idx != -1 {
			args = append(args, Arg{Key: strings.TrimSpace(item[:idx]), Value: strings.TrimSpace(item[idx+1:])})
		} else {
			args = append(args, Arg{Value: item})
		}
	}
	return args
}

// parseAccess splits a matched access-chain raw token (e.g. "hp",
// "hp.current", "inventory['sword']", "obj:method(") into its symbol
// name, access type, and member key.
func parseAccess(raw string) (sym string, at AccessType, key string) {
	if idx := strings.IndexByte(raw, ':'); idx != -1 {
		return raw[:idx], AccessColon, strings.TrimSuffix(raw[idx+1:], "(")
	}
	if idx := strings.IndexByte(raw, '['); idx != -1 {
		end := strings.LastIndexByte(raw, ']')
		k := raw[idx+1 : end]
		return raw[:idx], AccessBracket, strings.Trim(k, `'"`)
	}
	if idx := strings.IndexByte(raw, '.'); idx != -1 {
		return raw[:idx], AccessDot, raw[idx+1:]
	}
	return raw, AccessDirect, ""
}

// matchAccessChain matches an identifier plus at most one of a dot
// member, a bracketed key, or a colon method call opener, starting at
// pos. Returns the matched text and its end index.
func matchAccessChain(s string, pos int) (string, int) {
	name := matchIdent(s, pos)
	if name == "" {
		return "", pos
	}
	end := pos + len(name)
	if end >= len(s) {
		return name, end
	}
	switch s[end] {
	case '.':
		member := matchIdent(s, end+1)
		if member == "" {
			return name, end
		}
		return s[pos : end+1+len(member)], end + 1 + len(member)
	case '[':
		close := findMatchingDelim(s, end, '[', ']')
		if close == -1 {
			return name, end
		}
		return s[pos : close+1], close + 1
	case ':':
		member := matchIdent(s, end+1)
		if member == "" {
			return name, end
		}
		afterMember := end + 1 + len(member)
		if afterMember < len(s) && s[afterMember] == '(' {
			return s[pos : afterMember+1], afterMember + 1
		}
		return name, end
	}
	return name, end
}
