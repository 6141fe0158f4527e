package data

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrNoBlock = errors.New("no structured block found in answer")

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// SanitizeAnswer returns the first parseable JSON object in a model answer.
// Fenced blocks are tried first, then every balanced {...} span in the text.
func SanitizeAnswer(ans string) (string, error) {
	for _, m := range fencedBlock.FindAllStringSubmatch(ans, -1) {
		body := strings.TrimSpace(m[1])
		if isObject(body) {
			return body, nil
		}
		if obj, ok := firstObject(body); ok {
			return obj, nil
		}
	}
	if obj, ok := firstObject(ans); ok {
		return obj, nil
	}
	return "", ErrNoBlock
}

func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// firstObject scans for balanced braces, ignoring braces inside JSON strings.
func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			if candidate := s[start : end+1]; json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
