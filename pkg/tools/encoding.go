package tools

import (
	"fmt"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"strings"
	"unicode/utf8"
)

const autoEncoding = "auto"

// decode converts raw file bytes to text. An empty or "auto" name detects the
// encoding from a byte order mark, then UTF-8 validity, then content sniffing.
func decode(raw []byte, name string) (string, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == autoEncoding {
		e, detected, certain := charset.DetermineEncoding(raw, "text/plain")
		switch {
		case certain:
			name = detected
		case utf8.Valid(raw):
			return string(raw), "utf-8", nil
		default:
			text, _, err := transform.Bytes(e.NewDecoder(), raw)
			if err != nil {
				return "", "", fmt.Errorf("decode %s: %w", detected, err)
			}
			return string(text), detected, nil
		}
	}

	e, canonical := charset.Lookup(name)
	if e == nil {
		return "", "", fmt.Errorf("unknown encoding %q", name)
	}
	text, _, err := transform.Bytes(unicode.BOMOverride(e.NewDecoder()), raw)
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", canonical, err)
	}
	return string(text), canonical, nil
}

func encode(text, name string) ([]byte, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == autoEncoding || name == "utf-8" || name == "utf8" {
		return []byte(text), "utf-8", nil
	}
	e, canonical := charset.Lookup(name)
	if e == nil {
		return nil, "", fmt.Errorf("unknown encoding %q", name)
	}
	out, _, err := transform.Bytes(e.NewEncoder(), []byte(text))
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", canonical, err)
	}
	return out, canonical, nil
}
