package util

import (
	"errors"
	"strings"
	"unicode"
)

const maxFileNameRunes = 200

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName turns a client-supplied document name into a single safe
// path segment. Separators become underscores, control characters are
// dropped and overly long names keep their extension.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidFileName
	}
	return truncateKeepExt(s, maxFileNameRunes), nil
}

func truncateKeepExt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	var ext []rune
	if i := strings.LastIndexByte(s, '.'); i > 0 && len(s)-i <= 10 {
		ext = []rune(s[i:])
	}
	return string(runes[:limit-len(ext)]) + string(ext)
}
