package util

import (
	"errors"
	"path"
	"strings"
)

const maxFileNameLen = 200

// ErrInvalidFileName is returned when nothing usable survives sanitizing.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName strips directory components and replaces every character
// outside [A-Za-z0-9._-] with an underscore.
func SanitizeFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "\\", "/")
	s = path.Base(s)
	if s == "." || s == "/" || s == ".." {
		return "", ErrInvalidFileName
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if strings.Trim(out, "_") == "" {
		return "", ErrInvalidFileName
	}
	if len(out) > maxFileNameLen {
		ext := path.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = out[:maxFileNameLen-len(ext)] + ext
	}
	return out, nil
}
