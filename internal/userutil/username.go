// Package userutil derives the per-user suffix shared by the command pipe and
// the single-instance lock.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

var currentUserFn = user.Current

// CurrentName returns the login name from USERNAME, then USER, then the
// account database. It is "" when none is available.
func CurrentName() string {
	for _, key := range []string{"USERNAME", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	if current, err := currentUserFn(); err == nil {
		return strings.TrimSpace(current.Username)
	}
	return ""
}

// SanitizeUsername maps value onto the characters allowed in pipe and lock
// names. Blank values become "unknown".
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidNameChars.ReplaceAllString(value, "_")
}

// Suffix is SanitizeUsername(CurrentName()).
func Suffix() string {
	return SanitizeUsername(CurrentName())
}
