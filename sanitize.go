package main

import (
	"regexp"
	"strings"
)

// videoIDPattern is a strict allow-list: exactly 11 characters from the
// YouTube identifier alphabet. Shell metacharacters and whitespace are
// rejected because they fall outside the class, not via a deny-list.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// sanitizeVideoID validates untrusted input before it can reach a
// subprocess command line. The returned value is the only form of the
// identifier ever interpolated into an argv.
func sanitizeVideoID(raw, lang string) (string, error) {
	id := strings.TrimSpace(raw)
	if !videoIDPattern.MatchString(id) {
		return "", errInvalidIdentifier(lang, raw)
	}
	return id, nil
}
