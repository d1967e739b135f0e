// Package identity provides the textual user tag embedded in operator-facing
// relay messages and the validation rules for content tokens.
package identity

import (
	"regexp"
	"strconv"
	"strings"
)

// TagPrefix precedes the numeric user id in an identity tag.
const TagPrefix = "#ID"

var (
	tagPattern   = regexp.MustCompile(`#ID(\d{1,20})\b`)
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Tag returns the identity tag for userID, e.g. "#ID12345".
func Tag(userID int64) string {
	return TagPrefix + strconv.FormatInt(userID, 10)
}

// ParseTag extracts the user id from the last identity tag in text.
// The last tag wins so that quoted headers prefixed by operator notes
// still resolve to the original sender.
func ParseTag(text string) (int64, bool) {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(matches[len(matches)-1][1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ValidToken reports whether s can be a content token. Deep-link payloads
// are limited to 64 characters of [A-Za-z0-9_-].
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// SanitizeToken trims whitespace and returns "" for anything that is not a
// valid token.
func SanitizeToken(s string) string {
	s = strings.TrimSpace(s)
	if !ValidToken(s) {
		return ""
	}
	return s
}
