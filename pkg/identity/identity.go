// Package identity derives the canonical form and content key of a vocabulary surface.
//
// The content key is persisted in every lexeme table and shared with external
// producers. Changing Normalize or ContentKey fragments identity across old and
// new rows and must be handled as a schema migration.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidArgument is returned for inputs that cannot produce an identity.
var ErrInvalidArgument = errors.New("invalid argument")

var reWhitespace = regexp.MustCompile(`\s+`)

// Normalize trims the surface, applies NFC and collapses whitespace runs to a single space.
func Normalize(surface string) string {
	s := strings.TrimSpace(surface)
	s = norm.NFC.String(s)
	return reWhitespace.ReplaceAllString(s, " ")
}

// ContentKey returns the hex SHA-256 of normalizedSurface + "::" + ruleID.
func ContentKey(normalizedSurface, ruleID string) (string, error) {
	rid := strings.TrimSpace(ruleID)
	if rid == "" {
		return "", fmt.Errorf("rule_id must be non-empty: %w", ErrInvalidArgument)
	}
	sum := sha256.Sum256([]byte(normalizedSurface + "::" + rid))
	return hex.EncodeToString(sum[:]), nil
}

// IsJapanese reports whether s contains at least one Han, Hiragana or Katakana rune.
func IsJapanese(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

// IsLatin reports whether s contains a Latin letter and no Japanese script.
func IsLatin(s string) bool {
	if IsJapanese(s) {
		return false
	}
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}
