// Package slug turns free-form category labels into account-name keys and
// matches them against curated category codes.
package slug

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLen bounds a slug.
const MaxLen = 40

var reSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,39}$`)

// IsSlug reports whether s is already a valid slug.
func IsSlug(s string) bool { return reSlug.MatchString(s) }

// Slugify lowercases s and joins each run of characters outside [a-z0-9]
// into a single '_'. Leading and trailing separators are dropped and the
// result is cut to MaxLen without leaving a trailing '_'.
func Slugify(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			if b.Len() >= MaxLen {
				break
			}
			continue
		}
		pending = true
	}
	out := b.String()
	if len(out) > MaxLen {
		out = out[:MaxLen]
	}
	return strings.TrimRight(out, "_")
}

const upperhex = "0123456789ABCDEF"

// keepInKey reports whether r is written to a key as is: '_', digits, and
// letters that are lowercase or have no case.
func keepInKey(r rune) bool {
	if r == '_' || unicode.IsDigit(r) {
		return true
	}
	return unicode.IsLetter(r) && !unicode.IsUpper(r) && !unicode.IsTitle(r)
}

// Key encodes a free-form label into an account-name component. Characters
// accepted by keepInKey are kept, every other byte is written as %XX.
// Distinct labels always give distinct keys and ParseKey reverses Key.
func Key(label string) string {
	var b strings.Builder
	for i := 0; i < len(label); {
		r, size := utf8.DecodeRuneInString(label[i:])
		if r != utf8.RuneError && keepInKey(r) {
			b.WriteString(label[i : i+size])
		} else {
			for j := i; j < i+size; j++ {
				c := label[j]
				b.WriteByte('%')
				b.WriteByte(upperhex[c>>4])
				b.WriteByte(upperhex[c&0x0f])
			}
		}
		i += size
	}
	return b.String()
}

// ParseKey decodes a key produced by Key. Only the canonical encoding of a
// label is accepted.
func ParseKey(key string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		if key[i] != '%' {
			b.WriteByte(key[i])
			continue
		}
		if i+2 >= len(key) {
			return "", fmt.Errorf("slug: truncated escape in %q", key)
		}
		v, err := strconv.ParseUint(key[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("slug: bad escape in %q", key)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	label := b.String()
	if label == "" || Key(label) != key {
		return "", fmt.Errorf("slug: %q is not a canonical key", key)
	}
	return label, nil
}
