// Package uri provides URL escaping, resolution and sanitizing for
// untrusted feed content.
package uri

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Characters that survive escaping untouched, beyond alphanumerics.
// This is the URI reserved + unreserved set; '%' is handled separately so
// that valid percent octets are preserved.
const safeChars = "-_.!~*'();/?:@&=+$,[]#"

// extra characters escaped by Sanitize on top of the standard set
const sanitizeUnsafe = "\"'&"

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// escape percent-encodes everything outside the safe set. With
// preserveOctets existing valid %XX sequences are kept as-is; without it a
// literal '%' is always encoded, which makes unescape-then-escape an
// involution (the basis of Sanitize's idempotence).
func escape(s string, unsafe string, preserveOctets bool) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && preserveOctets && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]):
			// already percent-encoded octet, keep as-is
			b.WriteByte('%')
			b.WriteByte(s[i+1])
			b.WriteByte(s[i+2])
			i += 2
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			b.WriteByte(c)
		case strings.IndexByte(safeChars, c) >= 0 && strings.IndexByte(unsafe, c) < 0:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}

	return b.String()
}

// unescape decodes percent octets. Malformed sequences are kept literally.
func unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
			b.WriteByte(hexValue(s[i+1])<<4 | hexValue(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(c)
	}

	return b.String()
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// Escape percent-encodes characters not allowed in URIs while preserving
// existing percent octets.
func Escape(s string) string {
	return escape(s, "", true)
}

// BuildURL escapes rel and resolves it against base. An empty base returns
// the escaped rel unchanged.
func BuildURL(rel, base string) string {
	escaped := Escape(rel)
	if base == "" {
		return escaped
	}

	baseURL, err := url.Parse(Escape(base))
	if err != nil {
		return escaped
	}
	relURL, err := url.Parse(escaped)
	if err != nil {
		return escaped
	}

	return baseURL.ResolveReference(relURL).String()
}

// Sanitize escapes dangerous characters (quotes, spaces, ampersands) in an
// untrusted URL. As we do not know whether the URL is already escaped it is
// unescaped and re-escaped; when the unescaped form is not valid UTF-8 the
// input is returned unchanged so that foreign-charset percent octets
// survive. Sanitize is idempotent.
func Sanitize(s string) string {
	plain := unescape(s)
	if !utf8.ValidString(plain) {
		return s
	}
	return escape(plain, sanitizeUnsafe, false)
}
