package anonymizer

import (
	"strings"
	"unicode/utf8"
)

// maskValue obfuscates a string while retaining its gross shape. Pure
// function of the input, independent of the seed. Email-shaped values keep
// their @ and top-level suffix: alice@work.com becomes a***@w***.com.
func maskValue(s string) string {
	if local, domain, ok := splitEmail(s); ok {
		if dot := strings.LastIndexByte(domain, '.'); dot > 0 && dot < len(domain)-1 {
			return maskPart(local) + "@" + maskPart(domain[:dot]) + domain[dot:]
		}
	}
	return maskPlain(s)
}

func splitEmail(s string) (local string, domain string, ok bool) {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || at != strings.LastIndexByte(s, '@') {
		return "", "", false
	}
	return s[:at], s[at+1:], true
}

func maskPart(part string) string {
	if utf8.RuneCountInString(part) <= 1 {
		return "*"
	}
	r, _ := utf8.DecodeRuneInString(part)
	return string(r) + "***"
}

// maskPlain keeps the first rune and a star run whose width encodes a coarse
// length class, so masked free text still hints at short vs long content.
func maskPlain(s string) string {
	n := utf8.RuneCountInString(s)
	if n <= 1 {
		return "*"
	}
	r, _ := utf8.DecodeRuneInString(s)
	if n < 16 {
		return string(r) + "***"
	}
	return string(r) + "*****"
}
