// Package phone extracts and classifies the identity tokens that name a
// WhatsApp export: the phone number or contact name embedded in an export's
// filename, and numbers found inside transcript text.
package phone

import (
	"regexp"
	"strings"
	"unicode"
)

// ExportPrefix is the leading text WhatsApp uses when naming exports.
const ExportPrefix = "WhatsApp Chat"

// filenameRe captures the token after "WhatsApp Chat - ", ending at a .zip
// extension, a path separator, or the end of the string. Other extensions
// are part of the token; callers strip them first.
var filenameRe = regexp.MustCompile(`WhatsApp Chat - (.+?)(?:\.zip|$|/)`)

// contentRe matches the first phone-number-like run in free text.
var contentRe = regexp.MustCompile(`\+?\d{1,4}[\s-]?\d{3,4}[\s-]?\d{3,4}[\s-]?\d{3,4}`)

// ExtractFromFilename returns the identity token embedded in an export
// filename or path, or "" when the name does not follow the export pattern.
// The token may be a phone number or a contact name.
func ExtractFromFilename(name string) string {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ExtractFromContent returns the first phone-number-like substring in text,
// or "" when none is present.
func ExtractFromContent(text string) string {
	return strings.TrimSpace(contentRe.FindString(text))
}

// IsPhoneNumber reports whether token looks like a phone number rather than
// a contact name. Spaces, dashes, parentheses and plus signs are ignored;
// any letter rules it out; otherwise more than 70% of the remaining
// characters must be digits.
func IsPhoneNumber(token string) bool {
	if token == "" {
		return false
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '(', ')', '+':
			return -1
		}
		return r
	}, token)
	if cleaned == "" {
		return false
	}

	allDigits := true
	for _, r := range cleaned {
		if unicode.IsLetter(r) {
			return false
		}
		if !isASCIIDigit(r) {
			allDigits = false
		}
	}
	if allDigits {
		return true
	}

	var digits, total int
	for _, r := range cleaned {
		total++
		if isASCIIDigit(r) {
			digits++
		}
	}
	return float64(digits)/float64(total) > 0.7
}

// Validate reports whether a user-entered phone number is acceptable:
// at least three characters once whitespace is removed.
func Validate(token string) bool {
	n := 0
	for _, r := range token {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n >= 3
}

// Normalize converts a phone number to E.164 form for matching. Numbers
// carrying a "+" keep their country code, "00" prefixes are treated as
// international, and a "(0)" trunk marker after the country code is
// dropped. Country-ambiguous local numbers return "".
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	hasPlus := strings.HasPrefix(raw, "+")
	if hasPlus {
		raw = strings.ReplaceAll(raw, "(0)", "")
	}

	digits := strings.Map(func(r rune) rune {
		if isASCIIDigit(r) {
			return r
		}
		return -1
	}, raw)
	if len(digits) < 7 {
		return ""
	}

	switch {
	case hasPlus:
		return "+" + digits
	case strings.HasPrefix(digits, "00") && len(digits) > 9:
		return "+" + digits[2:]
	default:
		return ""
	}
}

// Digits returns only the decimal digits of s. Used to compare numbers that
// were written with different punctuation.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if isASCIIDigit(r) {
			return r
		}
		return -1
	}, s)
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
