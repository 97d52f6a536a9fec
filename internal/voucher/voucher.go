// Package voucher extracts recharge-card numbers from user input,
// either a bare code or a pasted SMS in Arabic.
package voucher

import (
	"regexp"
	"strings"
)

var cardNumberPattern = regexp.MustCompile(`\b(\d{14,15})\b`)

const secretKeyword = "الرقم السري"

// ExtractCardNumber finds a 14-15 digit recharge card number in the
// text. A direct digit run wins; otherwise the text is scanned for the
// Arabic "secret number" keyword and the second line after it is
// checked. Returns "" when nothing matches.
func ExtractCardNumber(text string) string {
	if text == "" {
		return ""
	}

	if match := cardNumberPattern.FindStringSubmatch(text); match != nil {
		return match[1]
	}

	// Vendors misspell the keyword as "الرقم الساري" in some SMS templates
	text = strings.ReplaceAll(text, "الرقم الساري", secretKeyword)

	_, after, found := strings.Cut(text, secretKeyword)
	if !found {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(after), "\n")
	if len(lines) < 2 {
		return ""
	}
	if match := cardNumberPattern.FindStringSubmatch(lines[1]); match != nil {
		return match[1]
	}
	return ""
}
