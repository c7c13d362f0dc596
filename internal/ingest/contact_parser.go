package ingest

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{6,}\d`)
)

// splitContactBlob decomposes a free-text contact field into name, email
// and phone. Tie-breaks are fixed: the first segment that is neither an
// email nor a phone pattern becomes the name; the first email and phone
// match anywhere in the blob win, later matches never override.
func splitContactBlob(blob string) (name, email, phone string) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return "", "", ""
	}

	email = emailRegex.FindString(blob)
	phone = phoneRegex.FindString(blob)

	for _, seg := range splitContactSegments(blob) {
		seg = cleanText(seg)
		if seg == "" {
			continue
		}
		if emailRegex.MatchString(seg) || phoneRegex.MatchString(seg) {
			continue
		}
		name = seg
		break
	}

	return name, email, strings.TrimSpace(phone)
}

// splitContactSegments breaks a contact blob on the separators the feed
// actually uses: newlines, <br> tags, commas and semicolons.
func splitContactSegments(blob string) []string {
	replacer := strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"\r\n", "\n", "\r", "\n",
		",", "\n", ";", "\n",
	)
	return strings.Split(replacer.Replace(blob), "\n")
}

// countryDigitLengths lists acceptable national-number lengths for the
// international phone heuristic, keyed by calling code.
var countryDigitLengths = map[string][]int{
	"1":  {10},
	"44": {10},
	"49": {10, 11},
	"33": {9},
	"61": {9},
	"81": {10},
	"52": {10},
	"91": {10},
}

// formatPhone normalizes a phone string. NANP 10/11-digit numbers become
// "(XXX) XXX-XXXX"; numbers with a leading + are checked against the
// known-country digit-length table; everything else comes back unchanged
// and flagged invalid.
func formatPhone(raw string) (formatted string, valid bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	digits := digitsOnly(raw)
	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:]), true
	case len(digits) == 11 && digits[0] == '1':
		return fmt.Sprintf("(%s) %s-%s", digits[1:4], digits[4:7], digits[7:]), true
	}

	if strings.HasPrefix(raw, "+") {
		for code, lengths := range countryDigitLengths {
			if !strings.HasPrefix(digits, code) {
				continue
			}
			national := len(digits) - len(code)
			for _, want := range lengths {
				if national == want {
					return "+" + digits, true
				}
			}
		}
	}

	return raw, false
}

// nameFromEmail derives a display name from the local part of an email
// address ("jane.doe@nih.gov" -> "Jane Doe").
func nameFromEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return ""
	}
	local := email[:at]
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})

	var words []string
	for _, p := range parts {
		if p == "" || digitsOnly(p) == p {
			continue
		}
		words = append(words, strings.ToUpper(p[:1])+strings.ToLower(p[1:]))
	}
	return strings.Join(words, " ")
}

// looksLikeContact classifies input as short/contact-like (vs long prose)
// for instruction-template selection.
func looksLikeContact(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if len(text) > 280 {
		return false
	}
	if emailRegex.MatchString(text) || phoneRegex.MatchString(text) {
		return true
	}
	// Name-like capitalization: two or more capitalized words up front.
	capPair := regexp.MustCompile(`^[A-Z][a-z]+\s+[A-Z][a-z]+`)
	return capPair.MatchString(text)
}
