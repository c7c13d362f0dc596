package ai

import (
	"fmt"
	"strings"
)

// ContactFields is the parsed form of the provider's constrained contact
// response: three optional tagged lines. The tags record provenance
// (provided vs inferred-from-email) and phone validity (valid/invalid,
// given/assumed).
type ContactFields struct {
	Name        string
	NameSource  string // "provided" | "inferred-from-email"
	Email       string
	Phone       string
	PhoneValid  *bool
	PhoneSource string // "given" | "assumed"
}

// DescriptionPrompt builds the long-form prose cleaning instruction.
func DescriptionPrompt(text string) string {
	return fmt.Sprintf(`Clean the following grant description. Remove HTML artifacts, boilerplate navigation text, and redundant whitespace. Preserve all substantive content. Respond with ONLY the cleaned text, no preamble.

Description:
%s`, text)
}

// ShortTextPrompt builds the instruction for short, contact-like input
// where aggressive rewriting would destroy information.
func ShortTextPrompt(text string) string {
	return fmt.Sprintf(`The following is a short fragment from a grant listing (it may be a contact line or an abbreviated summary). Fix obvious encoding artifacts and spacing but change nothing else. Respond with ONLY the corrected text.

Text:
%s`, text)
}

// ContactPrompt asks the provider to decompose a contact blob into three
// tagged lines. The response format is deliberately constrained so it can
// be parsed with line-prefix matching.
func ContactPrompt(blob string) string {
	return fmt.Sprintf(`Extract contact details from the following grantor contact text. Respond with EXACTLY three lines in this format and nothing else:

name: <full name> (provided|inferred-from-email)
email: <email address>
phone: <phone number> (valid|invalid, given|assumed)

Use "inferred-from-email" if you derived the name from an email address rather than finding it in the text. Tag the phone "assumed" if it was not explicitly labeled as a phone number. Leave a field blank after the colon when the text contains nothing for it.

Contact text:
%s`, blob)
}

// ParseContactResponse parses the constrained three-line contact format.
// Unknown lines are ignored; a response with no recognized line at all is
// an error so the caller can fall back.
func ParseContactResponse(resp string) (*ContactFields, error) {
	fields := &ContactFields{}
	matched := false

	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "name:"):
			value, tag := splitValueTag(line[len("name:"):])
			fields.Name = value
			if strings.Contains(tag, "inferred") {
				fields.NameSource = "inferred-from-email"
			} else if value != "" {
				fields.NameSource = "provided"
			}
			matched = true
		case strings.HasPrefix(lower, "email:"):
			value, _ := splitValueTag(line[len("email:"):])
			fields.Email = value
			matched = true
		case strings.HasPrefix(lower, "phone:"):
			value, tag := splitValueTag(line[len("phone:"):])
			fields.Phone = value
			if value != "" {
				valid := !strings.Contains(tag, "invalid")
				fields.PhoneValid = &valid
				if strings.Contains(tag, "assumed") {
					fields.PhoneSource = "assumed"
				} else {
					fields.PhoneSource = "given"
				}
			}
			matched = true
		}
	}

	if !matched {
		return nil, fmt.Errorf("no contact lines found in response: %q", firstLine(resp))
	}
	return fields, nil
}

// splitValueTag separates "Jane Doe (provided)" into value and tag.
func splitValueTag(s string) (value, tag string) {
	s = strings.TrimSpace(s)
	if open := strings.LastIndex(s, "("); open != -1 && strings.HasSuffix(s, ")") {
		tag = strings.ToLower(s[open+1 : len(s)-1])
		value = strings.TrimSpace(s[:open])
		return value, tag
	}
	return s, ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return s[:idx]
	}
	return s
}
