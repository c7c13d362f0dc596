package ingest

import (
	"context"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// PassthroughCleaner is the non-AI cleaning variant: HTML stripping,
// entity decoding and whitespace collapse for the description, pattern
// matching for the contact fields. It makes no external calls.
type PassthroughCleaner struct {
	policy *bluemonday.Policy
}

func NewPassthroughCleaner() *PassthroughCleaner {
	return &PassthroughCleaner{policy: bluemonday.StrictPolicy()}
}

func (c *PassthroughCleaner) Clean(_ context.Context, in CleanInput) CleaningResult {
	result := CleaningResult{
		Description: c.CleanDescription(in.Description),
	}

	name := cleanText(in.ContactName)
	email := strings.TrimSpace(in.ContactEmail)
	phone := strings.TrimSpace(in.ContactPhone)

	if blob := strings.TrimSpace(in.ContactBlob); blob != "" {
		blobName, blobEmail, blobPhone := splitContactBlob(blob)
		if name == "" {
			name = blobName
		}
		if email == "" {
			email = blobEmail
		}
		if phone == "" {
			phone = blobPhone
		}
	}

	if email != "" {
		email = emailRegex.FindString(email)
	}

	if name != "" {
		result.Contact.NameSource = NameSourceProvided
	} else if email != "" {
		if inferred := nameFromEmail(email); inferred != "" {
			name = inferred
			result.Contact.NameSource = NameSourceFromEmail
		}
	}

	if phone != "" {
		formatted, ok := formatPhone(phone)
		phone = formatted
		result.Contact.PhoneValid = &ok
		result.Contact.PhoneSource = PhoneSourceGiven
	}

	result.Contact.Name = name
	result.Contact.Email = email
	result.Contact.Phone = phone
	return result
}

// CleanDescription strips HTML tags and entities and collapses
// whitespace. It never fails; a parse error falls back to the sanitized
// input string.
func (c *PassthroughCleaner) CleanDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	stripped := c.policy.Sanitize(raw)
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(stripped)); err == nil {
		stripped = doc.Text()
	}
	return cleanText(html.UnescapeString(sanitizeUTF8(stripped)))
}
