package ingest

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/mchen04/Grantify.ai-sub000/internal/ai"
)

const (
	maxDescriptionChars = 8000
	cleanerMaxRetries   = 3
)

// ExternalCleaner delegates description and contact cleaning to an
// external text-completion provider. Every outbound call goes through the
// shared rate limiter; transport failures retry with exponential backoff
// and then degrade, per field, to the passthrough variant. It satisfies
// the cleaner contract of never failing.
type ExternalCleaner struct {
	client   ai.Completer
	limiter  *RateLimiter
	fallback *PassthroughCleaner
	sleep    func(time.Duration)
}

func NewExternalCleaner(client ai.Completer, limiter *RateLimiter) *ExternalCleaner {
	return &ExternalCleaner{
		client:   client,
		limiter:  limiter,
		fallback: NewPassthroughCleaner(),
		sleep:    time.Sleep,
	}
}

func (c *ExternalCleaner) Clean(ctx context.Context, in CleanInput) CleaningResult {
	result := CleaningResult{
		Description: c.cleanDescription(ctx, in.Description),
		Contact:     c.cleanContact(ctx, in),
	}
	return result
}

func (c *ExternalCleaner) cleanDescription(ctx context.Context, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := TruncateText(raw, maxDescriptionChars)
	var prompt string
	if looksLikeContact(text) {
		prompt = ai.ShortTextPrompt(text)
	} else {
		prompt = ai.DescriptionPrompt(text)
	}

	resp, err := c.complete(ctx, prompt)
	if err != nil {
		log.Printf("[Cleaner] description cleaning failed, using passthrough: %v", err)
		return c.fallback.CleanDescription(raw)
	}

	cleaned := cleanText(sanitizeUTF8(resp))
	if cleaned == "" {
		return c.fallback.CleanDescription(raw)
	}
	return cleaned
}

func (c *ExternalCleaner) cleanContact(ctx context.Context, in CleanInput) CleanedContact {
	blob := contactBlob(in)
	if blob == "" {
		return CleanedContact{}
	}

	resp, err := c.complete(ctx, ai.ContactPrompt(blob))
	if err == nil {
		if fields, parseErr := ai.ParseContactResponse(resp); parseErr == nil {
			return contactFromFields(fields)
		} else {
			log.Printf("[Cleaner] contact response unparseable, using passthrough: %v", parseErr)
		}
	} else {
		log.Printf("[Cleaner] contact cleaning failed, using passthrough: %v", err)
	}

	return c.fallback.Clean(ctx, in).Contact
}

// complete waits on the rate limiter and retries transient failures with
// exponential backoff before giving up.
func (c *ExternalCleaner) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= cleanerMaxRetries; attempt++ {
		if attempt > 0 {
			// 0.5s, 1s, 2s + jitter
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			c.sleep(backoff + jitter)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := c.client.Complete(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// contactBlob merges whatever contact material the record carries into
// one text block for the provider.
func contactBlob(in CleanInput) string {
	parts := []string{in.ContactBlob, in.ContactName, in.ContactEmail, in.ContactPhone}
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

func contactFromFields(fields *ai.ContactFields) CleanedContact {
	contact := CleanedContact{
		Name:        cleanText(fields.Name),
		Email:       strings.TrimSpace(fields.Email),
		Phone:       strings.TrimSpace(fields.Phone),
		NameSource:  fields.NameSource,
		PhoneValid:  fields.PhoneValid,
		PhoneSource: fields.PhoneSource,
	}
	if contact.Email != "" {
		contact.Email = emailRegex.FindString(contact.Email)
	}
	return contact
}
