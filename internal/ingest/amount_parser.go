package ingest

import (
	"strconv"
	"strings"
)

// parseAmount extracts an integer dollar amount from a decorated money
// string ("$1,500,000", "1500000.00", "USD 250,000"). Cents are dropped.
// Returns nil when no digits survive, matching the feed's optional-money
// semantics.
func parseAmount(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	// Cut a decimal fraction before stripping separators so "1,000.50"
	// does not become 100050.
	if idx := strings.LastIndex(raw, "."); idx != -1 {
		frac := raw[idx+1:]
		if len(frac) > 0 && len(frac) <= 2 && digitsOnly(frac) == frac {
			raw = raw[:idx]
		}
	}

	digits := digitsOnly(raw)
	if digits == "" {
		return nil
	}

	val, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &val
}

// parseCostSharing maps the feed's Yes/No flag onto a boolean. Anything
// other than an explicit yes is treated as no cost sharing required.
func parseCostSharing(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true":
		return true
	default:
		return false
	}
}
