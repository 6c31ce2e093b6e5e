package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError marks a per-record failure. The provider processor
// catches it at single-record scope so one bad record does not abort the
// batch.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// ParseDate parses a provider-supplied date string at day resolution.
func ParseDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, &ValidationError{Field: "date", Value: s, Reason: "missing"}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "date", Value: s, Reason: "unparseable"}
}

// ParseAmount parses a provider-supplied amount. Rejects empty and
// non-numeric values (provider feeds occasionally send "NaN" or "--").
func ParseAmount(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if trimmed == "" {
		return decimal.Zero, &ValidationError{Field: "amount", Value: s, Reason: "missing"}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Value: s, Reason: "not a finite number"}
	}
	return d, nil
}
