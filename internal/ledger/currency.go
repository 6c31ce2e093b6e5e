// Package ledger provides leaf utilities shared by all provider adapters.
package ledger

import (
	"fmt"
	"strings"

	money "github.com/Rhymond/go-money"
)

// aliases maps common non-ISO spellings onto their ISO 4217 code.
var aliases = map[string]string{
	"RMB": "CNY",
	"UKP": "GBP",
	"NTD": "TWD",
	"WON": "KRW",
}

// NormalizeCurrency canonicalizes a currency code against the ISO 4217
// set. Returns the uppercased code or an error for unknown codes.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", fmt.Errorf("currency code is empty")
	}
	if alias, ok := aliases[c]; ok {
		c = alias
	}
	if money.GetCurrency(c) == nil {
		return "", fmt.Errorf("unknown currency code %q", code)
	}
	return c, nil
}
