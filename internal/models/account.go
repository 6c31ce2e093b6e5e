package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType identifies the financial container kind
type AccountType string

const (
	AccountTypeDepository AccountType = "depository"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeLoan       AccountType = "loan"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeCrypto     AccountType = "crypto"
	AccountTypeProperty   AccountType = "property"
	AccountTypeOther      AccountType = "other"
)

// Account is a financial container owned by a family. It is mutated only
// through the import adapter or explicit user action, and never destroyed
// by the reconciliation engine.
type Account struct {
	ID          string          `json:"id" badgerhold:"key"`
	FamilyID    string          `json:"family_id" badgerhold:"index"`
	Name        string          `json:"name"`
	Type        AccountType     `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	// AvailableBalance is the provider-reported available amount, kept for
	// the liability sign heuristic. Nil when the provider never sends one.
	AvailableBalance *decimal.Decimal `json:"available_balance,omitempty"`
	Currency         string           `json:"currency"`

	// Accountable-specific attributes (credit cards, loans)
	CreditLimit  *decimal.Decimal `json:"credit_limit,omitempty"`
	APR          *decimal.Decimal `json:"apr,omitempty"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
	RateType     string           `json:"rate_type,omitempty"`

	// AttributeAuthority records, per accountable attribute, the rank of
	// the actor that last set it. Lower-ranked writers are rejected.
	AttributeAuthority map[string]Authority `json:"attribute_authority,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLiability reports whether the account carries debt-style balances.
func (a *Account) IsLiability() bool {
	return a.Type == AccountTypeCreditCard || a.Type == AccountTypeLoan
}

// AuthorityFor returns the rank that last wrote the named attribute.
func (a *Account) AuthorityFor(attr string) Authority {
	if a.AttributeAuthority == nil {
		return AuthorityUnknown
	}
	return a.AttributeAuthority[attr]
}

// SetAttributeAuthority records the writer rank for an attribute.
func (a *Account) SetAttributeAuthority(attr string, auth Authority) {
	if a.AttributeAuthority == nil {
		a.AttributeAuthority = make(map[string]Authority)
	}
	a.AttributeAuthority[attr] = auth
}
