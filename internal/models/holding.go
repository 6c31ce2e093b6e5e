package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a derived per-day snapshot of a security position in an
// account. Everything except the cost-basis override chain is rebuildable
// from trade history. At most one holding exists per
// (account, security, date, currency).
type Holding struct {
	ID         string          `json:"id" badgerhold:"key"`
	AccountID  string          `json:"account_id" badgerhold:"index"`
	SecurityID string          `json:"security_id" badgerhold:"index"`
	Date       time.Time       `json:"date"`
	Currency   string          `json:"currency"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`

	CostBasis       *decimal.Decimal `json:"cost_basis,omitempty"`
	CostBasisSource CostBasisSource  `json:"cost_basis_source,omitempty"`
	// Locked pins the cost basis against any reconciliation update.
	Locked bool `json:"locked"`

	ExternalID string `json:"external_id,omitempty"`
	// AccountProviderID references the provider link that produced this
	// holding. Unlinking nulls it rather than deleting the holding.
	AccountProviderID string `json:"account_provider_id,omitempty"`
	Source            string `json:"source,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the uniqueness key for the holding.
func (h *Holding) Key() string {
	return HoldingKey(h.AccountID, h.SecurityID, h.Date, h.Currency)
}

// HoldingKey builds the (account, security, date, currency) uniqueness key.
func HoldingKey(accountID, securityID string, date time.Time, currency string) string {
	return fmt.Sprintf("%s|%s|%s|%s", accountID, securityID, DateOnly(date).Format("2006-01-02"), currency)
}
