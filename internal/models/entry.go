package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryableKind is the closed set of entry payload variants.
type EntryableKind string

const (
	EntryableTransaction EntryableKind = "transaction"
	EntryableTrade       EntryableKind = "trade"
)

// TransactionKind distinguishes ordinary spend from money movement.
type TransactionKind string

const (
	TransactionKindStandard     TransactionKind = "standard"
	TransactionKindTransfer     TransactionKind = "transfer"
	TransactionKindContribution TransactionKind = "contribution"
	TransactionKindPayment      TransactionKind = "payment"
	TransactionKindOneTime      TransactionKind = "one_time"
)

// Entry attribute names used in LockedAttributes.
const (
	AttrAmount     = "amount"
	AttrDate       = "date"
	AttrCurrency   = "currency"
	AttrName       = "name"
	AttrNotes      = "notes"
	AttrCategoryID = "category_id"
	AttrMerchantID = "merchant_id"
	AttrTags       = "tags"
	AttrKind       = "kind"
	AttrQty        = "qty"
	AttrPrice      = "price"
)

// Entry is a dated, signed monetary movement against exactly one account.
// It is never duplicated for the same (account, external_id, source)
// triple; that is the central idempotency invariant of the import adapter.
type Entry struct {
	ID         string          `json:"id" badgerhold:"key"`
	AccountID  string          `json:"account_id" badgerhold:"index"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Name       string          `json:"name"`
	Notes      string          `json:"notes,omitempty"`
	Source     string          `json:"source"`
	ExternalID string          `json:"external_id" badgerhold:"index"`
	Pending    bool            `json:"pending"`

	// LockedAttributes lists the fields a higher-authority actor has
	// fixed; imports must not change them.
	LockedAttributes []string `json:"locked_attributes,omitempty"`

	Kind        EntryableKind `json:"kind"`
	Transaction *Transaction  `json:"transaction,omitempty"`
	Trade       *Trade        `json:"trade,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction carries categorization metadata for a transaction entry.
type Transaction struct {
	CategoryID         string            `json:"category_id,omitempty"`
	MerchantID         string            `json:"merchant_id,omitempty"`
	Tags               []string          `json:"tags,omitempty"`
	InvestmentActivity string            `json:"investment_activity,omitempty"`
	Kind               TransactionKind   `json:"transaction_kind,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// Trade records a signed security movement.
type Trade struct {
	SecurityID string          `json:"security_id"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
}

// IsLocked reports whether a named attribute is in the lock set.
func (e *Entry) IsLocked(attr string) bool {
	for _, a := range e.LockedAttributes {
		if a == attr {
			return true
		}
	}
	return false
}

// Lock adds attributes to the lock set, ignoring duplicates.
func (e *Entry) Lock(attrs ...string) {
	for _, attr := range attrs {
		if !e.IsLocked(attr) {
			e.LockedAttributes = append(e.LockedAttributes, attr)
		}
	}
}

// DateOnly truncates a timestamp to its UTC calendar day. Entry and
// holding dates are stored at day resolution.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
