package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderSnapshot is the normalized shape every provider client returns.
// Field names vary per provider wire format; clients map them onto this
// before the reconciliation core sees anything.
type ProviderSnapshot struct {
	Accounts  []ProviderAccountData
	FetchedAt time.Time
	// Raw is the verbatim upstream payload, stored for audit/replay.
	Raw []byte
}

// ProviderAccountData is one provider-side account with its records.
type ProviderAccountData struct {
	ExternalID       string
	Name             string
	Type             string
	Balance          decimal.Decimal
	AvailableBalance *decimal.Decimal
	Currency         string

	Transactions []ProviderTransaction
	Holdings     []ProviderHolding
	Trades       []ProviderTrade

	// Liability-specific attributes, when the provider reports them.
	CreditLimit  *decimal.Decimal
	APR          *decimal.Decimal
	InterestRate *decimal.Decimal
}

// ProviderTransaction is one upstream transaction record.
type ProviderTransaction struct {
	ExternalID string
	Amount     string // raw amount text, parsed/validated per record
	Currency   string
	Date       string
	Name       string
	Pending    bool
	// PendingExternalID links a posted record back to the pending entry
	// it replaces.
	PendingExternalID  string
	ProviderMerchantID string
	MerchantName       string
	MerchantWebsite    string
	Category           string
}

// ProviderTrade is one upstream trade record.
type ProviderTrade struct {
	ExternalID string
	Symbol     string
	Exchange   string
	Qty        string
	Price      string
	Currency   string
	Date       string
	Name       string
}

// ProviderHolding is one upstream holding record.
type ProviderHolding struct {
	ExternalID string
	Symbol     string
	Exchange   string
	Qty        string
	Price      string
	Amount     string
	CostBasis  string // empty when the provider does not report one
	Currency   string
	Date       string
}

// SyncWindow bounds the records a client should fetch.
type SyncWindow struct {
	Start time.Time
	End   time.Time
}

// ProviderClient fetches a raw snapshot from one external provider. The
// HTTP specifics live outside the reconciliation core.
type ProviderClient interface {
	FetchSnapshot(ctx context.Context, window SyncWindow) (*ProviderSnapshot, error)
}
