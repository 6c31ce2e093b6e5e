// Package importer is the single choke-point through which providers
// write to the canonical ledger.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/ledger"
	"github.com/bobmcallan/ledgerd/internal/models"
)

// AccountImporter writes provider data into one account's ledger. Side
// effects are confined to that account; all writes go through the
// idempotent upsert on (account, external_id, source) and respect
// attribute locks.
type AccountImporter struct {
	storage interfaces.StorageManager
	logger  *common.Logger
	account *models.Account
}

// NewAccountImporter creates an importer scoped to a single account.
func NewAccountImporter(storage interfaces.StorageManager, logger *common.Logger, account *models.Account) *AccountImporter {
	return &AccountImporter{storage: storage, logger: logger, account: account}
}

// TransactionImport is the adapter's input for one transaction record.
type TransactionImport struct {
	ExternalID string
	Amount     decimal.Decimal
	Currency   string
	Date       string
	Name       string
	Source     string
	Pending    bool
	// PendingExternalID links this posted record to the pending entry it
	// replaces, so the pending row is reconciled rather than duplicated.
	PendingExternalID string

	MerchantID string
	CategoryID string
	Notes      string
	Kind       models.TransactionKind
	Tags       []string
	Extra      map[string]string
}

// ImportTransaction performs an idempotent upsert of one transaction.
// Re-importing the same (account, external_id, source) returns the
// existing entry, updating only unlocked fields.
func (im *AccountImporter) ImportTransaction(ctx context.Context, t TransactionImport) (*models.Entry, error) {
	if t.ExternalID == "" {
		return nil, &ValidationError{Field: "external_id", Value: t.ExternalID, Reason: "missing"}
	}
	currency, err := ledger.NormalizeCurrency(t.Currency)
	if err != nil {
		return nil, &ValidationError{Field: "currency", Value: t.Currency, Reason: err.Error()}
	}
	date, err := ParseDate(t.Date)
	if err != nil {
		return nil, err
	}

	existing, err := im.storage.Entries().FindByExternalID(ctx, im.account.ID, t.ExternalID, t.Source)
	if err == nil {
		im.applyTransaction(existing, t, date, currency)
		if err := im.storage.Entries().Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	// Pending→posted linking: promote the pending entry instead of
	// creating a duplicate.
	if t.PendingExternalID != "" {
		pending, err := im.storage.Entries().FindByExternalID(ctx, im.account.ID, t.PendingExternalID, t.Source)
		if err == nil && pending.Pending {
			pending.ExternalID = t.ExternalID
			pending.Pending = false
			im.applyTransaction(pending, t, date, currency)
			if err := im.storage.Entries().Update(ctx, pending); err != nil {
				return nil, err
			}
			return pending, nil
		}
		if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			return nil, err
		}
	}

	entry := &models.Entry{
		ID:         uuid.NewString(),
		AccountID:  im.account.ID,
		Date:       date,
		Amount:     t.Amount,
		Currency:   currency,
		Name:       t.Name,
		Notes:      t.Notes,
		Source:     t.Source,
		ExternalID: t.ExternalID,
		Pending:    t.Pending,
		Kind:       models.EntryableTransaction,
		Transaction: &models.Transaction{
			CategoryID: t.CategoryID,
			MerchantID: t.MerchantID,
			Kind:       t.Kind,
			Tags:       t.Tags,
			Extra:      t.Extra,
		},
	}

	if err := im.storage.Entries().Insert(ctx, entry); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			// Lost a create race; the idempotent path resolves it.
			return im.storage.Entries().FindByExternalID(ctx, im.account.ID, t.ExternalID, t.Source)
		}
		return nil, err
	}
	return entry, nil
}

func (im *AccountImporter) applyTransaction(e *models.Entry, t TransactionImport, date time.Time, currency string) {
	if !e.IsLocked(models.AttrAmount) {
		e.Amount = t.Amount
	}
	if !e.IsLocked(models.AttrDate) {
		e.Date = date
	}
	if !e.IsLocked(models.AttrCurrency) {
		e.Currency = currency
	}
	if !e.IsLocked(models.AttrName) && t.Name != "" {
		e.Name = t.Name
	}
	if !e.IsLocked(models.AttrNotes) && t.Notes != "" {
		e.Notes = t.Notes
	}

	if e.Transaction == nil {
		e.Transaction = &models.Transaction{}
	}
	if !e.IsLocked(models.AttrCategoryID) && t.CategoryID != "" {
		e.Transaction.CategoryID = t.CategoryID
	}
	if !e.IsLocked(models.AttrMerchantID) && t.MerchantID != "" {
		e.Transaction.MerchantID = t.MerchantID
	}
	if !e.IsLocked(models.AttrKind) && t.Kind != "" {
		e.Transaction.Kind = t.Kind
	}
	if !e.IsLocked(models.AttrTags) && len(t.Tags) > 0 {
		e.Transaction.Tags = t.Tags
	}
}

// TradeImport is the adapter's input for one trade record.
type TradeImport struct {
	ExternalID string
	Symbol     string
	Exchange   string
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Currency   string
	Date       string
	Name       string
	Source     string
}

// ImportTrade performs an idempotent upsert of one trade entry. The
// entry amount is the signed qty × price.
func (im *AccountImporter) ImportTrade(ctx context.Context, t TradeImport) (*models.Entry, error) {
	if t.ExternalID == "" {
		return nil, &ValidationError{Field: "external_id", Value: t.ExternalID, Reason: "missing"}
	}
	if t.Symbol == "" {
		return nil, &ValidationError{Field: "symbol", Value: t.Symbol, Reason: "missing"}
	}
	currency, err := ledger.NormalizeCurrency(t.Currency)
	if err != nil {
		return nil, &ValidationError{Field: "currency", Value: t.Currency, Reason: err.Error()}
	}
	date, err := ParseDate(t.Date)
	if err != nil {
		return nil, err
	}

	security, err := im.FindOrCreateSecurity(ctx, t.Symbol, t.Exchange, currency)
	if err != nil {
		return nil, err
	}

	amount := t.Qty.Mul(t.Price)

	existing, err := im.storage.Entries().FindByExternalID(ctx, im.account.ID, t.ExternalID, t.Source)
	if err == nil {
		im.applyTrade(existing, t, security.ID, amount, date, currency)
		if err := im.storage.Entries().Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	name := t.Name
	if name == "" {
		verb := "Buy"
		if t.Qty.Sign() < 0 {
			verb = "Sell"
		}
		name = fmt.Sprintf("%s %s %s", verb, t.Qty.Abs().String(), t.Symbol)
	}

	entry := &models.Entry{
		ID:         uuid.NewString(),
		AccountID:  im.account.ID,
		Date:       date,
		Amount:     amount,
		Currency:   currency,
		Name:       name,
		Source:     t.Source,
		ExternalID: t.ExternalID,
		Kind:       models.EntryableTrade,
		Trade: &models.Trade{
			SecurityID: security.ID,
			Qty:        t.Qty,
			Price:      t.Price,
			Currency:   currency,
		},
	}

	if err := im.storage.Entries().Insert(ctx, entry); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return im.storage.Entries().FindByExternalID(ctx, im.account.ID, t.ExternalID, t.Source)
		}
		return nil, err
	}
	return entry, nil
}

func (im *AccountImporter) applyTrade(e *models.Entry, t TradeImport, securityID string, amount decimal.Decimal, date time.Time, currency string) {
	if !e.IsLocked(models.AttrAmount) {
		e.Amount = amount
	}
	if !e.IsLocked(models.AttrDate) {
		e.Date = date
	}
	if !e.IsLocked(models.AttrCurrency) {
		e.Currency = currency
	}
	if !e.IsLocked(models.AttrName) && t.Name != "" {
		e.Name = t.Name
	}

	if e.Trade == nil {
		e.Trade = &models.Trade{}
	}
	e.Trade.SecurityID = securityID
	if !e.IsLocked(models.AttrQty) {
		e.Trade.Qty = t.Qty
	}
	if !e.IsLocked(models.AttrPrice) {
		e.Trade.Price = t.Price
	}
	e.Trade.Currency = currency
}

// HoldingImport is the adapter's input for one provider holding record.
type HoldingImport struct {
	Symbol   string
	Exchange string
	Qty      decimal.Decimal
	Amount   decimal.Decimal
	Currency string
	Date     string
	Price    decimal.Decimal
	// CostBasis is nil when the provider did not report one; zero is
	// treated the same way.
	CostBasis       *decimal.Decimal
	CostBasisSource models.CostBasisSource
	ExternalID      string

	AccountProviderID string
	Source            string

	// DeleteFutureHoldings purges holdings dated after this record when
	// the provider is authoritative for the full holdings horizon.
	DeleteFutureHoldings bool
}

// ImportHolding upserts one (account, security, date, currency) holding,
// running the cost-basis reconciler before persisting.
func (im *AccountImporter) ImportHolding(ctx context.Context, h HoldingImport) (*models.Holding, error) {
	if h.ExternalID == "" {
		return nil, &ValidationError{Field: "external_id", Value: h.ExternalID, Reason: "missing"}
	}
	if h.Symbol == "" {
		return nil, &ValidationError{Field: "symbol", Value: h.Symbol, Reason: "missing"}
	}
	currency, err := ledger.NormalizeCurrency(h.Currency)
	if err != nil {
		return nil, &ValidationError{Field: "currency", Value: h.Currency, Reason: err.Error()}
	}
	date, err := ParseDate(h.Date)
	if err != nil {
		return nil, err
	}

	security, err := im.FindOrCreateSecurity(ctx, h.Symbol, h.Exchange, currency)
	if err != nil {
		return nil, err
	}

	source := h.CostBasisSource
	if source == "" {
		source = models.CostBasisProvider
	}

	existing, err := im.storage.Holdings().FindByKey(ctx, im.account.ID, security.ID, date, currency)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, interfaces.ErrNotFound) {
		existing = nil
	}

	decision := ReconcileCostBasis(existing, h.CostBasis, source)

	var holding *models.Holding
	if existing != nil {
		holding = existing
		if !holding.Locked {
			holding.Qty = h.Qty
			holding.Price = h.Price
			holding.Amount = h.Amount
			holding.ExternalID = h.ExternalID
			if h.AccountProviderID != "" {
				holding.AccountProviderID = h.AccountProviderID
			}
			holding.Source = h.Source
		}
	} else {
		holding = &models.Holding{
			ID:                uuid.NewString(),
			AccountID:         im.account.ID,
			SecurityID:        security.ID,
			Date:              date,
			Currency:          currency,
			Qty:               h.Qty,
			Price:             h.Price,
			Amount:            h.Amount,
			ExternalID:        h.ExternalID,
			AccountProviderID: h.AccountProviderID,
			Source:            h.Source,
		}
	}

	if decision.ShouldUpdate {
		holding.CostBasis = decision.CostBasis
		holding.CostBasisSource = decision.Source
	}

	if err := im.storage.Holdings().Save(ctx, holding); err != nil {
		return nil, err
	}

	if h.DeleteFutureHoldings {
		deleted, err := im.storage.Holdings().DeleteAfter(ctx, im.account.ID, security.ID, date)
		if err != nil {
			return nil, err
		}
		if deleted > 0 {
			im.logger.Debug().
				Str("account", im.account.ID).
				Str("security", security.Symbol).
				Int("deleted", deleted).
				Msg("Purged future holdings")
		}
	}

	return holding, nil
}

// MerchantImport is the adapter's input for one provider merchant.
type MerchantImport struct {
	ProviderMerchantID string
	Name               string
	Source             string
	WebsiteURL         string
	LogoURL            string
}

// FindOrCreateMerchant deduplicates merchants by
// (source, provider_merchant_id), retaining the first-seen name.
func (im *AccountImporter) FindOrCreateMerchant(ctx context.Context, m MerchantImport) (*models.Merchant, error) {
	if m.ProviderMerchantID == "" {
		return nil, &ValidationError{Field: "provider_merchant_id", Value: m.ProviderMerchantID, Reason: "missing"}
	}
	if m.Source == "" {
		return nil, &ValidationError{Field: "source", Value: m.Source, Reason: "missing"}
	}

	existing, err := im.storage.Merchants().FindByProviderID(ctx, m.Source, m.ProviderMerchantID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	merchant := &models.Merchant{
		ID:                 uuid.NewString(),
		Source:             m.Source,
		ProviderMerchantID: m.ProviderMerchantID,
		Name:               m.Name,
		WebsiteURL:         m.WebsiteURL,
		LogoURL:            m.LogoURL,
	}
	if err := im.storage.Merchants().Save(ctx, merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

// FindOrCreateSecurity deduplicates securities by (symbol, exchange).
func (im *AccountImporter) FindOrCreateSecurity(ctx context.Context, symbol, exchange, currency string) (*models.Security, error) {
	existing, err := im.storage.Securities().FindBySymbol(ctx, symbol, exchange)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	security := &models.Security{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Exchange: exchange,
		Currency: currency,
	}
	if err := im.storage.Securities().Save(ctx, security); err != nil {
		return nil, err
	}
	return security, nil
}

// AccountableAttributes carries liability-specific fields a provider may
// report. Nil fields are not written.
type AccountableAttributes struct {
	CreditLimit  *decimal.Decimal
	APR          *decimal.Decimal
	InterestRate *decimal.Decimal
	RateType     *string
}

// UpdateAccountableAttributes applies attributes whose current authority
// does not outrank the incoming source. Used for credit-limit/APR style
// fields where user edits must survive provider refreshes.
func (im *AccountImporter) UpdateAccountableAttributes(ctx context.Context, attrs AccountableAttributes, source models.Authority) error {
	changed := false

	if attrs.CreditLimit != nil && im.account.AuthorityFor("credit_limit") <= source {
		im.account.CreditLimit = attrs.CreditLimit
		im.account.SetAttributeAuthority("credit_limit", source)
		changed = true
	}
	if attrs.APR != nil && im.account.AuthorityFor("apr") <= source {
		im.account.APR = attrs.APR
		im.account.SetAttributeAuthority("apr", source)
		changed = true
	}
	if attrs.InterestRate != nil && im.account.AuthorityFor("interest_rate") <= source {
		im.account.InterestRate = attrs.InterestRate
		im.account.SetAttributeAuthority("interest_rate", source)
		changed = true
	}
	if attrs.RateType != nil && im.account.AuthorityFor("rate_type") <= source {
		im.account.RateType = *attrs.RateType
		im.account.SetAttributeAuthority("rate_type", source)
		changed = true
	}

	if !changed {
		return nil
	}
	return im.storage.Accounts().Save(ctx, im.account)
}
