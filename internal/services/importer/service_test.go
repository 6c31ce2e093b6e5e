package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/storage"
)

func newTestImporter(t *testing.T) (*AccountImporter, *storage.MemoryStore, *models.Account) {
	t.Helper()
	store := storage.NewMemoryStore()
	account := &models.Account{
		ID:       "acc1",
		Name:     "Everyday Card",
		Type:     models.AccountTypeCreditCard,
		Currency: "USD",
	}
	require.NoError(t, store.Accounts().Save(context.Background(), account))
	return NewAccountImporter(store, common.NewNopLogger(), account), store, account
}

func TestImportTransactionIdempotent(t *testing.T) {
	im, store, account := newTestImporter(t)
	ctx := context.Background()

	first, err := im.ImportTransaction(ctx, TransactionImport{
		ExternalID: "txn_1",
		Amount:     dec("42.50"),
		Currency:   "usd",
		Date:       "2026-02-10",
		Name:       "Grocer",
		Source:     "simplefin",
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", first.Currency)

	second, err := im.ImportTransaction(ctx, TransactionImport{
		ExternalID: "txn_1",
		Amount:     dec("45.00"),
		Currency:   "USD",
		Date:       "2026-02-10",
		Name:       "Grocer (corrected)",
		Source:     "simplefin",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "re-import must resolve to the same entry")
	assert.True(t, second.Amount.Equal(dec("45.00")))
	assert.Equal(t, "Grocer (corrected)", second.Name)

	entries, err := store.Entries().ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestImportTransactionRespectsLocks(t *testing.T) {
	im, store, _ := newTestImporter(t)
	ctx := context.Background()

	entry, err := im.ImportTransaction(ctx, TransactionImport{
		ExternalID: "txn_2",
		Amount:     dec("100"),
		Currency:   "USD",
		Date:       "2026-02-01",
		Name:       "Original",
		Source:     "simplefin",
	})
	require.NoError(t, err)

	// User pinned the amount and name; provider refreshes must not clobber.
	entry.Lock(models.AttrAmount, models.AttrName)
	require.NoError(t, store.Entries().Update(ctx, entry))

	updated, err := im.ImportTransaction(ctx, TransactionImport{
		ExternalID: "txn_2",
		Amount:     dec("999"),
		Currency:   "USD",
		Date:       "2026-02-02",
		Name:       "Provider Rename",
		Source:     "simplefin",
	})
	require.NoError(t, err)

	assert.True(t, updated.Amount.Equal(dec("100")), "locked amount survives")
	assert.Equal(t, "Original", updated.Name, "locked name survives")
	assert.Equal(t, models.DateOnly(updated.Date), updated.Date)
	assert.Equal(t, "2026-02-02", updated.Date.Format("2006-01-02"), "unlocked date still updates")
}

func TestImportTransactionPendingPromotion(t *testing.T) {
	im, store, account := newTestImporter(t)
	ctx := context.Background()

	pending, err := im.ImportTransaction(ctx, TransactionImport{
		ExternalID: "pend_1",
		Amount:     dec("-20"),
		Currency:   "USD",
		Date:       "2026-02-10",
		Name:       "Coffee (pending)",
		Source:     "simplefin",
		Pending:    true,
	})
	require.NoError(t, err)

	posted, err := im.ImportTransaction(ctx, TransactionImport{
		ExternalID:        "post_1",
		Amount:            dec("-21.50"),
		Currency:          "USD",
		Date:              "2026-02-12",
		Name:              "Coffee",
		Source:            "simplefin",
		PendingExternalID: "pend_1",
	})
	require.NoError(t, err)

	assert.Equal(t, pending.ID, posted.ID, "pending entry is promoted, not duplicated")
	assert.Equal(t, "post_1", posted.ExternalID)
	assert.False(t, posted.Pending)
	assert.True(t, posted.Amount.Equal(dec("-21.50")))

	entries, err := store.Entries().ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestImportTransactionValidation(t *testing.T) {
	im, _, _ := newTestImporter(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input TransactionImport
	}{
		{"missing external id", TransactionImport{Currency: "USD", Date: "2026-01-01", Source: "simplefin"}},
		{"bad currency", TransactionImport{ExternalID: "x", Currency: "NOPE", Date: "2026-01-01", Source: "simplefin"}},
		{"bad date", TransactionImport{ExternalID: "x", Currency: "USD", Date: "soon", Source: "simplefin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.ImportTransaction(ctx, tt.input)
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestImportTradeComputesAmountAndName(t *testing.T) {
	im, store, _ := newTestImporter(t)
	ctx := context.Background()

	entry, err := im.ImportTrade(ctx, TradeImport{
		ExternalID: "trade_1",
		Symbol:     "VAS",
		Exchange:   "AU",
		Qty:        dec("10"),
		Price:      dec("95.20"),
		Currency:   "AUD",
		Date:       "2026-03-01",
		Source:     "brokerage",
	})
	require.NoError(t, err)

	assert.Equal(t, models.EntryableTrade, entry.Kind)
	assert.True(t, entry.Amount.Equal(dec("952.0")))
	assert.Equal(t, "Buy 10 VAS", entry.Name)

	security, err := store.Securities().FindBySymbol(ctx, "VAS", "AU")
	require.NoError(t, err)
	assert.Equal(t, security.ID, entry.Trade.SecurityID)

	sell, err := im.ImportTrade(ctx, TradeImport{
		ExternalID: "trade_2",
		Symbol:     "VAS",
		Exchange:   "AU",
		Qty:        dec("-4"),
		Price:      dec("100"),
		Currency:   "AUD",
		Date:       "2026-03-02",
		Source:     "brokerage",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sell 4 VAS", sell.Name)
	assert.Equal(t, security.ID, sell.Trade.SecurityID, "security deduplicated by symbol")
}

func TestFindOrCreateMerchantKeepsFirstName(t *testing.T) {
	im, _, _ := newTestImporter(t)
	ctx := context.Background()

	first, err := im.FindOrCreateMerchant(ctx, MerchantImport{
		ProviderMerchantID: "m_1",
		Name:               "Acme Pty Ltd",
		Source:             "simplefin",
	})
	require.NoError(t, err)

	second, err := im.FindOrCreateMerchant(ctx, MerchantImport{
		ProviderMerchantID: "m_1",
		Name:               "ACME*SYDNEY",
		Source:             "simplefin",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Acme Pty Ltd", second.Name, "first-seen name is retained")
}

func TestImportHoldingPurgesFutureRows(t *testing.T) {
	im, store, account := newTestImporter(t)
	ctx := context.Background()

	_, err := im.ImportHolding(ctx, HoldingImport{
		ExternalID: "h_future",
		Symbol:     "VAS",
		Qty:        dec("10"),
		Amount:     dec("1000"),
		Currency:   "AUD",
		Date:       "2026-03-10",
		Source:     "brokerage",
	})
	require.NoError(t, err)

	// The provider re-reports from an earlier day and owns the horizon.
	_, err = im.ImportHolding(ctx, HoldingImport{
		ExternalID:           "h_now",
		Symbol:               "VAS",
		Qty:                  dec("8"),
		Amount:               dec("800"),
		Currency:             "AUD",
		Date:                 "2026-03-05",
		Source:               "brokerage",
		DeleteFutureHoldings: true,
	})
	require.NoError(t, err)

	holdings, err := store.Holdings().ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "2026-03-05", holdings[0].Date.Format("2006-01-02"))
}

func TestImportHoldingCostBasisPrecedence(t *testing.T) {
	im, _, _ := newTestImporter(t)
	ctx := context.Background()

	h, err := im.ImportHolding(ctx, HoldingImport{
		ExternalID:      "h_1",
		Symbol:          "VAS",
		Qty:             dec("10"),
		Amount:          dec("1000"),
		Currency:        "AUD",
		Date:            "2026-03-05",
		CostBasis:       decPtr("900"),
		CostBasisSource: models.CostBasisManual,
		Source:          "brokerage",
	})
	require.NoError(t, err)
	require.NotNil(t, h.CostBasis)
	assert.True(t, h.CostBasis.Equal(dec("900")))

	// Provider refresh must not displace the manual value.
	h, err = im.ImportHolding(ctx, HoldingImport{
		ExternalID: "h_1",
		Symbol:     "VAS",
		Qty:        dec("10"),
		Amount:     dec("1010"),
		Currency:   "AUD",
		Date:       "2026-03-05",
		CostBasis:  decPtr("950"),
		Source:     "brokerage",
	})
	require.NoError(t, err)
	assert.True(t, h.CostBasis.Equal(dec("900")))
	assert.Equal(t, models.CostBasisManual, h.CostBasisSource)
	assert.True(t, h.Amount.Equal(dec("1010")), "quantity fields still refresh")
}

func TestUpdateAccountableAttributesAuthority(t *testing.T) {
	im, store, account := newTestImporter(t)
	ctx := context.Background()

	require.NoError(t, im.UpdateAccountableAttributes(ctx, AccountableAttributes{
		CreditLimit: decPtr("5000"),
	}, models.AuthorityProvider))
	require.NotNil(t, account.CreditLimit)
	assert.True(t, account.CreditLimit.Equal(dec("5000")))

	// A user edit outranks later provider refreshes.
	account.CreditLimit = decPtr("6000")
	account.SetAttributeAuthority("credit_limit", models.AuthorityUser)
	require.NoError(t, store.Accounts().Save(ctx, account))

	require.NoError(t, im.UpdateAccountableAttributes(ctx, AccountableAttributes{
		CreditLimit: decPtr("5500"),
	}, models.AuthorityProvider))
	assert.True(t, account.CreditLimit.Equal(dec("6000")), "user-set value survives provider refresh")

	// Equal authority may overwrite, so provider refreshes keep landing.
	require.NoError(t, im.UpdateAccountableAttributes(ctx, AccountableAttributes{
		APR: decPtr("19.99"),
	}, models.AuthorityProvider))
	require.NoError(t, im.UpdateAccountableAttributes(ctx, AccountableAttributes{
		APR: decPtr("21.99"),
	}, models.AuthorityProvider))
	assert.True(t, account.APR.Equal(dec("21.99")))
}
