package simplefin

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/services/holdings"
	"github.com/bobmcallan/ledgerd/internal/services/liability"
	"github.com/bobmcallan/ledgerd/internal/services/syncer"
	"github.com/bobmcallan/ledgerd/internal/storage"
)

type fakeClient struct {
	snap *interfaces.ProviderSnapshot
	err  error
}

func (c *fakeClient) FetchSnapshot(ctx context.Context, window interfaces.SyncWindow) (*interfaces.ProviderSnapshot, error) {
	return c.snap, c.err
}

type recordingScheduler struct {
	accountIDs []string
}

func (s *recordingScheduler) ScheduleRecalc(ctx context.Context, accountIDs []string) error {
	s.accountIDs = append(s.accountIDs, accountIDs...)
	return nil
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// newFixture wires a full sync stack over the memory backend: one
// connection with one linked checking account and one unlinked account.
func newFixture(t *testing.T, snap *interfaces.ProviderSnapshot) (*syncer.Service, *storage.MemoryStore, *recordingScheduler) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	logger := common.NewNopLogger()

	conn := &models.ProviderConnection{ID: "conn1", FamilyID: "fam1", Provider: Source}
	require.NoError(t, store.Providers().SaveConnection(ctx, conn))

	account := &models.Account{ID: "acc1", Type: models.AccountTypeDepository, Currency: "USD"}
	require.NoError(t, store.Accounts().Save(ctx, account))
	require.NoError(t, store.Providers().SaveAccountProvider(ctx, &models.AccountProvider{
		ID:                "ap1",
		AccountID:         account.ID,
		ConnectionID:      conn.ID,
		Provider:          Source,
		ProviderAccountID: "ext_checking",
	}))

	balances := &recordingScheduler{}
	pipeline := &syncer.Pipeline{
		Storage:      store,
		Logger:       logger,
		Analyzer:     liability.NewAnalyzer(store, liability.DefaultConfig(), logger),
		Materializer: holdings.NewMaterializer(store, logger),
		Balances:     balances,
	}

	registry := syncer.NewRegistry()
	registry.Register(NewProcessor(&fakeClient{snap: snap}, pipeline, logger))

	return syncer.NewService(store, registry, logger), store, balances
}

func TestProcessImportsLinkedAccounts(t *testing.T) {
	snap := &interfaces.ProviderSnapshot{
		FetchedAt: time.Now(),
		Raw:       []byte(`{"accounts":[]}`),
		Accounts: []interfaces.ProviderAccountData{
			{
				ExternalID: "ext_checking",
				Name:       "Checking",
				Currency:   "usd",
				Balance:    dec("1250.00"),
				Transactions: []interfaces.ProviderTransaction{
					{ExternalID: "t1", Amount: "-42.50", Currency: "usd", Date: "2026-02-10", Name: "Grocer"},
					{ExternalID: "t2", Amount: "1000.00", Currency: "usd", Date: "2026-02-01", Name: "Salary"},
					{ExternalID: "t3", Amount: "not-a-number", Currency: "usd", Date: "2026-02-01", Name: "Broken"},
				},
			},
			{
				// Not linked to any ledger account: counted, not imported.
				ExternalID: "ext_other",
				Name:       "Mystery",
				Currency:   "usd",
				Balance:    dec("10"),
			},
		},
	}

	svc, store, balances := newFixture(t, snap)
	ctx := context.Background()

	syncRec, err := svc.Run(ctx, "conn1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, syncRec.Status)

	assert.Equal(t, 2, syncRec.Stats[models.StatTotalAccounts])
	assert.Equal(t, 1, syncRec.Stats[models.StatLinkedAccounts])
	assert.Equal(t, 2, syncRec.Stats[models.StatTxImported])
	assert.Equal(t, 1, syncRec.Stats[models.StatTotalErrors])

	entries, err := store.Entries().ListByAccount(ctx, "acc1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	account, err := store.Accounts().Get(ctx, "acc1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("1250.00")))
	assert.Equal(t, "USD", account.Currency)

	// Raw payload stored before any parsing outcome.
	snaps, err := store.RawSnapshots().List(ctx, "conn1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, []byte(`{"accounts":[]}`), snaps[0].Payload)

	// Unlinked account flags the connection for setup.
	conn, err := store.Providers().GetConnection(ctx, "conn1")
	require.NoError(t, err)
	assert.True(t, conn.PendingAccountSetup)

	assert.Equal(t, []string{"acc1"}, balances.accountIDs)
}

func TestProcessIsIdempotentAcrossRuns(t *testing.T) {
	snap := &interfaces.ProviderSnapshot{
		Raw: []byte(`{}`),
		Accounts: []interfaces.ProviderAccountData{
			{
				ExternalID: "ext_checking",
				Currency:   "USD",
				Balance:    dec("100"),
				Transactions: []interfaces.ProviderTransaction{
					{ExternalID: "t1", Amount: "-10", Currency: "USD", Date: "2026-02-10", Name: "Coffee"},
				},
			},
		},
	}

	svc, store, _ := newFixture(t, snap)
	ctx := context.Background()

	first, err := svc.Run(ctx, "conn1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats[models.StatTxImported])
	assert.Equal(t, 0, first.Stats[models.StatTxUpdated])

	second, err := svc.Run(ctx, "conn1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats[models.StatTxImported])
	assert.Equal(t, 1, second.Stats[models.StatTxUpdated])

	entries, err := store.Entries().ListByAccount(ctx, "acc1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "re-sync does not duplicate")
}

func TestProcessLiabilitySignConvention(t *testing.T) {
	// A card reporting -80 with no usable history: the analyzer returns
	// unknown and the sign heuristic reads it as overpayment.
	snap := &interfaces.ProviderSnapshot{
		Raw: []byte(`{}`),
		Accounts: []interfaces.ProviderAccountData{
			{ExternalID: "ext_card", Currency: "USD", Balance: dec("-80")},
		},
	}

	svc, store, _ := newFixture(t, snap)
	ctx := context.Background()

	card := &models.Account{ID: "card1", Type: models.AccountTypeCreditCard, Currency: "USD"}
	require.NoError(t, store.Accounts().Save(ctx, card))
	require.NoError(t, store.Providers().SaveAccountProvider(ctx, &models.AccountProvider{
		ID:                "ap2",
		AccountID:         card.ID,
		ConnectionID:      "conn1",
		Provider:          Source,
		ProviderAccountID: "ext_card",
	}))

	_, err := svc.Run(ctx, "conn1")
	require.NoError(t, err)

	saved, err := store.Accounts().Get(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, saved.Balance.Equal(dec("-80")), "overpayment stays negative")
}

func TestProcessFailsWithoutClient(t *testing.T) {
	logger := common.NewNopLogger()
	p := NewProcessor(nil, &syncer.Pipeline{}, logger)

	err := p.Process(context.Background(), &models.Sync{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
