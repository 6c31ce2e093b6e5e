package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/ledger"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/services/holdings"
	"github.com/bobmcallan/ledgerd/internal/services/importer"
	"github.com/bobmcallan/ledgerd/internal/services/liability"
)

// Pipeline holds the shared phase implementations every provider
// processor drives in order: raw snapshot → balance normalization →
// transactions → holdings → liability attributes → balance recompute.
// Record-level processing is sequential so per-record failures stay
// isolated without cross-record coordination.
type Pipeline struct {
	Storage      interfaces.StorageManager
	Logger       *common.Logger
	Analyzer     *liability.Analyzer
	Materializer *holdings.Materializer
	Balances     interfaces.BalanceScheduler
}

// SetStatus updates the sync's user-facing phase text ("importing",
// "processing accounts", "calculating balances").
func (p *Pipeline) SetStatus(ctx context.Context, syncRec *models.Sync, text string) {
	syncRec.StatusText = text
	if err := p.Storage.Syncs().Save(ctx, syncRec); err != nil {
		p.Logger.Warn().Str("sync", syncRec.ID).Err(err).Msg("Failed to persist sync status")
	}
}

// StoreRawSnapshot persists the verbatim provider payload, independent of
// whether parsing later succeeds.
func (p *Pipeline) StoreRawSnapshot(ctx context.Context, syncRec *models.Sync, snap *interfaces.ProviderSnapshot) error {
	raw := &models.RawSnapshot{
		ID:           uuid.NewString(),
		ConnectionID: syncRec.ConnectionID,
		Provider:     syncRec.Provider,
		SyncID:       syncRec.ID,
		Payload:      snap.Raw,
		FetchedAt:    snap.FetchedAt,
	}
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = time.Now()
	}
	return p.Storage.RawSnapshots().Put(ctx, raw)
}

// LinkAccounts resolves provider accounts to ledger accounts via their
// AccountProvider links. It records linkage stats and flags the
// connection as pending account setup when any remain unlinked.
func (p *Pipeline) LinkAccounts(ctx context.Context, syncRec *models.Sync, snap *interfaces.ProviderSnapshot) (map[string]*models.Account, error) {
	linked := make(map[string]*models.Account)

	for _, data := range snap.Accounts {
		ap, err := p.Storage.Providers().FindAccountProvider(ctx, syncRec.Provider, data.ExternalID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				continue
			}
			return nil, err
		}
		account, err := p.Storage.Accounts().Get(ctx, ap.AccountID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				continue
			}
			return nil, err
		}
		linked[data.ExternalID] = account
	}

	CollectAccountStats(syncRec, len(snap.Accounts), len(linked))

	conn, err := p.Storage.Providers().GetConnection(ctx, syncRec.ConnectionID)
	if err == nil {
		pending := len(linked) < len(snap.Accounts)
		if conn.PendingAccountSetup != pending {
			conn.PendingAccountSetup = pending
			if err := p.Storage.Providers().SaveConnection(ctx, conn); err != nil {
				p.Logger.Warn().Str("connection", conn.ID).Err(err).Msg("Failed to flag pending account setup")
			}
		}
	}

	return linked, nil
}

// NormalizeBalance writes the correctly signed balance and canonical
// currency onto the account. For ambiguous liability balances the
// overpayment analyzer decides the sign; on unknown, the deterministic
// sign heuristic applies.
func (p *Pipeline) NormalizeBalance(ctx context.Context, syncRec *models.Sync, account *models.Account, data interfaces.ProviderAccountData) error {
	currency, err := ledger.NormalizeCurrency(data.Currency)
	if err != nil {
		RecordDataWarning(syncRec)
		currency = account.Currency
	}
	if currency != "" {
		account.Currency = currency
	}
	account.AvailableBalance = data.AvailableBalance

	balance := data.Balance
	if account.IsLiability() {
		classification := p.Analyzer.Classify(ctx, account, data.Balance, fallbackSamples(data))
		if classification == liability.ClassificationUnknown {
			classification = liability.SignHeuristic(data.Balance, data.AvailableBalance)
		}
		// Ledger convention: positive = owed, negative = overpayment.
		magnitude := data.Balance.Abs()
		if classification == liability.ClassificationCredit {
			balance = magnitude.Neg()
		} else {
			balance = magnitude
		}
	}

	account.Balance = balance
	return p.Storage.Accounts().Save(ctx, account)
}

// fallbackSamples converts the raw payload's transactions for the
// analyzer's fallback path, skipping unparseable amounts.
func fallbackSamples(data interfaces.ProviderAccountData) []liability.TxnSample {
	var samples []liability.TxnSample
	for _, tx := range data.Transactions {
		amount, err := importer.ParseAmount(tx.Amount)
		if err != nil {
			continue
		}
		date, err := importer.ParseDate(tx.Date)
		if err != nil {
			continue
		}
		samples = append(samples, liability.TxnSample{Amount: amount, Date: date})
	}
	return samples
}

// ImportTransactions drives every transaction of one provider account
// through the import adapter. Each record's failure is captured as a
// result; the batch never aborts on a bad record.
func (p *Pipeline) ImportTransactions(ctx context.Context, account *models.Account, data interfaces.ProviderAccountData, source string) []RecordResult {
	im := importer.NewAccountImporter(p.Storage, p.Logger, account)
	results := make([]RecordResult, 0, len(data.Transactions))

	for _, tx := range data.Transactions {
		results = append(results, p.importOne(ctx, im, account, tx, source))
	}
	return results
}

func (p *Pipeline) importOne(ctx context.Context, im *importer.AccountImporter, account *models.Account, tx interfaces.ProviderTransaction, source string) RecordResult {
	amount, err := importer.ParseAmount(tx.Amount)
	if err != nil {
		p.Logger.Warn().Str("external_id", tx.ExternalID).Err(err).Msg("Skipping transaction")
		return RecordResult{ExternalID: tx.ExternalID, Outcome: OutcomeFailed, Err: err}
	}

	merchantID := ""
	if tx.ProviderMerchantID != "" {
		merchant, err := im.FindOrCreateMerchant(ctx, importer.MerchantImport{
			ProviderMerchantID: tx.ProviderMerchantID,
			Name:               tx.MerchantName,
			Source:             source,
			WebsiteURL:         tx.MerchantWebsite,
		})
		if err != nil {
			p.Logger.Warn().Str("merchant", tx.ProviderMerchantID).Err(err).Msg("Merchant resolution failed")
		} else {
			merchantID = merchant.ID
		}
	}

	existing, findErr := p.Storage.Entries().FindByExternalID(ctx, account.ID, tx.ExternalID, source)
	outcome := OutcomeImported
	if findErr == nil && existing != nil {
		outcome = OutcomeUpdated
	}

	_, err = im.ImportTransaction(ctx, importer.TransactionImport{
		ExternalID:        tx.ExternalID,
		Amount:            amount,
		Currency:          tx.Currency,
		Date:              tx.Date,
		Name:              tx.Name,
		Source:            source,
		Pending:           tx.Pending,
		PendingExternalID: tx.PendingExternalID,
		MerchantID:        merchantID,
		CategoryID:        tx.Category,
	})
	if err != nil {
		var verr *importer.ValidationError
		if errors.As(err, &verr) {
			p.Logger.Warn().Str("external_id", tx.ExternalID).Err(err).Msg("Skipping invalid transaction")
		}
		return RecordResult{ExternalID: tx.ExternalID, Outcome: OutcomeFailed, Err: err}
	}
	return RecordResult{ExternalID: tx.ExternalID, Outcome: outcome}
}

// ImportTrades drives every trade of one provider account through the
// import adapter.
func (p *Pipeline) ImportTrades(ctx context.Context, account *models.Account, data interfaces.ProviderAccountData, source string) []RecordResult {
	im := importer.NewAccountImporter(p.Storage, p.Logger, account)
	results := make([]RecordResult, 0, len(data.Trades))

	for _, tr := range data.Trades {
		qty, err := importer.ParseAmount(tr.Qty)
		if err != nil {
			results = append(results, RecordResult{ExternalID: tr.ExternalID, Outcome: OutcomeFailed, Err: err})
			continue
		}
		price, err := importer.ParseAmount(tr.Price)
		if err != nil {
			results = append(results, RecordResult{ExternalID: tr.ExternalID, Outcome: OutcomeFailed, Err: err})
			continue
		}

		_, err = im.ImportTrade(ctx, importer.TradeImport{
			ExternalID: tr.ExternalID,
			Symbol:     tr.Symbol,
			Exchange:   tr.Exchange,
			Qty:        qty,
			Price:      price,
			Currency:   tr.Currency,
			Date:       tr.Date,
			Name:       tr.Name,
			Source:     source,
		})
		if err != nil {
			results = append(results, RecordResult{ExternalID: tr.ExternalID, Outcome: OutcomeFailed, Err: err})
			continue
		}
		results = append(results, RecordResult{ExternalID: tr.ExternalID, Outcome: OutcomeImported})
	}
	return results
}

// ImportHoldings drives provider-reported holdings through the import
// adapter, then reconciles them in reverse mode so provider cost basis
// survives when no local trades exist.
func (p *Pipeline) ImportHoldings(ctx context.Context, account *models.Account, data interfaces.ProviderAccountData, accountProviderID, source string) []RecordResult {
	im := importer.NewAccountImporter(p.Storage, p.Logger, account)
	results := make([]RecordResult, 0, len(data.Holdings))

	for _, h := range data.Holdings {
		result := p.importHolding(ctx, im, h, accountProviderID, source)
		results = append(results, result)
	}

	if _, err := p.Materializer.Reverse(ctx, account); err != nil {
		p.Logger.Warn().Str("account", account.ID).Err(err).Msg("Reverse materialization failed")
	}
	return results
}

func (p *Pipeline) importHolding(ctx context.Context, im *importer.AccountImporter, h interfaces.ProviderHolding, accountProviderID, source string) RecordResult {
	qty, err := importer.ParseAmount(h.Qty)
	if err != nil {
		return RecordResult{ExternalID: h.ExternalID, Outcome: OutcomeFailed, Err: err}
	}
	price, err := importer.ParseAmount(h.Price)
	if err != nil {
		return RecordResult{ExternalID: h.ExternalID, Outcome: OutcomeFailed, Err: err}
	}
	amount, err := importer.ParseAmount(h.Amount)
	if err != nil {
		return RecordResult{ExternalID: h.ExternalID, Outcome: OutcomeFailed, Err: err}
	}

	hi := importer.HoldingImport{
		Symbol:               h.Symbol,
		Exchange:             h.Exchange,
		Qty:                  qty,
		Amount:               amount,
		Currency:             h.Currency,
		Date:                 h.Date,
		Price:                price,
		ExternalID:           h.ExternalID,
		AccountProviderID:    accountProviderID,
		Source:               source,
		CostBasisSource:      models.CostBasisProvider,
		DeleteFutureHoldings: true,
	}
	if h.CostBasis != "" {
		cb, err := importer.ParseAmount(h.CostBasis)
		if err == nil {
			hi.CostBasis = &cb
		}
	}

	if _, err := im.ImportHolding(ctx, hi); err != nil {
		return RecordResult{ExternalID: h.ExternalID, Outcome: OutcomeFailed, Err: err}
	}
	return RecordResult{ExternalID: h.ExternalID, Outcome: OutcomeImported}
}

// ImportLiabilityAttributes applies provider-reported liability fields
// under provider authority, so user or rule edits survive.
func (p *Pipeline) ImportLiabilityAttributes(ctx context.Context, account *models.Account, data interfaces.ProviderAccountData) error {
	if !account.IsLiability() {
		return nil
	}
	im := importer.NewAccountImporter(p.Storage, p.Logger, account)
	return im.UpdateAccountableAttributes(ctx, importer.AccountableAttributes{
		CreditLimit:  data.CreditLimit,
		APR:          data.APR,
		InterestRate: data.InterestRate,
	}, models.AuthorityProvider)
}

// ScheduleBalanceRecalc hands affected accounts to the balance job. A
// failure here is logged, never escalated to fail the sync.
func (p *Pipeline) ScheduleBalanceRecalc(ctx context.Context, accountIDs []string) {
	if p.Balances == nil || len(accountIDs) == 0 {
		return
	}
	if err := p.Balances.ScheduleRecalc(ctx, accountIDs); err != nil {
		p.Logger.Warn().Int("accounts", len(accountIDs)).Err(err).Msg("Balance recompute scheduling failed")
	}
}
