// Package brokerage syncs investment accounts: trades, holdings and cash.
package brokerage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/services/syncer"
)

// Source is the provider tag written onto imported entries.
const Source = "brokerage"

// Processor drives the sync pipeline for brokerage connections. Accounts
// whose provider reports holdings directly are reconciled in reverse
// mode; trade-only accounts are materialized forward from trade history.
type Processor struct {
	client   interfaces.ProviderClient
	pipeline *syncer.Pipeline
	logger   *common.Logger
}

// NewProcessor creates the brokerage processor.
func NewProcessor(client interfaces.ProviderClient, pipeline *syncer.Pipeline, logger *common.Logger) *Processor {
	return &Processor{client: client, pipeline: pipeline, logger: logger}
}

func (p *Processor) Name() string { return Source }

func (p *Processor) Process(ctx context.Context, syncRec *models.Sync) error {
	if p.client == nil {
		return fmt.Errorf("brokerage credentials not configured")
	}

	snap, err := p.client.FetchSnapshot(ctx, interfaces.SyncWindow{
		Start: syncRec.WindowStartDate,
		End:   syncRec.WindowEndDate,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch brokerage snapshot: %w", err)
	}

	if err := p.pipeline.StoreRawSnapshot(ctx, syncRec, snap); err != nil {
		return fmt.Errorf("failed to store raw snapshot: %w", err)
	}

	p.pipeline.SetStatus(ctx, syncRec, "processing accounts")
	linked, err := p.pipeline.LinkAccounts(ctx, syncRec, snap)
	if err != nil {
		return err
	}

	var summary syncer.BatchSummary
	holdingsFound, holdingsProcessed := 0, 0
	var touched []string

	for _, data := range snap.Accounts {
		account, ok := linked[data.ExternalID]
		if !ok {
			continue
		}

		if err := p.pipeline.NormalizeBalance(ctx, syncRec, account, data); err != nil {
			p.logger.Warn().Str("account", account.ID).Err(err).Msg("Balance normalization failed")
			syncer.RecordDataWarning(syncRec)
		}

		tradeResults := p.pipeline.ImportTrades(ctx, account, data, Source)
		batch := syncer.FoldResults(tradeResults)
		summary.Imported += batch.Imported
		summary.Updated += batch.Updated
		summary.Skipped += batch.Skipped
		summary.Errors = append(summary.Errors, batch.Errors...)

		if len(data.Holdings) > 0 {
			// Provider owns the holdings horizon: import then reconcile
			// in reverse mode, never purging.
			ap, err := p.pipeline.Storage.Providers().FindAccountProvider(ctx, Source, data.ExternalID)
			apID := ""
			if err == nil {
				apID = ap.ID
			}
			holdingsFound += len(data.Holdings)
			hr := p.pipeline.ImportHoldings(ctx, account, data, apID, Source)
			hb := syncer.FoldResults(hr)
			holdingsProcessed += hb.Imported + hb.Updated
			summary.Errors = append(summary.Errors, hb.Errors...)
		} else {
			// Trades are the source of truth: rebuild the full per-day
			// holding set forward and purge what history no longer backs.
			result, err := p.pipeline.Materializer.Forward(ctx, account)
			if err != nil {
				p.logger.Warn().Str("account", account.ID).Err(err).Msg("Forward materialization failed")
				syncer.RecordDataWarning(syncRec)
			} else {
				holdingsProcessed += result.Created + result.Updated
			}
		}

		touched = append(touched, account.ID)
	}

	syncer.CollectTransactionStats(syncRec, summary.Imported, summary.Updated, summary.Skipped)
	syncer.CollectHoldingStats(syncRec, holdingsFound, holdingsProcessed)
	syncer.CollectErrorStats(syncRec, summary.Errors)

	p.pipeline.SetStatus(ctx, syncRec, "calculating balances")
	p.pipeline.ScheduleBalanceRecalc(ctx, touched)
	return nil
}
