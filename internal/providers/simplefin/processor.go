// Package simplefin syncs bank-aggregator data from a SimpleFIN bridge.
package simplefin

import (
	"context"
	"fmt"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/services/syncer"
)

// Source is the provider tag written onto imported entries.
const Source = "simplefin"

// Processor drives the sync pipeline for SimpleFIN-connected banks.
type Processor struct {
	client   interfaces.ProviderClient
	pipeline *syncer.Pipeline
	logger   *common.Logger
}

// NewProcessor creates the SimpleFIN processor. A nil client means
// credentials were never configured; the sync fails fast.
func NewProcessor(client interfaces.ProviderClient, pipeline *syncer.Pipeline, logger *common.Logger) *Processor {
	return &Processor{client: client, pipeline: pipeline, logger: logger}
}

func (p *Processor) Name() string { return Source }

// Process runs the ordered phases of one SimpleFIN sync.
func (p *Processor) Process(ctx context.Context, syncRec *models.Sync) error {
	if p.client == nil {
		return fmt.Errorf("simplefin credentials not configured")
	}

	snap, err := p.client.FetchSnapshot(ctx, interfaces.SyncWindow{
		Start: syncRec.WindowStartDate,
		End:   syncRec.WindowEndDate,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch simplefin snapshot: %w", err)
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

		results := p.pipeline.ImportTransactions(ctx, account, data, Source)
		batch := syncer.FoldResults(results)
		summary.Imported += batch.Imported
		summary.Updated += batch.Updated
		summary.Skipped += batch.Skipped
		summary.Errors = append(summary.Errors, batch.Errors...)

		if err := p.pipeline.ImportLiabilityAttributes(ctx, account, data); err != nil {
			p.logger.Warn().Str("account", account.ID).Err(err).Msg("Liability attribute import failed")
			syncer.RecordDataWarning(syncRec)
		}

		touched = append(touched, account.ID)
	}

	syncer.CollectTransactionStats(syncRec, summary.Imported, summary.Updated, summary.Skipped)
	syncer.CollectErrorStats(syncRec, summary.Errors)

	p.pipeline.SetStatus(ctx, syncRec, "calculating balances")
	p.pipeline.ScheduleBalanceRecalc(ctx, touched)
	return nil
}
