package app

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/services/syncer"
)

// StartScheduler launches the background sync loop. Connections whose
// last sync is older than the configured interval are re-synced; a
// connection already in flight is skipped, not queued.
func (a *App) StartScheduler() {
	interval := a.Config.Scheduler.GetSyncInterval()
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel

	go runSyncScheduler(ctx, a.SyncService, a.Storage, a.Logger, interval)
	a.Logger.Info().Dur("interval", interval).Msg("Sync scheduler started")
}

func runSyncScheduler(ctx context.Context, svc *syncer.Service, storage interfaces.StorageManager, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Sync scheduler: stopped")
			return
		case <-ticker.C:
			syncDueConnections(ctx, svc, storage, logger, interval)
		}
	}
}

func syncDueConnections(ctx context.Context, svc *syncer.Service, storage interfaces.StorageManager, logger *common.Logger, interval time.Duration) {
	conns, err := storage.Providers().ListConnections(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Sync scheduler: failed to list connections")
		return
	}

	cutoff := time.Now().Add(-interval)
	for _, conn := range conns {
		if conn.LastSyncedAt.After(cutoff) {
			continue
		}
		if svc.InFlight(conn.ID) {
			continue
		}

		start := time.Now()
		if _, err := svc.Run(ctx, conn.ID); err != nil {
			if errors.Is(err, syncer.ErrSyncInFlight) {
				continue
			}
			logger.Warn().
				Str("connection", conn.ID).
				Str("provider", conn.Provider).
				Err(err).
				Msg("Sync scheduler: sync failed")
			continue
		}
		logger.Info().
			Str("connection", conn.ID).
			Str("provider", conn.Provider).
			Dur("elapsed", time.Since(start)).
			Msg("Sync scheduler: sync complete")
	}
}
