package syncer

import "github.com/bobmcallan/ledgerd/internal/models"

// maxErrorDetails caps the error sample kept on a sync record.
const maxErrorDetails = 10

// MergeStats merges named counters into the sync record's stats map.
// Merge assigns per key, never replaces the whole map, so multiple phases
// contribute independently. Calling again with updated values is safe.
func MergeStats(sync *models.Sync, stats map[string]any) {
	if sync.Stats == nil {
		sync.Stats = make(map[string]any)
	}
	for k, v := range stats {
		sync.Stats[k] = v
	}
}

// IncrementStat adds delta to an integer counter in the stats map.
func IncrementStat(sync *models.Sync, key string, delta int) {
	if sync.Stats == nil {
		sync.Stats = make(map[string]any)
	}
	current, _ := sync.Stats[key].(int)
	sync.Stats[key] = current + delta
}

// CollectAccountStats records account linkage counts.
func CollectAccountStats(sync *models.Sync, total, linked int) {
	MergeStats(sync, map[string]any{
		models.StatTotalAccounts:  total,
		models.StatLinkedAccounts: linked,
	})
}

// CollectTransactionStats records transaction import counts.
func CollectTransactionStats(sync *models.Sync, imported, updated, skipped int) {
	MergeStats(sync, map[string]any{
		models.StatTxImported: imported,
		models.StatTxUpdated:  updated,
		models.StatTxSkipped:  skipped,
	})
}

// CollectHoldingStats records holdings counts.
func CollectHoldingStats(sync *models.Sync, found, processed int) {
	MergeStats(sync, map[string]any{
		models.StatHoldingsFound:     found,
		models.StatHoldingsProcessed: processed,
	})
}

// CollectErrorStats folds per-record errors into the stats map: a total,
// a warning count and a bounded sample of details. Individual record
// failures surface only through these aggregates.
func CollectErrorStats(sync *models.Sync, errs []RecordError) {
	if len(errs) == 0 {
		return
	}
	if sync.Stats == nil {
		sync.Stats = make(map[string]any)
	}

	total, _ := sync.Stats[models.StatTotalErrors].(int)
	sync.Stats[models.StatTotalErrors] = total + len(errs)

	details, _ := sync.Stats[models.StatErrorDetails].([]string)
	for _, e := range errs {
		if len(details) >= maxErrorDetails {
			break
		}
		details = append(details, e.ExternalID+": "+e.Reason)
	}
	sync.Stats[models.StatErrorDetails] = details
}

// RecordRateLimited increments the rate-limit counter.
func RecordRateLimited(sync *models.Sync) {
	IncrementStat(sync, models.StatRateLimited, 1)
}

// RecordDataWarning increments the data-warning counter.
func RecordDataWarning(sync *models.Sync) {
	IncrementStat(sync, models.StatDataWarnings, 1)
}
