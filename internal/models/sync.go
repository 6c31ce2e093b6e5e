package models

import "time"

// SyncStatus is the lifecycle state of one sync run.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// Stats keys merged into Sync.Stats by the collectors.
const (
	StatTotalAccounts     = "total_accounts"
	StatLinkedAccounts    = "linked_accounts"
	StatTxImported        = "tx_imported"
	StatTxUpdated         = "tx_updated"
	StatTxSkipped         = "tx_skipped"
	StatHoldingsFound     = "holdings_found"
	StatHoldingsProcessed = "holdings_processed"
	StatTotalErrors       = "total_errors"
	StatRateLimited       = "rate_limited"
	StatDataWarnings      = "data_warnings"
	StatErrorDetails      = "error_details"
)

// Sync tracks one provider-connection sync run. The engine only merges
// into Stats and sets Status/Error on fatal failure; committed ledger
// writes from earlier phases are never rolled back.
type Sync struct {
	ID           string `json:"id" badgerhold:"key"`
	ConnectionID string `json:"connection_id" badgerhold:"index"`
	Provider     string `json:"provider"`

	Status     SyncStatus     `json:"status"`
	StatusText string         `json:"status_text,omitempty"`
	Stats      map[string]any `json:"sync_stats,omitempty"`
	Error      string         `json:"error,omitempty"`

	WindowStartDate time.Time `json:"window_start_date"`
	WindowEndDate   time.Time `json:"window_end_date"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}
