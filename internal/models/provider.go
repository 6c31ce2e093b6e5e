package models

import "time"

// ProviderConnection is one set of credentials against one external
// provider. A connection owns zero or more provider-side accounts and is
// the unit of sync serialization.
type ProviderConnection struct {
	ID       string `json:"id" badgerhold:"key"`
	FamilyID string `json:"family_id" badgerhold:"index"`
	Provider string `json:"provider"`

	// PendingAccountSetup is set when the provider reports accounts that
	// have not been linked to a ledger account yet.
	PendingAccountSetup bool `json:"pending_account_setup"`

	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountProvider is the explicit, detachable join between a ledger
// Account and one provider-side account record. Its existence, not a
// foreign key on Account, answers "is this account linked to provider X".
type AccountProvider struct {
	ID                string `json:"id" badgerhold:"key"`
	AccountID         string `json:"account_id" badgerhold:"index"`
	ConnectionID      string `json:"connection_id" badgerhold:"index"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"provider_account_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RawSnapshot is the verbatim provider payload stored per sync run for
// auditability and replay. It is never parsed again after ingestion.
type RawSnapshot struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Provider     string    `json:"provider"`
	SyncID       string    `json:"sync_id"`
	Payload      []byte    `json:"payload"`
	FetchedAt    time.Time `json:"fetched_at"`
}
