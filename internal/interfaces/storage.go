// Package interfaces defines service contracts for ledgerd
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/ledgerd/internal/models"
)

// Sentinel errors shared by all storage backends.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by Insert when the record's uniqueness key
	// already exists. Callers treat it as "fetch and update instead".
	ErrDuplicate = errors.New("duplicate record")
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	Accounts() AccountStore
	Entries() EntryStore
	Holdings() HoldingStore
	Merchants() MerchantStore
	Securities() SecurityStore
	Providers() ProviderStore
	Syncs() SyncStore
	RawSnapshots() RawSnapshotStore
	MemoCache() MemoCache

	Close() error
}

// AccountStore manages ledger accounts.
type AccountStore interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	Save(ctx context.Context, account *models.Account) error
	List(ctx context.Context) ([]*models.Account, error)
}

// EntryStore manages ledger entries (transactions and trades).
type EntryStore interface {
	Get(ctx context.Context, id string) (*models.Entry, error)

	// FindByExternalID looks up the unique entry for
	// (account, external_id, source). Returns ErrNotFound when absent.
	FindByExternalID(ctx context.Context, accountID, externalID, source string) (*models.Entry, error)

	// Insert creates a new entry, returning ErrDuplicate when an entry
	// with the same (account, external_id, source) already exists.
	Insert(ctx context.Context, entry *models.Entry) error
	Update(ctx context.Context, entry *models.Entry) error
	Delete(ctx context.Context, id string) error

	ListByAccount(ctx context.Context, accountID string) ([]*models.Entry, error)
	ListByAccountSince(ctx context.Context, accountID string, since time.Time) ([]*models.Entry, error)
}

// HoldingStore manages derived per-day holdings.
type HoldingStore interface {
	Get(ctx context.Context, id string) (*models.Holding, error)

	// FindByKey looks up the unique holding for
	// (account, security, date, currency). Returns ErrNotFound when absent.
	FindByKey(ctx context.Context, accountID, securityID string, date time.Time, currency string) (*models.Holding, error)

	Save(ctx context.Context, holding *models.Holding) error
	Delete(ctx context.Context, id string) error

	ListByAccount(ctx context.Context, accountID string) ([]*models.Holding, error)

	// DeleteAfter removes holdings for (account, security) dated strictly
	// after the given day. Returns the number removed.
	DeleteAfter(ctx context.Context, accountID, securityID string, date time.Time) (int, error)

	// NullAccountProviderRefs clears AccountProviderID on holdings that
	// reference a detached provider link. Returns the number touched.
	NullAccountProviderRefs(ctx context.Context, accountProviderID string) (int, error)
}

// MerchantStore manages provider-deduplicated merchants.
type MerchantStore interface {
	Get(ctx context.Context, id string) (*models.Merchant, error)
	FindByProviderID(ctx context.Context, source, providerMerchantID string) (*models.Merchant, error)
	Save(ctx context.Context, merchant *models.Merchant) error
}

// SecurityStore manages securities referenced by trades and holdings.
type SecurityStore interface {
	Get(ctx context.Context, id string) (*models.Security, error)
	FindBySymbol(ctx context.Context, symbol, exchange string) (*models.Security, error)
	Save(ctx context.Context, security *models.Security) error
}

// ProviderStore manages provider connections and account links.
type ProviderStore interface {
	GetConnection(ctx context.Context, id string) (*models.ProviderConnection, error)
	SaveConnection(ctx context.Context, conn *models.ProviderConnection) error
	ListConnections(ctx context.Context) ([]*models.ProviderConnection, error)

	GetAccountProvider(ctx context.Context, id string) (*models.AccountProvider, error)
	FindAccountProvider(ctx context.Context, provider, providerAccountID string) (*models.AccountProvider, error)
	SaveAccountProvider(ctx context.Context, ap *models.AccountProvider) error
	DeleteAccountProvider(ctx context.Context, id string) error
	ListAccountProviders(ctx context.Context, connectionID string) ([]*models.AccountProvider, error)
}

// SyncStore manages sync run records.
type SyncStore interface {
	Get(ctx context.Context, id string) (*models.Sync, error)
	Save(ctx context.Context, sync *models.Sync) error
	ListByConnection(ctx context.Context, connectionID string) ([]*models.Sync, error)
}

// RawSnapshotStore persists verbatim provider payloads for audit/replay.
type RawSnapshotStore interface {
	Put(ctx context.Context, snapshot *models.RawSnapshot) error
	List(ctx context.Context, connectionID string) ([]*models.RawSnapshot, error)
	Close() error
}

// MemoCache is a small TTL key-value store used for sticky classification
// memos. Read-then-write races are tolerated; staleness is bounded by TTL.
type MemoCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
