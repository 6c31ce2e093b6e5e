package storage

import (
	"fmt"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/storage/surrealstore"
)

// Backend type constants.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"

	RawBackendFile      = "file"
	RawBackendSurrealDB = "surrealdb"
)

// Manager coordinates the ledger store, the raw-snapshot store and the
// memo cache behind one StorageManager.
type Manager struct {
	ledger interfaces.StorageManager
	raw    interfaces.RawSnapshotStore
	logger *common.Logger
}

// NewManager creates a storage manager from configuration. Supported
// ledger backends: "badger" (default), "memory". Supported raw backends:
// "file" (default), "surrealdb".
func NewManager(logger *common.Logger, config *common.StorageConfig) (interfaces.StorageManager, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendBadger
	}

	var ledger interfaces.StorageManager
	switch backend {
	case BackendBadger:
		db, err := NewBadgerDB(logger, config.Path)
		if err != nil {
			return nil, err
		}
		ledger = &badgerManager{db: db}

	case BackendMemory:
		ledger = NewMemoryStore()

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, memory)", backend)
	}

	raw, err := newRawStore(logger, config, ledger)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	return &Manager{ledger: ledger, raw: raw, logger: logger}, nil
}

func newRawStore(logger *common.Logger, config *common.StorageConfig, ledger interfaces.StorageManager) (interfaces.RawSnapshotStore, error) {
	backend := config.Raw.Backend
	if backend == "" {
		backend = RawBackendFile
	}

	switch backend {
	case RawBackendFile:
		// The memory ledger backend keeps snapshots in memory too, so a
		// dev/test run leaves nothing on disk.
		if _, ok := ledger.(*MemoryStore); ok {
			return ledger.RawSnapshots(), nil
		}
		return NewFileRawStore(logger, config.Raw.Path)

	case RawBackendSurrealDB:
		return surrealstore.NewRawStore(logger, &config.Raw.SurrealDB)

	default:
		return nil, fmt.Errorf("unknown raw snapshot backend: %s (supported: file, surrealdb)", backend)
	}
}

func (m *Manager) Accounts() interfaces.AccountStore         { return m.ledger.Accounts() }
func (m *Manager) Entries() interfaces.EntryStore            { return m.ledger.Entries() }
func (m *Manager) Holdings() interfaces.HoldingStore         { return m.ledger.Holdings() }
func (m *Manager) Merchants() interfaces.MerchantStore       { return m.ledger.Merchants() }
func (m *Manager) Securities() interfaces.SecurityStore      { return m.ledger.Securities() }
func (m *Manager) Providers() interfaces.ProviderStore       { return m.ledger.Providers() }
func (m *Manager) Syncs() interfaces.SyncStore               { return m.ledger.Syncs() }
func (m *Manager) RawSnapshots() interfaces.RawSnapshotStore { return m.raw }
func (m *Manager) MemoCache() interfaces.MemoCache           { return m.ledger.MemoCache() }

func (m *Manager) Close() error {
	if err := m.raw.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to close raw snapshot store")
	}
	return m.ledger.Close()
}

// badgerManager groups the badger-backed stores behind StorageManager.
type badgerManager struct {
	db *BadgerDB
}

func (m *badgerManager) Accounts() interfaces.AccountStore    { return &accountStore{db: m.db} }
func (m *badgerManager) Entries() interfaces.EntryStore       { return &entryStore{db: m.db} }
func (m *badgerManager) Holdings() interfaces.HoldingStore    { return &holdingStore{db: m.db} }
func (m *badgerManager) Merchants() interfaces.MerchantStore  { return &merchantStore{db: m.db} }
func (m *badgerManager) Securities() interfaces.SecurityStore { return &securityStore{db: m.db} }
func (m *badgerManager) Providers() interfaces.ProviderStore  { return &providerStore{db: m.db} }
func (m *badgerManager) Syncs() interfaces.SyncStore          { return &syncStore{db: m.db} }
func (m *badgerManager) RawSnapshots() interfaces.RawSnapshotStore {
	// Raw snapshots always live in a dedicated store; the manager wires
	// the configured one in front of this backend.
	return nil
}
func (m *badgerManager) MemoCache() interfaces.MemoCache { return &badgerMemo{db: m.db} }
func (m *badgerManager) Close() error                    { return m.db.Close() }
