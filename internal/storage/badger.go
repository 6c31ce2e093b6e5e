// Package storage provides persistence for the ledger with pluggable backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
)

// BadgerDB wraps badgerhold for typed storage
type BadgerDB struct {
	store  *badgerhold.Store
	logger *common.Logger
}

// NewBadgerDB creates a new BadgerDB instance
func NewBadgerDB(logger *common.Logger, path string) (*BadgerDB, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil // Disable badger's internal logging

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	logger.Debug().Str("path", path).Msg("BadgerDB opened")

	return &BadgerDB{store: store, logger: logger}, nil
}

// Close closes the database
func (db *BadgerDB) Close() error {
	if db.store != nil {
		return db.store.Close()
	}
	return nil
}

// accountStore implements AccountStore using BadgerDB
type accountStore struct {
	db *BadgerDB
}

func (s *accountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.store.Get(id, &account); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (s *accountStore) Save(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = account.UpdatedAt
	}
	if err := s.db.store.Upsert(account.ID, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *accountStore) List(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	if err := s.db.store.Find(&accounts, nil); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// entryStore implements EntryStore using BadgerDB
type entryStore struct {
	db *BadgerDB
}

func (s *entryStore) Get(ctx context.Context, id string) (*models.Entry, error) {
	var entry models.Entry
	if err := s.db.store.Get(id, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return &entry, nil
}

func (s *entryStore) FindByExternalID(ctx context.Context, accountID, externalID, source string) (*models.Entry, error) {
	var entries []*models.Entry
	query := badgerhold.Where("AccountID").Eq(accountID).
		And("ExternalID").Eq(externalID).
		And("Source").Eq(source)
	if err := s.db.store.Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to find entry by external id: %w", err)
	}
	if len(entries) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return entries[0], nil
}

func (s *entryStore) Insert(ctx context.Context, entry *models.Entry) error {
	// Uniqueness on (account, external_id, source) resolves via
	// find-or-create; a concurrent duplicate surfaces as ErrDuplicate.
	if _, err := s.FindByExternalID(ctx, entry.AccountID, entry.ExternalID, entry.Source); err == nil {
		return interfaces.ErrDuplicate
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return err
	}

	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := s.db.store.Insert(entry.ID, entry); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return interfaces.ErrDuplicate
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *entryStore) Update(ctx context.Context, entry *models.Entry) error {
	entry.UpdatedAt = time.Now()
	if err := s.db.store.Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

func (s *entryStore) Delete(ctx context.Context, id string) error {
	if err := s.db.store.Delete(id, &models.Entry{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (s *entryStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Entry, error) {
	var entries []*models.Entry
	if err := s.db.store.Find(&entries, badgerhold.Where("AccountID").Eq(accountID)); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

func (s *entryStore) ListByAccountSince(ctx context.Context, accountID string, since time.Time) ([]*models.Entry, error) {
	entries, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	filtered := make([]*models.Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Date.Before(since) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// holdingStore implements HoldingStore using BadgerDB
type holdingStore struct {
	db *BadgerDB
}

func (s *holdingStore) Get(ctx context.Context, id string) (*models.Holding, error) {
	var holding models.Holding
	if err := s.db.store.Get(id, &holding); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return &holding, nil
}

func (s *holdingStore) FindByKey(ctx context.Context, accountID, securityID string, date time.Time, currency string) (*models.Holding, error) {
	holdings, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	key := models.HoldingKey(accountID, securityID, date, currency)
	for _, h := range holdings {
		if h.Key() == key {
			return h, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *holdingStore) Save(ctx context.Context, holding *models.Holding) error {
	holding.UpdatedAt = time.Now()
	if holding.CreatedAt.IsZero() {
		holding.CreatedAt = holding.UpdatedAt
	}
	if err := s.db.store.Upsert(holding.ID, holding); err != nil {
		return fmt.Errorf("failed to save holding: %w", err)
	}
	return nil
}

func (s *holdingStore) Delete(ctx context.Context, id string) error {
	if err := s.db.store.Delete(id, &models.Holding{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

func (s *holdingStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Holding, error) {
	var holdings []*models.Holding
	if err := s.db.store.Find(&holdings, badgerhold.Where("AccountID").Eq(accountID)); err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	return holdings, nil
}

func (s *holdingStore) DeleteAfter(ctx context.Context, accountID, securityID string, date time.Time) (int, error) {
	holdings, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	cutoff := models.DateOnly(date)
	deleted := 0
	for _, h := range holdings {
		if h.SecurityID == securityID && models.DateOnly(h.Date).After(cutoff) {
			if err := s.Delete(ctx, h.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *holdingStore) NullAccountProviderRefs(ctx context.Context, accountProviderID string) (int, error) {
	var holdings []*models.Holding
	if err := s.db.store.Find(&holdings, badgerhold.Where("AccountProviderID").Eq(accountProviderID)); err != nil {
		return 0, fmt.Errorf("failed to find holdings by provider link: %w", err)
	}
	touched := 0
	for _, h := range holdings {
		h.AccountProviderID = ""
		if err := s.Save(ctx, h); err != nil {
			return touched, err
		}
		touched++
	}
	return touched, nil
}

// merchantStore implements MerchantStore using BadgerDB
type merchantStore struct {
	db *BadgerDB
}

func (s *merchantStore) Get(ctx context.Context, id string) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := s.db.store.Get(id, &merchant); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return &merchant, nil
}

func (s *merchantStore) FindByProviderID(ctx context.Context, source, providerMerchantID string) (*models.Merchant, error) {
	var merchants []*models.Merchant
	query := badgerhold.Where("Source").Eq(source).And("ProviderMerchantID").Eq(providerMerchantID)
	if err := s.db.store.Find(&merchants, query); err != nil {
		return nil, fmt.Errorf("failed to find merchant: %w", err)
	}
	if len(merchants) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return merchants[0], nil
}

func (s *merchantStore) Save(ctx context.Context, merchant *models.Merchant) error {
	merchant.UpdatedAt = time.Now()
	if merchant.CreatedAt.IsZero() {
		merchant.CreatedAt = merchant.UpdatedAt
	}
	if err := s.db.store.Upsert(merchant.ID, merchant); err != nil {
		return fmt.Errorf("failed to save merchant: %w", err)
	}
	return nil
}

// securityStore implements SecurityStore using BadgerDB
type securityStore struct {
	db *BadgerDB
}

func (s *securityStore) Get(ctx context.Context, id string) (*models.Security, error) {
	var security models.Security
	if err := s.db.store.Get(id, &security); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get security: %w", err)
	}
	return &security, nil
}

func (s *securityStore) FindBySymbol(ctx context.Context, symbol, exchange string) (*models.Security, error) {
	var securities []*models.Security
	query := badgerhold.Where("Symbol").Eq(symbol).And("Exchange").Eq(exchange)
	if err := s.db.store.Find(&securities, query); err != nil {
		return nil, fmt.Errorf("failed to find security: %w", err)
	}
	if len(securities) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return securities[0], nil
}

func (s *securityStore) Save(ctx context.Context, security *models.Security) error {
	if security.CreatedAt.IsZero() {
		security.CreatedAt = time.Now()
	}
	if err := s.db.store.Upsert(security.ID, security); err != nil {
		return fmt.Errorf("failed to save security: %w", err)
	}
	return nil
}

// providerStore implements ProviderStore using BadgerDB
type providerStore struct {
	db *BadgerDB
}

func (s *providerStore) GetConnection(ctx context.Context, id string) (*models.ProviderConnection, error) {
	var conn models.ProviderConnection
	if err := s.db.store.Get(id, &conn); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get provider connection: %w", err)
	}
	return &conn, nil
}

func (s *providerStore) SaveConnection(ctx context.Context, conn *models.ProviderConnection) error {
	conn.UpdatedAt = time.Now()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = conn.UpdatedAt
	}
	if err := s.db.store.Upsert(conn.ID, conn); err != nil {
		return fmt.Errorf("failed to save provider connection: %w", err)
	}
	return nil
}

func (s *providerStore) ListConnections(ctx context.Context) ([]*models.ProviderConnection, error) {
	var conns []*models.ProviderConnection
	if err := s.db.store.Find(&conns, nil); err != nil {
		return nil, fmt.Errorf("failed to list provider connections: %w", err)
	}
	return conns, nil
}

func (s *providerStore) GetAccountProvider(ctx context.Context, id string) (*models.AccountProvider, error) {
	var ap models.AccountProvider
	if err := s.db.store.Get(id, &ap); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account provider: %w", err)
	}
	return &ap, nil
}

func (s *providerStore) FindAccountProvider(ctx context.Context, provider, providerAccountID string) (*models.AccountProvider, error) {
	var aps []*models.AccountProvider
	query := badgerhold.Where("Provider").Eq(provider).And("ProviderAccountID").Eq(providerAccountID)
	if err := s.db.store.Find(&aps, query); err != nil {
		return nil, fmt.Errorf("failed to find account provider: %w", err)
	}
	if len(aps) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return aps[0], nil
}

func (s *providerStore) SaveAccountProvider(ctx context.Context, ap *models.AccountProvider) error {
	ap.UpdatedAt = time.Now()
	if ap.CreatedAt.IsZero() {
		ap.CreatedAt = ap.UpdatedAt
	}
	if err := s.db.store.Upsert(ap.ID, ap); err != nil {
		return fmt.Errorf("failed to save account provider: %w", err)
	}
	return nil
}

func (s *providerStore) DeleteAccountProvider(ctx context.Context, id string) error {
	if err := s.db.store.Delete(id, &models.AccountProvider{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete account provider: %w", err)
	}
	return nil
}

func (s *providerStore) ListAccountProviders(ctx context.Context, connectionID string) ([]*models.AccountProvider, error) {
	var aps []*models.AccountProvider
	if err := s.db.store.Find(&aps, badgerhold.Where("ConnectionID").Eq(connectionID)); err != nil {
		return nil, fmt.Errorf("failed to list account providers: %w", err)
	}
	return aps, nil
}

// syncStore implements SyncStore using BadgerDB
type syncStore struct {
	db *BadgerDB
}

func (s *syncStore) Get(ctx context.Context, id string) (*models.Sync, error) {
	var sync models.Sync
	if err := s.db.store.Get(id, &sync); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync: %w", err)
	}
	return &sync, nil
}

func (s *syncStore) Save(ctx context.Context, sync *models.Sync) error {
	if sync.CreatedAt.IsZero() {
		sync.CreatedAt = time.Now()
	}
	if err := s.db.store.Upsert(sync.ID, sync); err != nil {
		return fmt.Errorf("failed to save sync: %w", err)
	}
	return nil
}

func (s *syncStore) ListByConnection(ctx context.Context, connectionID string) ([]*models.Sync, error) {
	var syncs []*models.Sync
	if err := s.db.store.Find(&syncs, badgerhold.Where("ConnectionID").Eq(connectionID)); err != nil {
		return nil, fmt.Errorf("failed to list syncs: %w", err)
	}
	return syncs, nil
}

// badgerMemo implements MemoCache on the same BadgerDB.
type badgerMemo struct {
	db *BadgerDB
}

type memoRecord struct {
	Key       string `badgerhold:"key"`
	Value     string
	ExpiresAt time.Time
}

func (m *badgerMemo) Get(ctx context.Context, key string) (string, bool, error) {
	var rec memoRecord
	if err := m.db.store.Get("memo:"+key, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get memo: %w", err)
	}
	if time.Now().After(rec.ExpiresAt) {
		_ = m.db.store.Delete("memo:"+key, &memoRecord{})
		return "", false, nil
	}
	return rec.Value, true, nil
}

func (m *badgerMemo) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	rec := memoRecord{Key: key, Value: value, ExpiresAt: time.Now().Add(ttl)}
	if err := m.db.store.Upsert("memo:"+key, &rec); err != nil {
		return fmt.Errorf("failed to set memo: %w", err)
	}
	return nil
}

func (m *badgerMemo) Delete(ctx context.Context, key string) error {
	if err := m.db.store.Delete("memo:"+key, &memoRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete memo: %w", err)
	}
	return nil
}
