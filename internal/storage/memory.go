package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
)

// MemoryStore is an in-memory backend used for tests and dev mode. It
// implements the same contracts as the badger backend.
type MemoryStore struct {
	mu sync.RWMutex

	accounts    map[string]models.Account
	entries     map[string]models.Entry
	holdings    map[string]models.Holding
	merchants   map[string]models.Merchant
	securities  map[string]models.Security
	connections map[string]models.ProviderConnection
	links       map[string]models.AccountProvider
	syncs       map[string]models.Sync
	snapshots   []models.RawSnapshot
	memos       map[string]memoRecord

	// now is swappable so TTL behavior can be tested without sleeping.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]models.Account),
		entries:     make(map[string]models.Entry),
		holdings:    make(map[string]models.Holding),
		merchants:   make(map[string]models.Merchant),
		securities:  make(map[string]models.Security),
		connections: make(map[string]models.ProviderConnection),
		links:       make(map[string]models.AccountProvider),
		syncs:       make(map[string]models.Sync),
		memos:       make(map[string]memoRecord),
		now:         time.Now,
	}
}

// SetClock overrides the store's time source (tests only).
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Accounts() interfaces.AccountStore         { return (*memAccounts)(m) }
func (m *MemoryStore) Entries() interfaces.EntryStore            { return (*memEntries)(m) }
func (m *MemoryStore) Holdings() interfaces.HoldingStore         { return (*memHoldings)(m) }
func (m *MemoryStore) Merchants() interfaces.MerchantStore       { return (*memMerchants)(m) }
func (m *MemoryStore) Securities() interfaces.SecurityStore      { return (*memSecurities)(m) }
func (m *MemoryStore) Providers() interfaces.ProviderStore       { return (*memProviders)(m) }
func (m *MemoryStore) Syncs() interfaces.SyncStore               { return (*memSyncs)(m) }
func (m *MemoryStore) RawSnapshots() interfaces.RawSnapshotStore { return (*memSnapshots)(m) }
func (m *MemoryStore) MemoCache() interfaces.MemoCache           { return (*memMemos)(m) }
func (m *MemoryStore) Close() error                              { return nil }

type memAccounts MemoryStore

func (s *memAccounts) Get(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &a, nil
}

func (s *memAccounts) Save(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.UpdatedAt = s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = account.UpdatedAt
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *memAccounts) List(ctx context.Context) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Account, 0, len(s.accounts))
	for id := range s.accounts {
		a := s.accounts[id]
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memEntries MemoryStore

func (s *memEntries) Get(ctx context.Context, id string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &e, nil
}

func (s *memEntries) findByExternalLocked(accountID, externalID, source string) (*models.Entry, bool) {
	for id := range s.entries {
		e := s.entries[id]
		if e.AccountID == accountID && e.ExternalID == externalID && e.Source == source {
			return &e, true
		}
	}
	return nil, false
}

func (s *memEntries) FindByExternalID(ctx context.Context, accountID, externalID, source string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.findByExternalLocked(accountID, externalID, source); ok {
		return e, nil
	}
	return nil, interfaces.ErrNotFound
}

func (s *memEntries) Insert(ctx context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findByExternalLocked(entry.AccountID, entry.ExternalID, entry.Source); ok {
		return interfaces.ErrDuplicate
	}
	if _, ok := s.entries[entry.ID]; ok {
		return interfaces.ErrDuplicate
	}
	now := s.now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.entries[entry.ID] = *entry
	return nil
}

func (s *memEntries) Update(ctx context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.UpdatedAt = s.now()
	s.entries[entry.ID] = *entry
	return nil
}

func (s *memEntries) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *memEntries) ListByAccount(ctx context.Context, accountID string) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Entry
	for id := range s.entries {
		e := s.entries[id]
		if e.AccountID == accountID {
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memEntries) ListByAccountSince(ctx context.Context, accountID string, since time.Time) ([]*models.Entry, error) {
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

type memHoldings MemoryStore

func (s *memHoldings) Get(ctx context.Context, id string) (*models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holdings[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &h, nil
}

func (s *memHoldings) FindByKey(ctx context.Context, accountID, securityID string, date time.Time, currency string) (*models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := models.HoldingKey(accountID, securityID, date, currency)
	for id := range s.holdings {
		h := s.holdings[id]
		if h.Key() == key {
			return &h, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *memHoldings) Save(ctx context.Context, holding *models.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	holding.UpdatedAt = s.now()
	if holding.CreatedAt.IsZero() {
		holding.CreatedAt = holding.UpdatedAt
	}
	s.holdings[holding.ID] = *holding
	return nil
}

func (s *memHoldings) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holdings, id)
	return nil
}

func (s *memHoldings) ListByAccount(ctx context.Context, accountID string) ([]*models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Holding
	for id := range s.holdings {
		h := s.holdings[id]
		if h.AccountID == accountID {
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memHoldings) DeleteAfter(ctx context.Context, accountID, securityID string, date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := models.DateOnly(date)
	deleted := 0
	for id := range s.holdings {
		h := s.holdings[id]
		if h.AccountID == accountID && h.SecurityID == securityID && models.DateOnly(h.Date).After(cutoff) {
			delete(s.holdings, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memHoldings) NullAccountProviderRefs(ctx context.Context, accountProviderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := 0
	for id := range s.holdings {
		h := s.holdings[id]
		if h.AccountProviderID == accountProviderID {
			h.AccountProviderID = ""
			h.UpdatedAt = s.now()
			s.holdings[id] = h
			touched++
		}
	}
	return touched, nil
}

type memMerchants MemoryStore

func (s *memMerchants) Get(ctx context.Context, id string) (*models.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.merchants[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &m, nil
}

func (s *memMerchants) FindByProviderID(ctx context.Context, source, providerMerchantID string) (*models.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.merchants {
		m := s.merchants[id]
		if m.Source == source && m.ProviderMerchantID == providerMerchantID {
			return &m, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *memMerchants) Save(ctx context.Context, merchant *models.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merchant.UpdatedAt = s.now()
	if merchant.CreatedAt.IsZero() {
		merchant.CreatedAt = merchant.UpdatedAt
	}
	s.merchants[merchant.ID] = *merchant
	return nil
}

type memSecurities MemoryStore

func (s *memSecurities) Get(ctx context.Context, id string) (*models.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.securities[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &sec, nil
}

func (s *memSecurities) FindBySymbol(ctx context.Context, symbol, exchange string) (*models.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.securities {
		sec := s.securities[id]
		if sec.Symbol == symbol && sec.Exchange == exchange {
			return &sec, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *memSecurities) Save(ctx context.Context, security *models.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if security.CreatedAt.IsZero() {
		security.CreatedAt = s.now()
	}
	s.securities[security.ID] = *security
	return nil
}

type memProviders MemoryStore

func (s *memProviders) GetConnection(ctx context.Context, id string) (*models.ProviderConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &c, nil
}

func (s *memProviders) SaveConnection(ctx context.Context, conn *models.ProviderConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.UpdatedAt = s.now()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = conn.UpdatedAt
	}
	s.connections[conn.ID] = *conn
	return nil
}

func (s *memProviders) ListConnections(ctx context.Context) ([]*models.ProviderConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ProviderConnection, 0, len(s.connections))
	for id := range s.connections {
		c := s.connections[id]
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memProviders) GetAccountProvider(ctx context.Context, id string) (*models.AccountProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ap, ok := s.links[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &ap, nil
}

func (s *memProviders) FindAccountProvider(ctx context.Context, provider, providerAccountID string) (*models.AccountProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.links {
		ap := s.links[id]
		if ap.Provider == provider && ap.ProviderAccountID == providerAccountID {
			return &ap, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *memProviders) SaveAccountProvider(ctx context.Context, ap *models.AccountProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap.UpdatedAt = s.now()
	if ap.CreatedAt.IsZero() {
		ap.CreatedAt = ap.UpdatedAt
	}
	s.links[ap.ID] = *ap
	return nil
}

func (s *memProviders) DeleteAccountProvider(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, id)
	return nil
}

func (s *memProviders) ListAccountProviders(ctx context.Context, connectionID string) ([]*models.AccountProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AccountProvider
	for id := range s.links {
		ap := s.links[id]
		if ap.ConnectionID == connectionID {
			out = append(out, &ap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memSyncs MemoryStore

func (s *memSyncs) Get(ctx context.Context, id string) (*models.Sync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sy, ok := s.syncs[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &sy, nil
}

func (s *memSyncs) Save(ctx context.Context, sync *models.Sync) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sync.CreatedAt.IsZero() {
		sync.CreatedAt = s.now()
	}
	s.syncs[sync.ID] = *sync
	return nil
}

func (s *memSyncs) ListByConnection(ctx context.Context, connectionID string) ([]*models.Sync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Sync
	for id := range s.syncs {
		sy := s.syncs[id]
		if sy.ConnectionID == connectionID {
			out = append(out, &sy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memSnapshots MemoryStore

func (s *memSnapshots) Put(ctx context.Context, snapshot *models.RawSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, *snapshot)
	return nil
}

func (s *memSnapshots) List(ctx context.Context, connectionID string) ([]*models.RawSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.RawSnapshot
	for i := range s.snapshots {
		if s.snapshots[i].ConnectionID == connectionID {
			snap := s.snapshots[i]
			out = append(out, &snap)
		}
	}
	return out, nil
}

func (s *memSnapshots) Close() error { return nil }

type memMemos MemoryStore

func (s *memMemos) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.memos[key]
	if !ok {
		return "", false, nil
	}
	if s.now().After(rec.ExpiresAt) {
		delete(s.memos, key)
		return "", false, nil
	}
	return rec.Value, true, nil
}

func (s *memMemos) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memos[key] = memoRecord{Key: key, Value: value, ExpiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memMemos) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memos, key)
	return nil
}
