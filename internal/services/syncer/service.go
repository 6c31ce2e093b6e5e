// Package syncer orchestrates provider sync runs.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
)

// ErrSyncInFlight is returned when a connection already has a sync running.
var ErrSyncInFlight = errors.New("sync already in flight for connection")

// Registry maps provider names to their processors.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]interfaces.Processor
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]interfaces.Processor)}
}

// Register adds a processor under its provider name.
func (r *Registry) Register(p interfaces.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[p.Name()] = p
}

// Get returns the processor for a provider, or nil.
func (r *Registry) Get(name string) interfaces.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.procs[name]
}

// Service runs provider syncs. A single connection has at most one sync
// in flight; separate connections may sync concurrently. A fatal failure
// marks the sync failed without rolling back committed ledger writes —
// re-running is safe because every import is idempotent.
type Service struct {
	storage  interfaces.StorageManager
	registry *Registry
	logger   *common.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewService creates a sync service.
func NewService(storage interfaces.StorageManager, registry *Registry, logger *common.Logger) *Service {
	return &Service{
		storage:  storage,
		registry: registry,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// InFlight reports whether a connection currently has a sync running.
func (s *Service) InFlight(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[connectionID]
}

func (s *Service) acquire(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[connectionID] {
		return false
	}
	s.inFlight[connectionID] = true
	return true
}

func (s *Service) release(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, connectionID)
}

// Run executes one sync for a provider connection and returns the final
// sync record.
func (s *Service) Run(ctx context.Context, connectionID string) (*models.Sync, error) {
	conn, err := s.storage.Providers().GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection %s: %w", connectionID, err)
	}

	if !s.acquire(connectionID) {
		return nil, ErrSyncInFlight
	}
	defer s.release(connectionID)

	now := time.Now()
	syncRec := &models.Sync{
		ID:              uuid.NewString(),
		ConnectionID:    conn.ID,
		Provider:        conn.Provider,
		Status:          models.SyncStatusSyncing,
		StatusText:      "importing",
		Stats:           make(map[string]any),
		WindowStartDate: now.AddDate(0, 0, -90),
		WindowEndDate:   now,
	}
	if err := s.storage.Syncs().Save(ctx, syncRec); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("connection", conn.ID).
		Str("provider", conn.Provider).
		Str("sync", syncRec.ID).
		Msg("Sync started")

	proc := s.registry.Get(conn.Provider)
	if proc == nil {
		return s.fail(ctx, syncRec, fmt.Errorf("no processor registered for provider %s", conn.Provider))
	}

	if err := proc.Process(ctx, syncRec); err != nil {
		return s.fail(ctx, syncRec, err)
	}

	syncRec.Status = models.SyncStatusCompleted
	syncRec.StatusText = "completed"
	syncRec.CompletedAt = time.Now()
	if err := s.storage.Syncs().Save(ctx, syncRec); err != nil {
		return nil, err
	}

	conn.LastSyncedAt = time.Now()
	if err := s.storage.Providers().SaveConnection(ctx, conn); err != nil {
		s.logger.Warn().Str("connection", conn.ID).Err(err).Msg("Failed to stamp connection sync time")
	}

	s.logger.Info().
		Str("connection", conn.ID).
		Str("sync", syncRec.ID).
		Msg("Sync completed")
	return syncRec, nil
}

// UnlinkAccount detaches a provider link from its ledger account. The
// link is removed and holdings that reference it keep their data with the
// reference nulled, so history survives a provider disconnect.
func (s *Service) UnlinkAccount(ctx context.Context, accountProviderID string) error {
	ap, err := s.storage.Providers().GetAccountProvider(ctx, accountProviderID)
	if err != nil {
		return fmt.Errorf("failed to load account link %s: %w", accountProviderID, err)
	}

	touched, err := s.storage.Holdings().NullAccountProviderRefs(ctx, ap.ID)
	if err != nil {
		return fmt.Errorf("failed to null holding references: %w", err)
	}

	if err := s.storage.Providers().DeleteAccountProvider(ctx, ap.ID); err != nil {
		return fmt.Errorf("failed to delete account link: %w", err)
	}

	s.logger.Info().
		Str("account_provider", ap.ID).
		Str("account", ap.AccountID).
		Int("holdings_detached", touched).
		Msg("Account unlinked from provider")
	return nil
}

// fail marks the sync failed with a human-readable error. Ledger writes
// already committed by earlier phases stay; partial progress is preferred
// over rollback.
func (s *Service) fail(ctx context.Context, syncRec *models.Sync, cause error) (*models.Sync, error) {
	syncRec.Status = models.SyncStatusFailed
	syncRec.Error = cause.Error()
	syncRec.CompletedAt = time.Now()
	if err := s.storage.Syncs().Save(ctx, syncRec); err != nil {
		s.logger.Error().Str("sync", syncRec.ID).Err(err).Msg("Failed to persist failed sync")
	}
	s.logger.Warn().
		Str("sync", syncRec.ID).
		Str("connection", syncRec.ConnectionID).
		Err(cause).
		Msg("Sync failed")
	return syncRec, cause
}
