package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/storage"
)

// fakeProcessor is a scriptable processor for service tests.
type fakeProcessor struct {
	name    string
	err     error
	block   chan struct{}
	calls   int
	lastRun *models.Sync
}

func (p *fakeProcessor) Name() string { return p.name }

func (p *fakeProcessor) Process(ctx context.Context, sync *models.Sync) error {
	p.calls++
	p.lastRun = sync
	if p.block != nil {
		<-p.block
	}
	if p.err != nil {
		return p.err
	}
	sync.Stats[models.StatTxImported] = 3
	return nil
}

func newTestService(t *testing.T, proc *fakeProcessor) (*Service, *storage.MemoryStore, *models.ProviderConnection) {
	t.Helper()
	store := storage.NewMemoryStore()

	registry := NewRegistry()
	if proc != nil {
		registry.Register(proc)
	}

	conn := &models.ProviderConnection{ID: "conn1", FamilyID: "fam1", Provider: "simplefin"}
	require.NoError(t, store.Providers().SaveConnection(context.Background(), conn))

	return NewService(store, registry, common.NewNopLogger()), store, conn
}

func TestRunCompletes(t *testing.T) {
	proc := &fakeProcessor{name: "simplefin"}
	svc, store, conn := newTestService(t, proc)
	ctx := context.Background()

	syncRec, err := svc.Run(ctx, conn.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusCompleted, syncRec.Status)
	assert.Equal(t, 1, proc.calls)
	assert.Equal(t, 3, syncRec.Stats[models.StatTxImported])
	assert.False(t, syncRec.CompletedAt.IsZero())

	// The 90-day window is set before the processor runs.
	window := syncRec.WindowEndDate.Sub(syncRec.WindowStartDate)
	assert.InDelta(t, 90*24, window.Hours(), 1)

	saved, err := store.Syncs().Get(ctx, syncRec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, saved.Status)

	stamped, err := store.Providers().GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.False(t, stamped.LastSyncedAt.IsZero())
}

func TestRunFailurePersistsWithoutRollback(t *testing.T) {
	proc := &fakeProcessor{name: "simplefin", err: errors.New("bridge unreachable")}
	svc, store, conn := newTestService(t, proc)
	ctx := context.Background()

	syncRec, err := svc.Run(ctx, conn.ID)
	require.Error(t, err)
	require.NotNil(t, syncRec)

	assert.Equal(t, models.SyncStatusFailed, syncRec.Status)
	assert.Contains(t, syncRec.Error, "bridge unreachable")

	saved, err := store.Syncs().Get(ctx, syncRec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, saved.Status)

	stamped, err := store.Providers().GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, stamped.LastSyncedAt.IsZero(), "failed sync does not stamp the connection")
}

func TestRunUnknownConnection(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeProcessor{name: "simplefin"})

	_, err := svc.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRunUnknownProvider(t *testing.T) {
	svc, _, conn := newTestService(t, nil)

	syncRec, err := svc.Run(context.Background(), conn.ID)
	require.Error(t, err)
	require.NotNil(t, syncRec)
	assert.Equal(t, models.SyncStatusFailed, syncRec.Status)
	assert.Contains(t, syncRec.Error, "no processor registered")
}

func TestRunSerializesPerConnection(t *testing.T) {
	proc := &fakeProcessor{name: "simplefin", block: make(chan struct{})}
	svc, _, conn := newTestService(t, proc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, conn.ID)
		done <- err
	}()

	// Wait for the first run to take the slot.
	require.Eventually(t, func() bool { return svc.InFlight(conn.ID) },
		time.Second, 5*time.Millisecond)

	_, err := svc.Run(ctx, conn.ID)
	assert.ErrorIs(t, err, ErrSyncInFlight)

	close(proc.block)
	require.NoError(t, <-done)
	assert.False(t, svc.InFlight(conn.ID))
}

func TestUnlinkAccountNullsHoldingRefs(t *testing.T) {
	svc, store, conn := newTestService(t, &fakeProcessor{name: "simplefin"})
	ctx := context.Background()

	ap := &models.AccountProvider{
		ID:                "ap1",
		AccountID:         "acc1",
		ConnectionID:      conn.ID,
		Provider:          "simplefin",
		ProviderAccountID: "ext1",
	}
	require.NoError(t, store.Providers().SaveAccountProvider(ctx, ap))

	require.NoError(t, store.Holdings().Save(ctx, &models.Holding{
		ID:                "h1",
		AccountID:         "acc1",
		SecurityID:        "sec1",
		Date:              time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Currency:          "USD",
		AccountProviderID: "ap1",
	}))

	require.NoError(t, svc.UnlinkAccount(ctx, "ap1"))

	_, err := store.Providers().GetAccountProvider(ctx, "ap1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	h, err := store.Holdings().Get(ctx, "h1")
	require.NoError(t, err)
	assert.Empty(t, h.AccountProviderID, "holding survives with the link nulled")
}
