package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/ledgerd/internal/app"
	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/services/syncer"
	"github.com/bobmcallan/ledgerd/internal/storage"
)

type stubProcessor struct{ err error }

func (p *stubProcessor) Name() string { return "simplefin" }

func (p *stubProcessor) Process(ctx context.Context, sync *models.Sync) error {
	if p.err != nil {
		return p.err
	}
	sync.Stats[models.StatTxImported] = 2
	return nil
}

func newTestServer(t *testing.T) (http.Handler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := common.NewNopLogger()

	registry := syncer.NewRegistry()
	registry.Register(&stubProcessor{})

	a := &app.App{
		Config:      common.DefaultConfig(),
		Logger:      logger,
		Storage:     store,
		Registry:    registry,
		SyncService: syncer.NewService(store, registry, logger),
		StartupTime: time.Now(),
	}
	return NewServer(a).Handler(), store
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSyncCreateValidation(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/syncs", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/syncs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSyncCreateUnknownConnection(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/syncs",
		strings.NewReader(`{"connection_id":"missing"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncCreateAndFetch(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Providers().SaveConnection(ctx, &models.ProviderConnection{
		ID: "conn1", FamilyID: "fam1", Provider: "simplefin",
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/syncs",
		strings.NewReader(`{"connection_id":"conn1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var created models.Sync
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, models.SyncStatusCompleted, created.Status)
	assert.NotEmpty(t, created.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/syncs/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched models.Sync
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestSyncFetchNotFound(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/syncs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountList(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Accounts().Save(ctx, &models.Account{
		ID: "acc1", Name: "Checking", Type: models.AccountTypeDepository, Currency: "USD",
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Accounts []models.Account `json:"accounts"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "Checking", body.Accounts[0].Name)
}

func TestUnlinkEndpoint(t *testing.T) {
	handler, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Providers().SaveAccountProvider(ctx, &models.AccountProvider{
		ID: "ap1", AccountID: "acc1", ConnectionID: "conn1", Provider: "simplefin", ProviderAccountID: "ext1",
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/links/ap1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.Providers().GetAccountProvider(ctx, "ap1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/links/ap1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
