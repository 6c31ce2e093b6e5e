package simplefin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
)

const accountSetJSON = `{
  "errors": ["Connection to Example Bank may need attention"],
  "accounts": [
    {
      "id": "ext_card",
      "name": "Everyday Card",
      "currency": "USD",
      "balance": "-80.00",
      "available-balance": "4920.00",
      "extra": {"credit-limit": "5000.00", "apr": "19.99"},
      "transactions": [
        {
          "id": "t1",
          "posted": 1770681600,
          "amount": "-42.50",
          "description": "Grocer",
          "pending": false
        },
        {
          "id": "t2",
          "posted": 1770768000,
          "amount": "-21.50",
          "payee": "Coffee Corner",
          "pending": true
        }
      ]
    }
  ]
}`

func testWindow() interfaces.SyncWindow {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return interfaces.SyncWindow{Start: end.AddDate(0, 0, -90), End: end}
}

func TestFetchSnapshotParsesAccountSet(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.Write([]byte(accountSetJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, common.NewNopLogger())
	snap, err := c.FetchSnapshot(context.Background(), testWindow())
	require.NoError(t, err)

	assert.Contains(t, gotPath, "/accounts?start-date=")
	assert.Equal(t, []byte(accountSetJSON), snap.Raw, "raw payload kept verbatim")
	require.Len(t, snap.Accounts, 1)

	a := snap.Accounts[0]
	assert.Equal(t, "ext_card", a.ExternalID)
	assert.Equal(t, "-80", a.Balance.String())
	require.NotNil(t, a.AvailableBalance)
	assert.Equal(t, "4920", a.AvailableBalance.String())
	require.NotNil(t, a.CreditLimit)
	assert.Equal(t, "5000", a.CreditLimit.String())
	require.NotNil(t, a.APR)
	assert.Nil(t, a.InterestRate)

	require.Len(t, a.Transactions, 2)
	assert.Equal(t, "t1", a.Transactions[0].ExternalID)
	assert.Equal(t, "-42.50", a.Transactions[0].Amount)
	assert.Equal(t, "USD", a.Transactions[0].Currency, "account currency propagates")
	assert.Equal(t, "2026-02-10", a.Transactions[0].Date)
	assert.Equal(t, "Coffee Corner", a.Transactions[1].Name, "payee fallback when description empty")
	assert.True(t, a.Transactions[1].Pending)
}

func TestFetchSnapshotHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, common.NewNopLogger())
	_, err := c.FetchSnapshot(context.Background(), testWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchSnapshotBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, common.NewNopLogger())
	_, err := c.FetchSnapshot(context.Background(), testWindow())
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	c := NewClient("http://example.test", common.NewNopLogger(),
		WithTimeout(5*time.Second),
		WithRateLimit(2),
	)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.NotNil(t, c.limiter)
}
