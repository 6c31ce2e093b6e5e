// Package simplefin provides a client for the SimpleFIN bridge protocol.
package simplefin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 4 // requests per second
)

// Client implements interfaces.ProviderClient for a SimpleFIN bridge.
type Client struct {
	accessURL  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets requests per second
func WithRateLimit(rps int) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a SimpleFIN client from a claimed access URL. The
// URL embeds basic-auth credentials, per the SimpleFIN protocol.
func NewClient(accessURL string, logger *common.Logger, opts ...ClientOption) *Client {
	c := &Client{
		accessURL:  accessURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// accountSet mirrors the SimpleFIN /accounts response.
type accountSet struct {
	Errors   []string      `json:"errors"`
	Accounts []sfinAccount `json:"accounts"`
}

type sfinAccount struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Currency         string    `json:"currency"`
	Balance          string    `json:"balance"`
	AvailableBalance string    `json:"available-balance"`
	Transactions     []sfinTxn `json:"transactions"`
	Extra            sfinExtra `json:"extra"`
}

type sfinTxn struct {
	ID          string `json:"id"`
	Posted      int64  `json:"posted"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Pending     bool   `json:"pending"`
	// SimpleFIN bridges surface the pending record's id on the posted
	// record so the two can be reconciled.
	PendingID string `json:"pending_id"`
}

type sfinExtra struct {
	CreditLimit  string `json:"credit-limit"`
	APR          string `json:"apr"`
	InterestRate string `json:"interest-rate"`
}

// FetchSnapshot fetches the account set for the window and maps it onto
// the provider-neutral snapshot shape.
func (c *Client) FetchSnapshot(ctx context.Context, window interfaces.SyncWindow) (*interfaces.ProviderSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/accounts?start-date=%d&end-date=%d",
		c.accessURL, window.Start.Unix(), window.End.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("simplefin request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("simplefin returned status %d", resp.StatusCode)
	}

	var set accountSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse account set: %w", err)
	}
	for _, e := range set.Errors {
		c.logger.Warn().Str("error", e).Msg("SimpleFIN reported a data warning")
	}

	snap := &interfaces.ProviderSnapshot{
		FetchedAt: time.Now(),
		Raw:       body,
	}
	for _, a := range set.Accounts {
		snap.Accounts = append(snap.Accounts, mapAccount(a))
	}
	return snap, nil
}

func mapAccount(a sfinAccount) interfaces.ProviderAccountData {
	data := interfaces.ProviderAccountData{
		ExternalID:       a.ID,
		Name:             a.Name,
		Currency:         a.Currency,
		Balance:          parseDecimal(a.Balance),
		AvailableBalance: parseDecimalPtr(a.AvailableBalance),
		CreditLimit:      parseDecimalPtr(a.Extra.CreditLimit),
		APR:              parseDecimalPtr(a.Extra.APR),
		InterestRate:     parseDecimalPtr(a.Extra.InterestRate),
	}

	for _, t := range a.Transactions {
		name := t.Description
		if name == "" {
			name = t.Payee
		}
		data.Transactions = append(data.Transactions, interfaces.ProviderTransaction{
			ExternalID:        t.ID,
			Amount:            t.Amount,
			Currency:          a.Currency,
			Date:              time.Unix(t.Posted, 0).UTC().Format("2006-01-02"),
			Name:              name,
			Pending:           t.Pending,
			PendingExternalID: t.PendingID,
		})
	}
	return data
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDecimalPtr(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
