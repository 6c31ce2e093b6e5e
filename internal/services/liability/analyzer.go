// Package liability classifies ambiguous liability balances as debt owed
// or credit/overpayment.
package liability

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
)

// Classification is the analyzer's verdict. Unknown is not an error; the
// caller falls back to SignHeuristic.
type Classification string

const (
	ClassificationDebt    Classification = "debt"
	ClassificationCredit  Classification = "credit"
	ClassificationUnknown Classification = "unknown"
)

// Config holds the analyzer knobs. The sanity tolerance and statement
// guard thresholds are empirical defaults, tunable per deployment.
type Config struct {
	Enabled            bool
	WindowDays         int
	MinTxns            int
	MinPayments        int
	EpsilonBase        decimal.Decimal
	EpsilonPct         decimal.Decimal
	StatementGuardDays int
	GuardMaxPayments   int
	SanityBase         decimal.Decimal
	SanityPct          decimal.Decimal
	StickyTTL          time.Duration
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		WindowDays:         120,
		MinTxns:            10,
		MinPayments:        2,
		EpsilonBase:        decimal.NewFromFloat(0.50),
		EpsilonPct:         decimal.NewFromFloat(0.005),
		StatementGuardDays: 5,
		GuardMaxPayments:   2,
		SanityBase:         decimal.NewFromInt(5),
		SanityPct:          decimal.NewFromFloat(0.10),
		StickyTTL:          7 * 24 * time.Hour,
	}
}

// ConfigFromCommon maps the TOML config section onto analyzer config.
func ConfigFromCommon(c common.LiabilityConfig) Config {
	cfg := DefaultConfig()
	cfg.Enabled = c.Enabled
	if c.WindowDays > 0 {
		cfg.WindowDays = c.WindowDays
	}
	if c.MinTxns > 0 {
		cfg.MinTxns = c.MinTxns
	}
	if c.MinPayments > 0 {
		cfg.MinPayments = c.MinPayments
	}
	if c.EpsilonBase > 0 {
		cfg.EpsilonBase = decimal.NewFromFloat(c.EpsilonBase)
	}
	if c.EpsilonPct > 0 {
		cfg.EpsilonPct = decimal.NewFromFloat(c.EpsilonPct)
	}
	if c.StatementGuardDays > 0 {
		cfg.StatementGuardDays = c.StatementGuardDays
	}
	if c.GuardMaxPayments > 0 {
		cfg.GuardMaxPayments = c.GuardMaxPayments
	}
	if c.SanityBase > 0 {
		cfg.SanityBase = decimal.NewFromFloat(c.SanityBase)
	}
	if c.SanityPct > 0 {
		cfg.SanityPct = decimal.NewFromFloat(c.SanityPct)
	}
	if c.StickyDays > 0 {
		cfg.StickyTTL = time.Duration(c.StickyDays) * 24 * time.Hour
	}
	return cfg
}

// TxnSample is a raw-payload transaction used when the ledger has too few
// materialized entries for the window.
type TxnSample struct {
	Amount decimal.Decimal
	Date   time.Time
}

// Analyzer decides whether an ambiguous liability balance is debt or
// credit, with a short-TTL sticky memo to avoid flip-flopping between
// syncs.
type Analyzer struct {
	storage interfaces.StorageManager
	cfg     Config
	logger  *common.Logger
	now     func() time.Time
}

// NewAnalyzer creates an analyzer backed by the storage manager's memo cache.
func NewAnalyzer(storage interfaces.StorageManager, cfg Config, logger *common.Logger) *Analyzer {
	return &Analyzer{storage: storage, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock overrides the analyzer's time source (tests only).
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

func memoKey(accountID string) string { return "liability_class:" + accountID }

// Classify returns debt, credit or unknown for the observed balance
// magnitude of a liability account. fallback supplies raw provider
// transactions used when the ledger sample is too small.
func (a *Analyzer) Classify(ctx context.Context, account *models.Account, observed decimal.Decimal, fallback []TxnSample) Classification {
	if !a.cfg.Enabled {
		return ClassificationUnknown
	}
	if !account.IsLiability() {
		return ClassificationUnknown
	}

	magnitude := observed.Abs()
	epsilon := decimal.Max(a.cfg.EpsilonBase, magnitude.Mul(a.cfg.EpsilonPct))
	if magnitude.LessThanOrEqual(epsilon) {
		// Near-zero balances are too noisy to classify.
		return ClassificationUnknown
	}

	if memo, ok, err := a.storage.MemoCache().Get(ctx, memoKey(account.ID)); err == nil && ok {
		switch Classification(memo) {
		case ClassificationDebt, ClassificationCredit:
			return Classification(memo)
		}
	} else if err != nil {
		a.logger.Warn().Str("account", account.ID).Err(err).Msg("Sticky memo read failed")
	}

	samples := a.gatherSamples(ctx, account, fallback)
	if len(samples) < a.cfg.MinTxns {
		return ClassificationUnknown
	}

	now := a.now()
	charges := decimal.Zero
	payments := decimal.Zero
	paymentCount := 0
	var lastPayment time.Time

	for _, s := range samples {
		switch {
		case s.Amount.Sign() > 0:
			charges = charges.Add(s.Amount)
		case s.Amount.Sign() < 0:
			payments = payments.Add(s.Amount.Abs())
			paymentCount++
			if s.Date.After(lastPayment) {
				lastPayment = s.Date
			}
		}
	}

	// Statement guard: a lone recent payment can transiently look like an
	// overpayment before new charges post.
	guardCutoff := now.AddDate(0, 0, -a.cfg.StatementGuardDays)
	if paymentCount > 0 && paymentCount <= a.cfg.GuardMaxPayments && lastPayment.After(guardCutoff) {
		return ClassificationUnknown
	}

	// Sanity check: the sample should roughly explain the observed
	// balance, otherwise it is incomplete.
	tolerance := decimal.Max(a.cfg.SanityBase, magnitude.Mul(a.cfg.SanityPct))
	net := charges.Sub(payments).Abs()
	if net.Sub(magnitude).Abs().GreaterThan(tolerance) {
		return ClassificationUnknown
	}

	result := ClassificationUnknown
	switch {
	case payments.Sub(charges).GreaterThanOrEqual(magnitude.Sub(epsilon)):
		result = ClassificationCredit
	case charges.Sub(payments).GreaterThan(epsilon) && paymentCount >= a.cfg.MinPayments:
		result = ClassificationDebt
	}

	if result != ClassificationUnknown {
		if err := a.storage.MemoCache().Set(ctx, memoKey(account.ID), string(result), a.cfg.StickyTTL); err != nil {
			a.logger.Warn().Str("account", account.ID).Err(err).Msg("Sticky memo write failed")
		}
	}
	return result
}

// gatherSamples prefers materialized ledger entries in the window and
// falls back to the raw provider payload when the ledger has too few.
func (a *Analyzer) gatherSamples(ctx context.Context, account *models.Account, fallback []TxnSample) []TxnSample {
	since := a.now().AddDate(0, 0, -a.cfg.WindowDays)

	var samples []TxnSample
	entries, err := a.storage.Entries().ListByAccountSince(ctx, account.ID, since)
	if err != nil {
		a.logger.Warn().Str("account", account.ID).Err(err).Msg("Ledger window read failed")
	} else {
		for _, e := range entries {
			if e.Kind != models.EntryableTransaction {
				continue
			}
			samples = append(samples, TxnSample{Amount: e.Amount, Date: e.Date})
		}
	}

	if len(samples) >= a.cfg.MinTxns {
		return samples
	}

	var raw []TxnSample
	for _, s := range fallback {
		if !s.Date.Before(since) {
			raw = append(raw, s)
		}
	}
	if len(raw) > len(samples) {
		return raw
	}
	return samples
}

// SignHeuristic is the simpler deterministic rule applied on unknown:
// a negative current balance with a non-negative available balance reads
// as a credit, everything else as debt.
func SignHeuristic(current decimal.Decimal, available *decimal.Decimal) Classification {
	if current.Sign() < 0 && (available == nil || available.Sign() >= 0) {
		return ClassificationCredit
	}
	return ClassificationDebt
}
