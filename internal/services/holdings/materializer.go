// Package holdings rebuilds the per-day holdings table for an account.
package holdings

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/models"
	"github.com/bobmcallan/ledgerd/internal/services/importer"
)

// Result summarizes one materialization run.
type Result struct {
	Created int
	Updated int
	Deleted int
}

// Materializer derives holdings from trade history (forward) or
// reconciles provider-reported holdings (reverse).
type Materializer struct {
	storage interfaces.StorageManager
	logger  *common.Logger
	now     func() time.Time
}

// NewMaterializer creates a materializer.
func NewMaterializer(storage interfaces.StorageManager, logger *common.Logger) *Materializer {
	return &Materializer{storage: storage, logger: logger, now: time.Now}
}

// SetClock overrides the materializer's time source (tests only).
func (m *Materializer) SetClock(now func() time.Time) { m.now = now }

// position is the running state for one (security, currency) pair.
type position struct {
	securityID string
	currency   string
	qty        decimal.Decimal
	totalCost  decimal.Decimal
	lastPrice  decimal.Decimal
}

// dailySnapshot is one desired holding row.
type dailySnapshot struct {
	securityID string
	currency   string
	date       time.Time
	qty        decimal.Decimal
	price      decimal.Decimal
	costBasis  decimal.Decimal
}

// Forward rebuilds the account's holdings purely from trade history and
// purges any holding outside the computed set. Forward mode owns the full
// holding set for the account and is the only mode that deletes.
func (m *Materializer) Forward(ctx context.Context, account *models.Account) (*Result, error) {
	entries, err := m.storage.Entries().ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	var trades []*models.Entry
	for _, e := range entries {
		if e.Kind == models.EntryableTrade && e.Trade != nil {
			trades = append(trades, e)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Date.Before(trades[j].Date) })

	desired := m.computeDaily(trades)

	existing, err := m.storage.Holdings().ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	seen := make(map[string]bool, len(desired))

	for _, snap := range desired {
		key := models.HoldingKey(account.ID, snap.securityID, snap.date, snap.currency)
		seen[key] = true

		current := findByKey(existing, key)
		calculated := snap.costBasis
		decision := importer.ReconcileCostBasis(current, &calculated, models.CostBasisCalculated)

		if current != nil {
			current.Qty = snap.qty
			current.Price = snap.price
			current.Amount = snap.qty.Mul(snap.price)
			if decision.ShouldUpdate {
				current.CostBasis = decision.CostBasis
				current.CostBasisSource = decision.Source
			}
			if err := m.storage.Holdings().Save(ctx, current); err != nil {
				return result, err
			}
			result.Updated++
			continue
		}

		holding := &models.Holding{
			ID:         uuid.NewString(),
			AccountID:  account.ID,
			SecurityID: snap.securityID,
			Date:       snap.date,
			Currency:   snap.currency,
			Qty:        snap.qty,
			Price:      snap.price,
			Amount:     snap.qty.Mul(snap.price),
			Source:     "calculated",
		}
		if decision.ShouldUpdate {
			holding.CostBasis = decision.CostBasis
			holding.CostBasisSource = decision.Source
		}
		if err := m.storage.Holdings().Save(ctx, holding); err != nil {
			return result, err
		}
		result.Created++
	}

	// Purge stale rows: anything trade history no longer accounts for.
	for _, h := range existing {
		if !seen[h.Key()] {
			if err := m.storage.Holdings().Delete(ctx, h.ID); err != nil {
				return result, err
			}
			result.Deleted++
		}
	}

	m.logger.Debug().
		Str("account", account.ID).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Msg("Forward materialization complete")
	return result, nil
}

// Reverse reconciles trade-derived cost basis into provider-reported
// holdings. It never purges, and a holding with no local trades keeps its
// provider-supplied cost basis untouched.
func (m *Materializer) Reverse(ctx context.Context, account *models.Account) (*Result, error) {
	entries, err := m.storage.Entries().ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	var trades []*models.Entry
	for _, e := range entries {
		if e.Kind == models.EntryableTrade && e.Trade != nil {
			trades = append(trades, e)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Date.Before(trades[j].Date) })

	existing, err := m.storage.Holdings().ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, h := range existing {
		derived := costBasisAsOf(trades, h.SecurityID, h.Date)
		decision := importer.ReconcileCostBasis(h, derived, models.CostBasisCalculated)
		if !decision.ShouldUpdate {
			continue
		}
		h.CostBasis = decision.CostBasis
		h.CostBasisSource = decision.Source
		if err := m.storage.Holdings().Save(ctx, h); err != nil {
			return result, err
		}
		result.Updated++
	}

	m.logger.Debug().
		Str("account", account.ID).
		Int("updated", result.Updated).
		Msg("Reverse materialization complete")
	return result, nil
}

// computeDaily forward-fills per-day positions from the earliest trade to
// today. Days where a position is fully closed produce no row.
func (m *Materializer) computeDaily(trades []*models.Entry) []dailySnapshot {
	if len(trades) == 0 {
		return nil
	}

	// Trades bucketed by day, walked forward with running positions.
	byDay := make(map[time.Time][]*models.Entry)
	for _, t := range trades {
		day := models.DateOnly(t.Date)
		byDay[day] = append(byDay[day], t)
	}

	positions := make(map[string]*position)
	var out []dailySnapshot

	start := models.DateOnly(trades[0].Date)
	end := models.DateOnly(m.now())

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, t := range byDay[day] {
			key := t.Trade.SecurityID + "|" + t.Trade.Currency
			pos, ok := positions[key]
			if !ok {
				pos = &position{securityID: t.Trade.SecurityID, currency: t.Trade.Currency}
				positions[key] = pos
			}
			applyTrade(pos, t.Trade)
		}

		for _, pos := range positions {
			if pos.qty.Sign() <= 0 {
				continue
			}
			out = append(out, dailySnapshot{
				securityID: pos.securityID,
				currency:   pos.currency,
				date:       day,
				qty:        pos.qty,
				price:      pos.lastPrice,
				costBasis:  pos.totalCost,
			})
		}
	}
	return out
}

// applyTrade folds one trade into a running position using average cost:
// buys add qty × price, sells release cost proportionally.
func applyTrade(pos *position, t *models.Trade) {
	if t.Price.Sign() > 0 {
		pos.lastPrice = t.Price
	}
	if t.Qty.Sign() >= 0 {
		pos.totalCost = pos.totalCost.Add(t.Qty.Mul(t.Price))
		pos.qty = pos.qty.Add(t.Qty)
		return
	}

	sellQty := t.Qty.Abs()
	if pos.qty.Sign() > 0 {
		released := pos.totalCost.Mul(decimal.Min(sellQty, pos.qty)).Div(pos.qty)
		pos.totalCost = pos.totalCost.Sub(released)
	}
	pos.qty = pos.qty.Sub(sellQty)
	if pos.qty.Sign() <= 0 {
		pos.qty = decimal.Zero
		pos.totalCost = decimal.Zero
	}
}

// costBasisAsOf derives the average-cost basis for a security on a given
// day, or nil when no trades exist for it.
func costBasisAsOf(trades []*models.Entry, securityID string, date time.Time) *decimal.Decimal {
	cutoff := models.DateOnly(date)
	pos := &position{securityID: securityID}
	found := false
	for _, t := range trades {
		if t.Trade.SecurityID != securityID {
			continue
		}
		if models.DateOnly(t.Date).After(cutoff) {
			break
		}
		applyTrade(pos, t.Trade)
		found = true
	}
	if !found || pos.qty.Sign() <= 0 {
		return nil
	}
	cb := pos.totalCost
	return &cb
}

func findByKey(holdings []*models.Holding, key string) *models.Holding {
	for _, h := range holdings {
		if h.Key() == key {
			return h
		}
	}
	return nil
}
