package importer

import (
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/ledgerd/internal/models"
)

// CostBasisDecision is the outcome of reconciling a candidate cost basis
// against an existing holding.
type CostBasisDecision struct {
	ShouldUpdate bool
	CostBasis    *decimal.Decimal
	Source       models.CostBasisSource
}

// ReconcileCostBasis decides which cost-basis value and authority wins
// for a holding. Rules, in order:
//
//  1. A locked holding never updates.
//  2. A nil or zero incoming value is "unknown" and never updates; zero
//     is indistinguishable from "not provided".
//  3. With no existing holding, the incoming value is accepted as-is.
//  4. Authority order manual > calculated > provider: an incoming source
//     must rank at least as high as the existing one. Equal-rank updates
//     are allowed so a refreshed calculated value can land.
func ReconcileCostBasis(existing *models.Holding, incoming *decimal.Decimal, source models.CostBasisSource) CostBasisDecision {
	if existing != nil && existing.Locked {
		return CostBasisDecision{ShouldUpdate: false, CostBasis: existing.CostBasis, Source: existing.CostBasisSource}
	}

	if incoming == nil || incoming.IsZero() {
		if existing == nil {
			return CostBasisDecision{ShouldUpdate: false}
		}
		return CostBasisDecision{ShouldUpdate: false, CostBasis: existing.CostBasis, Source: existing.CostBasisSource}
	}

	if existing == nil || existing.CostBasisSource.Rank() == 0 {
		return CostBasisDecision{ShouldUpdate: true, CostBasis: incoming, Source: source}
	}

	if source.Rank() >= existing.CostBasisSource.Rank() {
		return CostBasisDecision{ShouldUpdate: true, CostBasis: incoming, Source: source}
	}

	return CostBasisDecision{ShouldUpdate: false, CostBasis: existing.CostBasis, Source: existing.CostBasisSource}
}
