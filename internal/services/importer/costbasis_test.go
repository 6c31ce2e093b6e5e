package importer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/ledgerd/internal/models"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func holdingWith(cb *decimal.Decimal, source models.CostBasisSource, locked bool) *models.Holding {
	return &models.Holding{
		ID:              "h1",
		CostBasis:       cb,
		CostBasisSource: source,
		Locked:          locked,
	}
}

func TestReconcileCostBasisNoHoldingNoValue(t *testing.T) {
	d := ReconcileCostBasis(nil, nil, models.CostBasisProvider)
	assert.False(t, d.ShouldUpdate)
	assert.Nil(t, d.CostBasis)
	assert.Empty(t, d.Source)
}

func TestReconcileCostBasisNewHoldingAccepts(t *testing.T) {
	d := ReconcileCostBasis(nil, decPtr("150"), models.CostBasisProvider)
	assert.True(t, d.ShouldUpdate)
	assert.True(t, d.CostBasis.Equal(dec("150")))
	assert.Equal(t, models.CostBasisProvider, d.Source)
}

func TestReconcileCostBasisZeroIsUnknown(t *testing.T) {
	existing := holdingWith(decPtr("150"), models.CostBasisProvider, false)

	for _, incoming := range []*decimal.Decimal{nil, decPtr("0")} {
		d := ReconcileCostBasis(existing, incoming, models.CostBasisManual)
		assert.False(t, d.ShouldUpdate)
		assert.True(t, d.CostBasis.Equal(dec("150")), "existing value retained")
		assert.Equal(t, models.CostBasisProvider, d.Source)
	}
}

func TestReconcileCostBasisLockedNeverUpdates(t *testing.T) {
	existing := holdingWith(decPtr("150"), models.CostBasisProvider, true)

	d := ReconcileCostBasis(existing, decPtr("200"), models.CostBasisManual)
	assert.False(t, d.ShouldUpdate)
	assert.True(t, d.CostBasis.Equal(dec("150")))
}

func TestReconcileCostBasisPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		existing models.CostBasisSource
		incoming models.CostBasisSource
		want     bool
	}{
		{"provider over provider", models.CostBasisProvider, models.CostBasisProvider, true},
		{"calculated over provider", models.CostBasisProvider, models.CostBasisCalculated, true},
		{"manual over provider", models.CostBasisProvider, models.CostBasisManual, true},
		{"provider over calculated", models.CostBasisCalculated, models.CostBasisProvider, false},
		{"calculated over calculated", models.CostBasisCalculated, models.CostBasisCalculated, true},
		{"manual over calculated", models.CostBasisCalculated, models.CostBasisManual, true},
		{"provider over manual", models.CostBasisManual, models.CostBasisProvider, false},
		{"calculated over manual", models.CostBasisManual, models.CostBasisCalculated, false},
		{"manual over manual", models.CostBasisManual, models.CostBasisManual, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := holdingWith(decPtr("100"), tt.existing, false)
			d := ReconcileCostBasis(existing, decPtr("200"), tt.incoming)
			assert.Equal(t, tt.want, d.ShouldUpdate)
			if tt.want {
				assert.True(t, d.CostBasis.Equal(dec("200")))
				assert.Equal(t, tt.incoming, d.Source)
			} else {
				assert.True(t, d.CostBasis.Equal(dec("100")))
				assert.Equal(t, tt.existing, d.Source)
			}
		})
	}
}

func TestReconcileCostBasisEmptySourceAlwaysLoses(t *testing.T) {
	// A holding that never had a cost basis accepts any authority.
	existing := holdingWith(nil, "", false)

	d := ReconcileCostBasis(existing, decPtr("42"), models.CostBasisProvider)
	assert.True(t, d.ShouldUpdate)
	assert.Equal(t, models.CostBasisProvider, d.Source)
}
