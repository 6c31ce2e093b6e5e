package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"usd", "USD", false},
		{" AUD ", "AUD", false},
		{"EUR", "EUR", false},
		{"rmb", "CNY", false},
		{"", "", true},
		{"NOTREAL", "", true},
		{"US", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeCurrency(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		assert.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
