package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		prev *float64
		cur  float64
		want bool
	}{
		{"above below target", PriceAbove{Price: 10}, nil, 9.99, false},
		{"above at target", PriceAbove{Price: 10}, nil, 10, true},
		{"above over target", PriceAbove{Price: 10}, fp(1), 12, true},
		{"below over target", PriceBelow{Price: 10}, nil, 10.01, false},
		{"below at target", PriceBelow{Price: 10}, nil, 10, true},
		{"cross needs previous", PriceCross{Price: 10}, nil, 11, false},
		{"cross upward", PriceCross{Price: 10}, fp(9), 11, true},
		{"cross downward", PriceCross{Price: 10}, fp(11), 9, true},
		{"cross upward onto target", PriceCross{Price: 10}, fp(9), 10, true},
		{"stays above", PriceCross{Price: 10}, fp(11), 12, false},
		{"stays below", PriceCross{Price: 10}, fp(8), 9, false},
		{"starts on target", PriceCross{Price: 10}, fp(10), 11, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, tt.prev, tt.cur))
		})
	}
}

func TestParseCondition(t *testing.T) {
	for _, kind := range []string{"price_above", "price_below", "price_cross"} {
		c, err := ParseCondition(kind, 2.5)
		require.NoError(t, err)
		assert.Equal(t, kind, c.Kind())
		assert.Equal(t, 2.5, c.Target())
	}

	_, err := ParseCondition("volume_spike", 1)
	assert.Error(t, err)
}
