package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateEstimatedValue(t *testing.T) {
	tests := []struct {
		name        string
		ranges      []IncomeRange
		incomeIndex int
		multipliers []float64
		want        float64
	}{
		{"single answer on lowest range", IncomeRangesPT, 0, []float64{1.4}, 28},
		{"multiplier floored at 0.4", IncomeRangesPT, 0, []float64{0.1}, 8},
		{"six answers at 1.0 reach the ceiling", IncomeRangesPT, 4, []float64{1, 1, 1, 1, 1, 1}, 2160},
		{"rounding", IncomeRangesPT, 1, []float64{1.3}, 54},
		{"spanish table", IncomeRangesES, 2, []float64{1, 1}, 60},
		{"no answers yet", IncomeRangesPT, 2, nil, 0},
		{"negative index", IncomeRangesPT, -1, []float64{1}, 0},
		{"index out of range", IncomeRangesPT, 5, []float64{1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateEstimatedValue(tt.ranges, tt.incomeIndex, tt.multipliers))
		})
	}
}

func TestMaxValue(t *testing.T) {
	assert.InDelta(t, 120.0, MaxValue(IncomeRangesPT, 0), 1e-9)
	assert.InDelta(t, 900.0, MaxValue(IncomeRangesES, 4), 1e-9)
}

func TestIncomeRangesFor(t *testing.T) {
	pt, ok := IncomeRangesFor("pt")
	assert.True(t, ok)
	assert.Equal(t, IncomeRangesPT, pt)

	es, ok := IncomeRangesFor("es")
	assert.True(t, ok)
	assert.Equal(t, IncomeRangesES, es)

	_, ok = IncomeRangesFor("fr")
	assert.False(t, ok)
}
