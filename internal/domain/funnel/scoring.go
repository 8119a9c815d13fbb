package funnel

import "math"

// IncomeRange is one answer of the income question.
type IncomeRange struct {
	Label          string  `json:"label"`
	BaseValue      float64 `json:"baseValue"`
	BasePercentage float64 `json:"basePercentage"`
}

// Income tables per quiz locale.
var (
	IncomeRangesPT = []IncomeRange{
		{Label: "ate_2000", BaseValue: 1500, BasePercentage: 0.08},
		{Label: "2000_3000", BaseValue: 2500, BasePercentage: 0.10},
		{Label: "3000_5000", BaseValue: 4000, BasePercentage: 0.12},
		{Label: "5000_10000", BaseValue: 7500, BasePercentage: 0.15},
		{Label: "acima_10000", BaseValue: 12000, BasePercentage: 0.18},
	}
	IncomeRangesES = []IncomeRange{
		{Label: "hasta_500", BaseValue: 350, BasePercentage: 0.08},
		{Label: "500_1000", BaseValue: 750, BasePercentage: 0.10},
		{Label: "1000_2000", BaseValue: 1500, BasePercentage: 0.12},
		{Label: "2000_4000", BaseValue: 3000, BasePercentage: 0.15},
		{Label: "mas_4000", BaseValue: 5000, BasePercentage: 0.18},
	}
)

// IncomeRangesFor returns the table of a locale ("pt" or "es").
func IncomeRangesFor(locale string) ([]IncomeRange, bool) {
	switch locale {
	case "pt", "pt-BR", "":
		return IncomeRangesPT, true
	case "es":
		return IncomeRangesES, true
	}
	return nil, false
}

const (
	scoredQuestions   = 6
	minimumMultiplier = 0.4
)

// MaxValue is the monthly loss ceiling of an income answer.
func MaxValue(ranges []IncomeRange, incomeIndex int) float64 {
	if incomeIndex < 0 || incomeIndex >= len(ranges) {
		return 0
	}
	r := ranges[incomeIndex]
	return r.BaseValue * r.BasePercentage
}

// CalculateEstimatedValue scores the answers of the quiz. Each answer
// multiplier contributes a sixth of the income ceiling scaled by the
// multiplier, floored at 0.4. The sum is rounded to a whole number.
func CalculateEstimatedValue(ranges []IncomeRange, incomeIndex int, multipliers []float64) float64 {
	maxValue := MaxValue(ranges, incomeIndex)
	if maxValue == 0 || len(multipliers) == 0 {
		return 0
	}

	perQuestion := maxValue / scoredQuestions
	total := 0.0
	for _, m := range multipliers {
		total += perQuestion * math.Max(minimumMultiplier, m)
	}
	return math.Round(total)
}
