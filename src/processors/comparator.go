// backend/src/processors/comparator.go
package processors

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/fliegerkasse/backend/src/models"
)

// ComparisonProcessor derives period-over-period deltas from an aggregated
// year series. It is a pure function of its inputs and holds no state.
type ComparisonProcessor struct{}

func NewComparisonProcessor() *ComparisonProcessor { return &ComparisonProcessor{} }

var oneHundred = decimal.NewFromInt(100)

// percentChange returns (current-previous)/previous*100, or nil when the
// previous value is zero. Division by zero is never raised.
func percentChange(current, previous decimal.Decimal) *decimal.Decimal {
	if previous.IsZero() {
		return nil
	}
	change := current.Sub(previous).Div(previous).Mul(oneHundred)
	return &change
}

// Compare computes, for each selected year present in the series, the change
// against the immediately preceding selected year by calendar year. Years
// missing from the series are skipped outright, never treated as zero. An
// empty selection means every year in the series. The result also carries
// sums and averages over the compared years.
func (p *ComparisonProcessor) Compare(series []models.YearStat, selectedYears []int) models.ComparisonResult {
	byYear := make(map[int]models.YearStat, len(series))
	for _, stat := range series {
		byYear[stat.Year] = stat
	}

	var years []int
	if len(selectedYears) > 0 {
		years = append(years, selectedYears...)
	} else {
		for _, stat := range series {
			years = append(years, stat.Year)
		}
	}
	sort.Ints(years)

	result := models.ComparisonResult{
		Years:         []models.YearComparison{},
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		TotalBalance:  decimal.Zero,
	}

	var prev *models.YearStat
	for _, year := range years {
		stat, ok := byYear[year]
		if !ok {
			continue
		}

		comparison := models.YearComparison{
			Year:     stat.Year,
			Income:   stat.Income,
			Expenses: stat.Expenses,
			Balance:  stat.Balance,
		}
		if prev != nil {
			comparison.IncomeChangePercent = percentChange(stat.Income, prev.Income)
			comparison.ExpenseChangePercent = percentChange(stat.Expenses, prev.Expenses)
			balanceChange := stat.Balance.Sub(prev.Balance)
			comparison.BalanceChangeAbsolute = &balanceChange
		}

		result.Years = append(result.Years, comparison)
		result.TotalIncome = result.TotalIncome.Add(stat.Income)
		result.TotalExpenses = result.TotalExpenses.Add(stat.Expenses)
		result.TotalBalance = result.TotalBalance.Add(stat.Balance)

		current := stat
		prev = &current
	}

	if n := len(result.Years); n > 0 {
		count := decimal.NewFromInt(int64(n))
		result.AverageIncome = result.TotalIncome.Div(count)
		result.AverageExpenses = result.TotalExpenses.Div(count)
	}
	return result
}
