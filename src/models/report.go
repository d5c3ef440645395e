package models

import "github.com/shopspring/decimal"

// GroupKind selects the matching semantics for a cost-center report.
type GroupKind string

const (
	GroupAircraft    GroupKind = "aircraft"
	GroupGeneralCost GroupKind = "generalCost"
)

// GroupSelector is a tagged selector for the unit being reported on: either a
// single aircraft (matched through allocation weights) or a general-cost group
// (matched whole-amount through category tagging and fee-income folding).
// Use the constructors so the kind and ID always agree.
type GroupSelector struct {
	Kind          GroupKind `json:"kind"`
	AircraftID    int64     `json:"aircraft_id,omitempty"`
	GeneralCostID int64     `json:"general_cost_id,omitempty"`
}

// AircraftGroup selects a single aircraft cost center.
func AircraftGroup(aircraftID int64) GroupSelector {
	return GroupSelector{Kind: GroupAircraft, AircraftID: aircraftID}
}

// GeneralCostGroup selects a general-cost group. Roots roll up their children,
// children stand alone.
func GeneralCostGroup(generalCostID int64) GroupSelector {
	return GroupSelector{Kind: GroupGeneralCost, GeneralCostID: generalCostID}
}

// YearStat is the aggregated figure for one calendar year within a scope.
// Years without any contribution produce no YearStat at all.
type YearStat struct {
	Year             int             `json:"year"`
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transaction_count"`
}

// Rounded returns a presentation copy with amounts rounded to two places.
// Internal accumulation never rounds; this is the boundary where it happens.
func (s YearStat) Rounded() YearStat {
	s.Income = s.Income.Round(2)
	s.Expenses = s.Expenses.Round(2)
	s.Balance = s.Balance.Round(2)
	return s
}

// ReportSummary is the flattened total over every year of a scope.
type ReportSummary struct {
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transaction_count"`
}

// Rounded returns a presentation copy with amounts rounded to two places.
func (s ReportSummary) Rounded() ReportSummary {
	s.Income = s.Income.Round(2)
	s.Expenses = s.Expenses.Round(2)
	s.Balance = s.Balance.Round(2)
	return s
}

// Detail sources.
const (
	DetailSourceTransaction   = "transaction"
	DetailSourceMembershipFee = "membershipFee"
)

// DetailItem is the atomic contribution of one record to one cost center's
// aggregate. Amount is the record's own full amount; WeightedAmount is what
// actually flowed into the aggregate. AllocationWeight is set for
// aircraft-scoped matches and nil where attribution is whole-amount.
type DetailItem struct {
	Source           string              `json:"source"`
	Year             int                 `json:"year"`
	Date             string              `json:"date,omitempty"`
	Description      string              `json:"description"`
	Reference        string              `json:"reference,omitempty"`
	Type             TransactionType     `json:"type"`
	Amount           decimal.Decimal     `json:"amount"`
	WeightedAmount   decimal.Decimal     `json:"weighted_amount"`
	AllocationWeight decimal.NullDecimal `json:"allocation_weight"`
}

// Rounded returns a presentation copy with amounts rounded to two places.
func (d DetailItem) Rounded() DetailItem {
	d.Amount = d.Amount.Round(2)
	d.WeightedAmount = d.WeightedAmount.Round(2)
	return d
}

// YearComparison is one year of a period-over-period comparison. The change
// percentages are nil when the preceding selected year's value is zero, and
// every change field is nil for the first selected year.
type YearComparison struct {
	Year                  int              `json:"year"`
	Income                decimal.Decimal  `json:"income"`
	Expenses              decimal.Decimal  `json:"expenses"`
	Balance               decimal.Decimal  `json:"balance"`
	IncomeChangePercent   *decimal.Decimal `json:"income_change_percent"`
	ExpenseChangePercent  *decimal.Decimal `json:"expense_change_percent"`
	BalanceChangeAbsolute *decimal.Decimal `json:"balance_change_absolute"`
}

// ComparisonResult carries the per-year deltas plus simple sums and averages
// over the selected years.
type ComparisonResult struct {
	Years           []YearComparison `json:"years"`
	TotalIncome     decimal.Decimal  `json:"total_income"`
	TotalExpenses   decimal.Decimal  `json:"total_expenses"`
	TotalBalance    decimal.Decimal  `json:"total_balance"`
	AverageIncome   decimal.Decimal  `json:"average_income"`
	AverageExpenses decimal.Decimal  `json:"average_expenses"`
}
