package models

import "github.com/shopspring/decimal"

// TransactionType classifies a transaction by the sign of its original amount.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// StatementEntry is a single normalized row from a bank statement export.
// The amount keeps its original sign; income/expense classification happens
// when the entry is persisted.
type StatementEntry struct {
	Date        string          `json:"date"` // ISO YYYY-MM-DD
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
}

// CostAllocation attributes a percentage of a transaction's amount to one aircraft.
type CostAllocation struct {
	AircraftID int64           `json:"aircraft_id"`
	Weight     decimal.Decimal `json:"weight"` // percent, 0-100
}

// Transaction is one persisted bank-statement line or manual entry.
// Amount is always the absolute value; Type carries the original sign.
// Version is an optimistic-concurrency counter bumped on every allocation edit.
type Transaction struct {
	ID              int64            `json:"id"`
	Date            string           `json:"date"`
	Description     string           `json:"description"`
	Amount          decimal.Decimal  `json:"amount"`
	Type            TransactionType  `json:"type"`
	Reference       string           `json:"reference,omitempty"`
	Processed       bool             `json:"processed"`
	GeneralCostID   *int64           `json:"general_cost_id,omitempty"`
	Version         int64            `json:"version"`
	HashID          string           `json:"hash_id"`
	CostAllocations []CostAllocation `json:"cost_allocations"`
}
