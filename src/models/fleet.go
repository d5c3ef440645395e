package models

import "github.com/shopspring/decimal"

// Aircraft is a cost-bearing asset of the club. It is only ever used as an
// allocation target; nothing in the accounting core mutates it.
type Aircraft struct {
	ID           int64  `json:"id"`
	Registration string `json:"registration"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
}

// GeneralCost is a named cost/income grouping node. A node with a parent is a
// detail group, a node without one is a root group. The parent chain is at
// most one level deep; there are no grandchildren.
type GeneralCost struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	ParentID            *int64 `json:"parent_id,omitempty"`
	AvailableForIncome  bool   `json:"available_for_income"`
	AvailableForExpense bool   `json:"available_for_expense"`
	Active              bool   `json:"active"`
}

// MembershipFeeType describes one kind of membership dues, optionally carrying
// a default general-cost mapping for its yearly snapshots.
type MembershipFeeType struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	DefaultAmount decimal.Decimal `json:"default_amount"`
	GeneralCostID *int64          `json:"general_cost_id,omitempty"`
}

// MembershipFeeStat is a yearly snapshot of dues income. TotalIncome, when
// set, overrides the member_count x amount_per_member product.
type MembershipFeeStat struct {
	ID              int64               `json:"id"`
	Year            int                 `json:"year"`
	SnapshotDate    string              `json:"snapshot_date"`
	FeeTypeID       int64               `json:"fee_type_id"`
	MemberCount     int64               `json:"member_count"`
	AmountPerMember decimal.Decimal     `json:"amount_per_member"`
	TotalIncome     decimal.NullDecimal `json:"total_income"`
	GeneralCostID   *int64              `json:"general_cost_id,omitempty"`
}

// EffectiveIncome returns the income this snapshot contributes: the explicit
// total when set, otherwise member count times amount per member.
func (s MembershipFeeStat) EffectiveIncome() decimal.Decimal {
	if s.TotalIncome.Valid {
		return s.TotalIncome.Decimal
	}
	return s.AmountPerMember.Mul(decimal.NewFromInt(s.MemberCount))
}

// EffectiveGeneralCostID resolves the snapshot's general-cost mapping: the
// explicit override wins, then the fee type's default. A nil result means the
// snapshot is unattributed and stays out of any general-cost-scoped aggregate.
func (s MembershipFeeStat) EffectiveGeneralCostID(feeType MembershipFeeType) *int64 {
	if s.GeneralCostID != nil {
		return s.GeneralCostID
	}
	return feeType.GeneralCostID
}
