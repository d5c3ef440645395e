// backend/src/services/allocation_service.go
package services

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
)

// weightSumTolerance is how far a non-empty allocation's weight sum may drift
// from 100 percent.
var weightSumTolerance = decimal.RequireFromString("0.01")

var fullWeight = decimal.NewFromInt(100)

type allocationServiceImpl struct {
	reportService ReportService
}

func NewAllocationService(reportService ReportService) AllocationService {
	return &allocationServiceImpl{reportService: reportService}
}

// ValidateAllocations checks the weight invariants: every weight within
// [0, 100] and, for a non-empty list, a sum of 100 within tolerance. An empty
// list is valid and means "no allocation".
func ValidateAllocations(allocations []models.CostAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	sum := decimal.Zero
	seen := make(map[int64]bool, len(allocations))
	for _, a := range allocations {
		if a.Weight.IsNegative() || a.Weight.GreaterThan(fullWeight) {
			return &AllocationError{Reason: fmt.Sprintf("weight %s for aircraft %d is outside [0, 100]", a.Weight.String(), a.AircraftID)}
		}
		if seen[a.AircraftID] {
			return &AllocationError{Reason: fmt.Sprintf("aircraft %d listed more than once", a.AircraftID)}
		}
		seen[a.AircraftID] = true
		sum = sum.Add(a.Weight)
	}
	if sum.Sub(fullWeight).Abs().GreaterThan(weightSumTolerance) {
		return &AllocationError{Reason: "weights must sum to 100 percent", WeightSum: sum}
	}
	return nil
}

// SetAllocations replaces the transaction's allocation list as a single
// atomic unit. The version check makes concurrent edits to the same
// transaction fail loudly instead of silently overwriting each other.
func (s *allocationServiceImpl) SetAllocations(transactionID int64, allocations []models.CostAllocation, expectedVersion int64) error {
	if err := ValidateAllocations(allocations); err != nil {
		return err
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	var currentVersion int64
	err = dbTx.QueryRow(`SELECT version FROM transactions WHERE id = ?`, transactionID).Scan(&currentVersion)
	if err == sql.ErrNoRows {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("error reading transaction version: %w", err)
	}
	if currentVersion != expectedVersion {
		return ErrVersionConflict
	}

	if _, err := dbTx.Exec(`DELETE FROM cost_allocations WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("error clearing existing allocations: %w", err)
	}
	for position, a := range allocations {
		_, err := dbTx.Exec(`INSERT INTO cost_allocations (transaction_id, aircraft_id, weight, position)
			VALUES (?, ?, ?, ?)`,
			transactionID, a.AircraftID, a.Weight.String(), position)
		if err != nil {
			return fmt.Errorf("error inserting allocation for aircraft %d: %w", a.AircraftID, err)
		}
	}

	res, err := dbTx.Exec(`UPDATE transactions SET version = version + 1 WHERE id = ? AND version = ?`,
		transactionID, expectedVersion)
	if err != nil {
		return fmt.Errorf("error bumping transaction version: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil || affected != 1 {
		return ErrVersionConflict
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing allocation update: %w", err)
	}

	logger.L.Info("Cost allocations replaced", "transactionID", transactionID, "count", len(allocations))
	s.reportService.InvalidateCache()
	return nil
}

func (s *allocationServiceImpl) GetAllocations(transactionID int64) ([]models.CostAllocation, error) {
	rows, err := database.DB.Query(`SELECT aircraft_id, weight FROM cost_allocations
		WHERE transaction_id = ? ORDER BY position`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("error querying allocations: %w", err)
	}
	defer rows.Close()

	allocations := []models.CostAllocation{}
	for rows.Next() {
		var a models.CostAllocation
		if err := rows.Scan(&a.AircraftID, &a.Weight); err != nil {
			return nil, fmt.Errorf("error scanning allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}
