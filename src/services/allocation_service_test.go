package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/models"
)

func alloc(aircraftID int64, weight string) models.CostAllocation {
	return models.CostAllocation{AircraftID: aircraftID, Weight: decimal.RequireFromString(weight)}
}

func TestValidateAllocations(t *testing.T) {
	t.Run("empty list is valid", func(t *testing.T) {
		assert.NoError(t, ValidateAllocations(nil))
		assert.NoError(t, ValidateAllocations([]models.CostAllocation{}))
	})

	t.Run("weights summing to 100 are valid", func(t *testing.T) {
		assert.NoError(t, ValidateAllocations([]models.CostAllocation{alloc(1, "60"), alloc(2, "40")}))
		assert.NoError(t, ValidateAllocations([]models.CostAllocation{alloc(1, "100")}))
		assert.NoError(t, ValidateAllocations([]models.CostAllocation{
			alloc(1, "33.33"), alloc(2, "33.33"), alloc(3, "33.34"),
		}))
	})

	t.Run("sum within tolerance passes", func(t *testing.T) {
		assert.NoError(t, ValidateAllocations([]models.CostAllocation{
			alloc(1, "33.33"), alloc(2, "33.33"), alloc(3, "33.33"),
		}))
	})

	t.Run("sum outside tolerance is rejected", func(t *testing.T) {
		err := ValidateAllocations([]models.CostAllocation{alloc(1, "60"), alloc(2, "30")})
		var allocErr *AllocationError
		require.ErrorAs(t, err, &allocErr)
		assert.True(t, allocErr.WeightSum.Equal(decimal.NewFromInt(90)))
	})

	t.Run("weight outside range is rejected", func(t *testing.T) {
		var allocErr *AllocationError
		require.ErrorAs(t, ValidateAllocations([]models.CostAllocation{alloc(1, "-10"), alloc(2, "110")}), &allocErr)
		require.ErrorAs(t, ValidateAllocations([]models.CostAllocation{alloc(1, "101")}), &allocErr)
	})

	t.Run("duplicate aircraft is rejected", func(t *testing.T) {
		var allocErr *AllocationError
		require.ErrorAs(t, ValidateAllocations([]models.CostAllocation{alloc(1, "50"), alloc(1, "50")}), &allocErr)
	})
}

func TestSetAllocationsReplacesAtomically(t *testing.T) {
	_, allocationService, _ := newTestServices(t)

	d228 := insertAircraft(t, "D-IFLY")
	d229 := insertAircraft(t, "D-EFGH")
	txID := insertTransaction(t, "2024-03-01", "180.94", models.TransactionExpense, nil)

	require.NoError(t, allocationService.SetAllocations(txID, []models.CostAllocation{
		alloc(d228, "70"), alloc(d229, "30"),
	}, 0))

	allocations, err := allocationService.GetAllocations(txID)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, d228, allocations[0].AircraftID)
	assert.True(t, allocations[0].Weight.Equal(decimal.NewFromInt(70)))

	// Replace, not merge: the old list disappears entirely.
	require.NoError(t, allocationService.SetAllocations(txID, []models.CostAllocation{
		alloc(d229, "100"),
	}, 1))
	allocations, err = allocationService.GetAllocations(txID)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, d229, allocations[0].AircraftID)
}

func TestSetAllocationsEmptyListClears(t *testing.T) {
	_, allocationService, _ := newTestServices(t)

	aircraftID := insertAircraft(t, "D-IFLY")
	txID := insertTransaction(t, "2024-03-01", "100", models.TransactionExpense, nil)

	require.NoError(t, allocationService.SetAllocations(txID, []models.CostAllocation{alloc(aircraftID, "100")}, 0))
	require.NoError(t, allocationService.SetAllocations(txID, nil, 1))

	allocations, err := allocationService.GetAllocations(txID)
	require.NoError(t, err)
	assert.Empty(t, allocations)
}

func TestSetAllocationsInvalidWeightsLeavePriorStateUntouched(t *testing.T) {
	_, allocationService, _ := newTestServices(t)

	aircraftID := insertAircraft(t, "D-IFLY")
	txID := insertTransaction(t, "2024-03-01", "100", models.TransactionExpense, nil)
	require.NoError(t, allocationService.SetAllocations(txID, []models.CostAllocation{alloc(aircraftID, "100")}, 0))

	err := allocationService.SetAllocations(txID, []models.CostAllocation{alloc(aircraftID, "50")}, 1)
	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)

	allocations, err := allocationService.GetAllocations(txID)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.True(t, allocations[0].Weight.Equal(decimal.NewFromInt(100)), "prior allocation survives a rejected update")

	var version int64
	require.NoError(t, database.DB.QueryRow(`SELECT version FROM transactions WHERE id = ?`, txID).Scan(&version))
	assert.Equal(t, int64(1), version, "rejected update must not bump the version")
}

func TestSetAllocationsVersionConflict(t *testing.T) {
	_, allocationService, _ := newTestServices(t)

	aircraftID := insertAircraft(t, "D-IFLY")
	txID := insertTransaction(t, "2024-03-01", "100", models.TransactionExpense, nil)

	require.NoError(t, allocationService.SetAllocations(txID, []models.CostAllocation{alloc(aircraftID, "100")}, 0))

	// A second writer still holding version 0 loses.
	err := allocationService.SetAllocations(txID, nil, 0)
	assert.ErrorIs(t, err, ErrVersionConflict)

	allocations, err := allocationService.GetAllocations(txID)
	require.NoError(t, err)
	require.Len(t, allocations, 1, "losing write must not change the allocation list")
}

func TestSetAllocationsUnknownTransaction(t *testing.T) {
	_, allocationService, _ := newTestServices(t)
	err := allocationService.SetAllocations(4711, nil, 0)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
