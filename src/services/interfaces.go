// backend/src/services/interfaces.go
package services

import (
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/username/fliegerkasse/backend/src/models"
)

// Define common service errors
var (
	ErrParsingFailed        = errors.New("statement parsing failed")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("transaction already exists")
	// ErrVersionConflict means another writer changed the transaction between
	// read and write; the caller must reload and retry.
	ErrVersionConflict = errors.New("transaction was modified concurrently")
)

// AllocationError rejects an allocation set whose weights are invalid.
// The prior allocation list stays untouched when it is returned.
type AllocationError struct {
	Reason    string
	WeightSum decimal.Decimal
}

func (e *AllocationError) Error() string {
	if !e.WeightSum.IsZero() {
		return fmt.Sprintf("invalid cost allocation: %s (weight sum %s)", e.Reason, e.WeightSum.String())
	}
	return fmt.Sprintf("invalid cost allocation: %s", e.Reason)
}

// ResolutionError reports an unknown group selector passed to the reporting
// engine. No partial result accompanies it.
type ResolutionError struct {
	Kind    models.GroupKind
	GroupID int64
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unknown cost-center group %s/%d", e.Kind, e.GroupID)
}

// ImportFailure is a single statement row that could not be persisted. The
// batch carries on; the row is reported, never silently dropped.
type ImportFailure struct {
	Entry models.StatementEntry `json:"entry"`
	Error string                `json:"error"`
}

// ImportResult is the outcome of a (non-atomic) batch import.
type ImportResult struct {
	ImportedCount int                     `json:"imported_count"`
	SkippedCount  int                     `json:"skipped_count"`
	SkippedItems  []models.StatementEntry `json:"skipped_items"`
	FailedItems   []ImportFailure         `json:"failed_items,omitempty"`
}

// ImportService ingests bank statements and manual entries into transactions.
type ImportService interface {
	// ImportStatement parses an uploaded export and imports every candidate row.
	ImportStatement(fileReader io.Reader, source, filename string, filesize int64) (*ImportResult, error)
	// ImportEntries imports already-parsed candidates row by row.
	ImportEntries(entries []models.StatementEntry, source, filename string, filesize int64) (*ImportResult, error)
	// IsDuplicate checks a single candidate against the stored fingerprints.
	IsDuplicate(entry models.StatementEntry) (bool, error)
	// AddManualEntry persists one manually captured entry, applying the same
	// classification and duplicate rules as an import.
	AddManualEntry(entry models.StatementEntry) (*models.Transaction, error)
}

// AllocationService maintains the percentage split of a transaction's amount
// across aircraft.
type AllocationService interface {
	// SetAllocations atomically replaces the allocation list. expectedVersion
	// must match the transaction's current version counter.
	SetAllocations(transactionID int64, allocations []models.CostAllocation, expectedVersion int64) error
	GetAllocations(transactionID int64) ([]models.CostAllocation, error)
}

// ReportService computes cost-center aggregates over current persisted state.
// A nil selector means the global (unscoped) aggregate.
type ReportService interface {
	ComputeYearStats(selector *models.GroupSelector) ([]models.YearStat, models.ReportSummary, error)
	ComputeDetails(selector *models.GroupSelector, kind models.TransactionType) ([]models.DetailItem, error)
	CompareYears(selector *models.GroupSelector, years []int) (models.ComparisonResult, error)
	InvalidateCache()
}
