// backend/src/services/import_service.go
package services

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/parsers"
	"github.com/username/fliegerkasse/backend/src/processors"
)

type importServiceImpl struct {
	transactionProcessor *processors.TransactionProcessor
	reportService        ReportService
}

func NewImportService(transactionProcessor *processors.TransactionProcessor, reportService ReportService) ImportService {
	return &importServiceImpl{
		transactionProcessor: transactionProcessor,
		reportService:        reportService,
	}
}

func (s *importServiceImpl) ImportStatement(fileReader io.Reader, source, filename string, filesize int64) (*ImportResult, error) {
	overallStartTime := time.Now()
	logger.L.Info("ImportStatement START", "source", source, "filename", filename)

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}
	entries, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}

	result, err := s.ImportEntries(entries, source, filename, filesize)
	if err != nil {
		return nil, err
	}
	logger.L.Info("ImportStatement END", "source", source,
		"imported", result.ImportedCount, "skipped", result.SkippedCount,
		"failed", len(result.FailedItems), "duration", time.Since(overallStartTime))
	return result, nil
}

// ImportEntries persists candidates one row at a time. The batch is not
// atomic by contract: each row succeeds, is skipped as a duplicate, or fails
// on its own, and a persistence failure never aborts the remaining rows.
func (s *importServiceImpl) ImportEntries(entries []models.StatementEntry, source, filename string, filesize int64) (*ImportResult, error) {
	result := &ImportResult{SkippedItems: []models.StatementEntry{}}

	stmt, err := database.DB.Prepare(`INSERT INTO transactions
		(date, description, amount, type, reference, processed, version, hash_id)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		tx := s.transactionProcessor.ProcessEntry(entry)

		duplicate, err := s.lookupDuplicateWithRetry(tx.HashID)
		if err != nil {
			logger.L.Error("Duplicate lookup failed after retry", "row", i, "error", err)
			result.FailedItems = append(result.FailedItems, ImportFailure{Entry: entry, Error: err.Error()})
			continue
		}
		if duplicate {
			result.SkippedCount++
			result.SkippedItems = append(result.SkippedItems, entry)
			continue
		}

		_, err = stmt.Exec(tx.Date, tx.Description, tx.Amount.String(), string(tx.Type), tx.Reference, tx.HashID)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				// Raced with an identical row inside the same batch.
				logger.L.Debug("Skipping duplicate transaction on import", "hash_id", tx.HashID)
				result.SkippedCount++
				result.SkippedItems = append(result.SkippedItems, entry)
				continue
			}
			logger.L.Error("Failed to insert transaction", "row", i, "error", err)
			result.FailedItems = append(result.FailedItems, ImportFailure{Entry: entry, Error: err.Error()})
			continue
		}
		result.ImportedCount++
	}

	// Every upload leaves a history row, even when all rows were skipped.
	if len(entries) > 0 {
		_, err = database.DB.Exec(`
			INSERT INTO imports_history (source, filename, file_size, imported_count, skipped_count)
			VALUES (?, ?, ?, ?, ?)`,
			source, filename, filesize, result.ImportedCount, result.SkippedCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to record import in history: %w", err)
		}
	}
	if result.ImportedCount > 0 {
		s.reportService.InvalidateCache()
	}
	return result, nil
}

func (s *importServiceImpl) IsDuplicate(entry models.StatementEntry) (bool, error) {
	return s.lookupDuplicateWithRetry(processors.Fingerprint(entry))
}

// lookupDuplicateWithRetry treats a store hiccup as transient once; only a
// repeated failure is surfaced to the caller.
func (s *importServiceImpl) lookupDuplicateWithRetry(hashID string) (bool, error) {
	duplicate, err := lookupDuplicate(hashID)
	if err != nil {
		logger.L.Warn("Duplicate lookup failed, retrying once", "hash_id", hashID, "error", err)
		duplicate, err = lookupDuplicate(hashID)
	}
	return duplicate, err
}

func lookupDuplicate(hashID string) (bool, error) {
	var one int
	err := database.DB.QueryRow(`SELECT 1 FROM transactions WHERE hash_id = ?`, hashID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *importServiceImpl) AddManualEntry(entry models.StatementEntry) (*models.Transaction, error) {
	tx := s.transactionProcessor.ProcessEntry(entry)

	duplicate, err := s.lookupDuplicateWithRetry(tx.HashID)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if duplicate {
		return nil, ErrDuplicateTransaction
	}

	res, err := database.DB.Exec(`INSERT INTO transactions
		(date, description, amount, type, reference, processed, version, hash_id)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
		tx.Date, tx.Description, tx.Amount.String(), string(tx.Type), tx.Reference, tx.HashID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("error inserting manual transaction: %w", err)
	}

	tx.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error reading inserted transaction id: %w", err)
	}
	tx.CostAllocations = []models.CostAllocation{}

	logger.L.Info("Manual transaction saved", "id", tx.ID, "type", tx.Type, "amount", tx.Amount.String())
	s.reportService.InvalidateCache()
	return &tx, nil
}
