package services

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/models"
)

func statementEntry(date, description, amount, reference string) models.StatementEntry {
	return models.StatementEntry{
		Date:        date,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Reference:   reference,
	}
}

func TestImportEntriesPersistsAndClassifies(t *testing.T) {
	importService, _, _ := newTestServices(t)

	entries := []models.StatementEntry{
		statementEntry("2024-03-01", "Startgebuehr Max", "-180.94", "REF-1"),
		statementEntry("2024-03-02", "Spende", "50", ""),
	}

	result, err := importService.ImportEntries(entries, "sparkasse", "export.csv", 123)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImportedCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Empty(t, result.FailedItems)

	rows, err := database.DB.Query(`SELECT date, amount, type FROM transactions ORDER BY date`)
	require.NoError(t, err)
	defer rows.Close()

	type stored struct {
		date, amount, txType string
	}
	var got []stored
	for rows.Next() {
		var s stored
		require.NoError(t, rows.Scan(&s.date, &s.amount, &s.txType))
		got = append(got, s)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "expense", got[0].txType)
	assert.Equal(t, "180.94", got[0].amount, "amount is stored absolute")
	assert.Equal(t, "income", got[1].txType)
}

func TestImportEntriesIsIdempotent(t *testing.T) {
	importService, _, _ := newTestServices(t)

	entries := []models.StatementEntry{
		statementEntry("2024-03-01", "Startgebuehr", "-180.94", "REF-1"),
		statementEntry("2024-03-02", "Spende", "50", ""),
	}

	first, err := importService.ImportEntries(entries, "sparkasse", "export.csv", 123)
	require.NoError(t, err)
	assert.Equal(t, 2, first.ImportedCount)

	second, err := importService.ImportEntries(entries, "sparkasse", "export.csv", 123)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ImportedCount)
	assert.Equal(t, 2, second.SkippedCount)
	assert.Len(t, second.SkippedItems, 2)

	var count int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(1) FROM transactions`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestImportEntriesDeduplicatesWithinBatch(t *testing.T) {
	importService, _, _ := newTestServices(t)

	duplicate := statementEntry("2024-03-01", "Startgebuehr", "-180.94", "REF-1")
	result, err := importService.ImportEntries([]models.StatementEntry{duplicate, duplicate}, "sparkasse", "export.csv", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImportedCount)
	assert.Equal(t, 1, result.SkippedCount)
}

func TestImportEntriesKeepsSameDayRefund(t *testing.T) {
	importService, _, _ := newTestServices(t)

	// A charge and its refund share date, reference and magnitude; only the
	// sign differs. Both must persist.
	entries := []models.StatementEntry{
		statementEntry("2024-03-01", "Startgebuehr", "-180.94", "REF-1"),
		statementEntry("2024-03-01", "Erstattung Startgebuehr", "180.94", "REF-1"),
	}

	result, err := importService.ImportEntries(entries, "sparkasse", "export.csv", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImportedCount)
	assert.Equal(t, 0, result.SkippedCount)

	rows, err := database.DB.Query(`SELECT type FROM transactions ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var types []string
	for rows.Next() {
		var txType string
		require.NoError(t, rows.Scan(&txType))
		types = append(types, txType)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"expense", "income"}, types)
}

func TestImportEntriesRecordsHistory(t *testing.T) {
	importService, _, _ := newTestServices(t)

	entries := []models.StatementEntry{statementEntry("2024-03-01", "Spende", "50", "")}
	_, err := importService.ImportEntries(entries, "sparkasse", "export.csv", 99)
	require.NoError(t, err)

	var source, filename string
	var imported, skipped int
	require.NoError(t, database.DB.QueryRow(`
		SELECT source, filename, imported_count, skipped_count FROM imports_history`).
		Scan(&source, &filename, &imported, &skipped))
	assert.Equal(t, "sparkasse", source)
	assert.Equal(t, "export.csv", filename)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, skipped)

	// An all-skipped re-import still leaves its own history record.
	_, err = importService.ImportEntries(entries, "sparkasse", "export.csv", 99)
	require.NoError(t, err)
	var historyCount int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(1) FROM imports_history`).Scan(&historyCount))
	assert.Equal(t, 2, historyCount)

	require.NoError(t, database.DB.QueryRow(`
		SELECT imported_count, skipped_count FROM imports_history ORDER BY id DESC LIMIT 1`).
		Scan(&imported, &skipped))
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)
}

func TestImportStatementParsesAndImports(t *testing.T) {
	importService, _, _ := newTestServices(t)

	csvData := "Buchungstag;Name Zahlungsbeteiligter;Verwendungszweck;Betrag\n" +
		"01.03.2024;Max Mustermann;Startgebuehr;-180,94\n"

	result, err := importService.ImportStatement(strings.NewReader(csvData), "sparkasse", "export.csv", int64(len(csvData)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImportedCount)
}

func TestImportStatementUnknownSource(t *testing.T) {
	importService, _, _ := newTestServices(t)

	_, err := importService.ImportStatement(strings.NewReader("x"), "nonexistent-bank", "f.csv", 1)
	assert.ErrorIs(t, err, ErrParsingFailed)
}

func TestImportStatementUnparsableFile(t *testing.T) {
	importService, _, _ := newTestServices(t)

	_, err := importService.ImportStatement(strings.NewReader("kein;csv\nheader"), "sparkasse", "f.csv", 1)
	assert.ErrorIs(t, err, ErrParsingFailed)
}

func TestIsDuplicate(t *testing.T) {
	importService, _, _ := newTestServices(t)

	entry := statementEntry("2024-03-01", "Startgebuehr", "-180.94", "REF-1")
	duplicate, err := importService.IsDuplicate(entry)
	require.NoError(t, err)
	assert.False(t, duplicate)

	_, err = importService.ImportEntries([]models.StatementEntry{entry}, "sparkasse", "f.csv", 1)
	require.NoError(t, err)

	duplicate, err = importService.IsDuplicate(entry)
	require.NoError(t, err)
	assert.True(t, duplicate)

	// Same reference and amount but a different description still matches.
	variant := statementEntry("2024-03-01", "andere Beschreibung", "-180.94", "REF-1")
	duplicate, err = importService.IsDuplicate(variant)
	require.NoError(t, err)
	assert.True(t, duplicate)
}

func TestAddManualEntry(t *testing.T) {
	importService, _, _ := newTestServices(t)

	tx, err := importService.AddManualEntry(statementEntry("2024-04-01", "Bareinzahlung", "25", ""))
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.NotZero(t, tx.ID)
	assert.Equal(t, models.TransactionIncome, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(25)))

	_, err = importService.AddManualEntry(statementEntry("2024-04-01", "Bareinzahlung", "25", ""))
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}
