package services

import (
	"database/sql"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/require"
	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/processors"
	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE aircraft (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    registration TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE general_costs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    parent_id INTEGER REFERENCES general_costs(id),
    available_for_income BOOLEAN NOT NULL DEFAULT 0,
    available_for_expense BOOLEAN NOT NULL DEFAULT 1,
    active BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE membership_fee_types (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    default_amount TEXT NOT NULL DEFAULT '0',
    general_cost_id INTEGER REFERENCES general_costs(id)
);
CREATE TABLE membership_fee_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    year INTEGER NOT NULL,
    snapshot_date TEXT NOT NULL,
    fee_type_id INTEGER NOT NULL REFERENCES membership_fee_types(id),
    member_count INTEGER NOT NULL DEFAULT 0,
    amount_per_member TEXT NOT NULL DEFAULT '0',
    total_income TEXT,
    general_cost_id INTEGER REFERENCES general_costs(id)
);
CREATE TABLE transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    description TEXT NOT NULL,
    amount TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('income', 'expense')),
    reference TEXT NOT NULL DEFAULT '',
    processed BOOLEAN NOT NULL DEFAULT 0,
    general_cost_id INTEGER REFERENCES general_costs(id),
    version INTEGER NOT NULL DEFAULT 0,
    hash_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE cost_allocations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    transaction_id INTEGER NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
    aircraft_id INTEGER NOT NULL REFERENCES aircraft(id),
    weight TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    UNIQUE (transaction_id, aircraft_id)
);
CREATE TABLE imports_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    filename TEXT NOT NULL DEFAULT '',
    file_size INTEGER NOT NULL DEFAULT 0,
    imported_count INTEGER NOT NULL DEFAULT 0,
    skipped_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// setupTestDB points the global database handle at a fresh in-memory SQLite
// instance carrying the full schema.
func setupTestDB(t *testing.T) {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(on)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, db.Ping())

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	previous := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = previous
		db.Close()
	})
}

func newTestServices(t *testing.T) (ImportService, AllocationService, ReportService) {
	t.Helper()
	setupTestDB(t)
	reportService := NewReportService(cache.New(time.Minute, time.Minute))
	importService := NewImportService(processors.NewTransactionProcessor(), reportService)
	allocationService := NewAllocationService(reportService)
	return importService, allocationService, reportService
}

func insertAircraft(t *testing.T, registration string) int64 {
	t.Helper()
	res, err := database.DB.Exec(`INSERT INTO aircraft (registration, name, active) VALUES (?, ?, 1)`,
		registration, registration)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertGeneralCost(t *testing.T, name string, parentID *int64) int64 {
	t.Helper()
	res, err := database.DB.Exec(`
		INSERT INTO general_costs (name, parent_id, available_for_income, available_for_expense, active)
		VALUES (?, ?, 1, 1, 1)`, name, parentID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertTransaction(t *testing.T, date, amount string, txType models.TransactionType, generalCostID *int64) int64 {
	t.Helper()
	res, err := database.DB.Exec(`
		INSERT INTO transactions (date, description, amount, type, reference, processed, general_cost_id, version, hash_id)
		VALUES (?, ?, ?, ?, '', 0, ?, 0, ?)`,
		date, "test "+date+" "+amount, amount, string(txType), generalCostID,
		date+"|"+amount+"|"+string(txType)+"|"+randomSuffix(t))
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

var hashCounter int

// randomSuffix keeps hand-inserted rows clear of the hash_id unique constraint.
func randomSuffix(t *testing.T) string {
	t.Helper()
	hashCounter++
	return t.Name() + "-" + strconv.Itoa(hashCounter)
}

func insertFeeType(t *testing.T, name string, generalCostID *int64) int64 {
	t.Helper()
	res, err := database.DB.Exec(`
		INSERT INTO membership_fee_types (name, default_amount, general_cost_id) VALUES (?, '0', ?)`,
		name, generalCostID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertFeeStat(t *testing.T, year int, feeTypeID int64, memberCount int64, amountPerMember string, totalIncome *string, generalCostID *int64) int64 {
	t.Helper()
	res, err := database.DB.Exec(`
		INSERT INTO membership_fee_stats (year, snapshot_date, fee_type_id, member_count, amount_per_member, total_income, general_cost_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		year, "2024-01-01", feeTypeID, memberCount, amountPerMember, totalIncome, generalCostID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}
