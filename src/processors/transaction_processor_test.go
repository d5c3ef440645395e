package processors

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/username/fliegerkasse/backend/src/models"
)

func entry(date, description, amount, reference string) models.StatementEntry {
	return models.StatementEntry{
		Date:        date,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Reference:   reference,
	}
}

func TestProcessEntryClassifiesBySign(t *testing.T) {
	p := NewTransactionProcessor()

	expense := p.ProcessEntry(entry("2024-03-01", "Hallenmiete", "-50", ""))
	assert.Equal(t, models.TransactionExpense, expense.Type)
	assert.True(t, expense.Amount.Equal(decimal.NewFromInt(50)), "amount is stored absolute")

	income := p.ProcessEntry(entry("2024-03-01", "Spende", "50", ""))
	assert.Equal(t, models.TransactionIncome, income.Type)
	assert.True(t, income.Amount.Equal(decimal.NewFromInt(50)))

	// Zero is not negative, so it classifies as income.
	zero := p.ProcessEntry(entry("2024-03-01", "Storno", "0", ""))
	assert.Equal(t, models.TransactionIncome, zero.Type)
}

func TestFingerprintPrefersReference(t *testing.T) {
	withRef := entry("2024-03-01", "Beschreibung A", "10", "REF-1")
	differentDescription := entry("2024-03-01", "Beschreibung B", "10", "REF-1")
	assert.Equal(t, Fingerprint(withRef), Fingerprint(differentDescription),
		"description must not matter when a reference is present")

	differentRef := entry("2024-03-01", "Beschreibung A", "10", "REF-2")
	assert.NotEqual(t, Fingerprint(withRef), Fingerprint(differentRef))
}

func TestFingerprintFallsBackToDescription(t *testing.T) {
	a := entry("2024-03-01", "Startgebuehr", "10", "")
	b := entry("2024-03-01", "Startgebuehr", "10", "   ")
	assert.Equal(t, Fingerprint(a), Fingerprint(b), "blank reference falls back to description")

	c := entry("2024-03-01", "Landegebuehr", "10", "")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestFingerprintNormalizesKeyAndAmount(t *testing.T) {
	a := entry("2024-03-01", "  Startgebuehr  ", "10", "")
	b := entry("2024-03-01", "STARTGEBUEHR", "10.00", "")
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	// The sign contributes: a charge and its refund are distinct entries.
	pos := entry("2024-03-01", "Startgebuehr", "10", "")
	neg := entry("2024-03-01", "Startgebuehr", "-10", "")
	assert.NotEqual(t, Fingerprint(pos), Fingerprint(neg))
}

func TestFingerprintVariesWithDate(t *testing.T) {
	a := entry("2024-03-01", "Startgebuehr", "10", "")
	b := entry("2024-03-02", "Startgebuehr", "10", "")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestProcessConvertsAll(t *testing.T) {
	p := NewTransactionProcessor()
	txs := p.Process([]models.StatementEntry{
		entry("2024-01-01", "a", "-1", ""),
		entry("2024-01-02", "b", "2", ""),
	})
	assert.Len(t, txs, 2)
	assert.Equal(t, models.TransactionExpense, txs[0].Type)
	assert.Equal(t, models.TransactionIncome, txs[1].Type)
	assert.NotEmpty(t, txs[0].HashID)
}
