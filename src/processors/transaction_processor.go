// backend/src/processors/transaction_processor.go
package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/username/fliegerkasse/backend/src/models"
)

// TransactionProcessor turns normalized statement entries into persistable
// transactions: the sign of the original amount decides income vs expense,
// the amount is stored absolute, and a fingerprint hash is attached for
// duplicate detection.
type TransactionProcessor struct{}

func NewTransactionProcessor() *TransactionProcessor { return &TransactionProcessor{} }

// Process converts every entry. It never drops anything; filtering happened
// in the parser, duplicate handling happens at persistence time.
func (p *TransactionProcessor) Process(entries []models.StatementEntry) []models.Transaction {
	txs := make([]models.Transaction, 0, len(entries))
	for _, entry := range entries {
		txs = append(txs, p.ProcessEntry(entry))
	}
	return txs
}

// ProcessEntry converts a single entry.
func (p *TransactionProcessor) ProcessEntry(entry models.StatementEntry) models.Transaction {
	txType := models.TransactionIncome
	if entry.Amount.IsNegative() {
		txType = models.TransactionExpense
	}
	return models.Transaction{
		Date:        entry.Date,
		Description: entry.Description,
		Amount:      entry.Amount.Abs(),
		Type:        txType,
		Reference:   entry.Reference,
		HashID:      Fingerprint(entry),
	}
}

// Fingerprint builds the duplicate-detection hash for a statement entry:
// date, signed amount at two places, and a normalized comparison key that
// favors the reference over the description. Two entries are duplicates
// exactly when their fingerprints are equal; there is no fuzzy matching.
// The sign stays in the hash so a charge and its same-day refund under the
// same reference remain two distinct entries.
func Fingerprint(entry models.StatementEntry) string {
	key := entry.Reference
	if strings.TrimSpace(key) == "" {
		key = entry.Description
	}
	key = strings.ToLower(strings.TrimSpace(key))
	data := entry.Date + "|" + entry.Amount.StringFixed(2) + "|" + key
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
