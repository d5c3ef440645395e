// backend/src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/security/validation"
	"github.com/username/fliegerkasse/backend/src/services"
	"github.com/username/fliegerkasse/backend/src/utils"
)

type TransactionHandler struct {
	importService     services.ImportService
	allocationService services.AllocationService
	reportService     services.ReportService
}

func NewTransactionHandler(importService services.ImportService, allocationService services.AllocationService, reportService services.ReportService) *TransactionHandler {
	return &TransactionHandler{
		importService:     importService,
		allocationService: allocationService,
		reportService:     reportService,
	}
}

// HandleGetTransactions lists all transactions, newest first, with their
// allocation lists attached.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	rows, err := database.DB.Query(`
		SELECT id, date, description, amount, type, reference, processed, general_cost_id, version, hash_id
		FROM transactions
		ORDER BY date DESC, id DESC`)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error querying transactions: %v", err), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	index := map[int64]int{}
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.Date, &tx.Description, &tx.Amount, &tx.Type,
			&tx.Reference, &tx.Processed, &tx.GeneralCostID, &tx.Version, &tx.HashID); err != nil {
			utils.SendJSONError(w, fmt.Sprintf("error scanning transaction: %v", err), http.StatusInternalServerError)
			return
		}
		tx.CostAllocations = []models.CostAllocation{}
		index[tx.ID] = len(transactions)
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error iterating transactions: %v", err), http.StatusInternalServerError)
		return
	}

	allocRows, err := database.DB.Query(`
		SELECT transaction_id, aircraft_id, weight FROM cost_allocations ORDER BY transaction_id, position`)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error querying allocations: %v", err), http.StatusInternalServerError)
		return
	}
	defer allocRows.Close()

	for allocRows.Next() {
		var txID int64
		var alloc models.CostAllocation
		if err := allocRows.Scan(&txID, &alloc.AircraftID, &alloc.Weight); err != nil {
			utils.SendJSONError(w, fmt.Sprintf("error scanning allocation: %v", err), http.StatusInternalServerError)
			return
		}
		if i, ok := index[txID]; ok {
			transactions[i].CostAllocations = append(transactions[i].CostAllocations, alloc)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// ManualTransactionRequest is the body for a manually captured entry. The
// amount keeps its sign; classification happens at persistence.
type ManualTransactionRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Reference   string `json:"reference"`
}

func (h *TransactionHandler) HandleAddManualTransaction(w http.ResponseWriter, r *http.Request) {
	var req ManualTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateISODate(req.Date, "date"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	description := validation.SanitizeText(validation.StripUnprintable(req.Description))
	if err := validation.ValidateStringNotEmpty(description, "description"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(description, validation.MaxDescriptionLength, "description"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := validation.ValidateAmountString(req.Amount, "amount", true)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if amount.IsZero() {
		utils.SendJSONError(w, "amount must not be zero", http.StatusBadRequest)
		return
	}
	reference := validation.SanitizeText(validation.StripUnprintable(req.Reference))
	if err := validation.ValidateStringMaxLength(reference, validation.MaxReferenceLength, "reference"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.importService.AddManualEntry(models.StatementEntry{
		Date:        req.Date,
		Description: description,
		Amount:      amount,
		Reference:   reference,
	})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateTransaction) {
			utils.SendJSONError(w, "an identical transaction already exists", http.StatusConflict)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to add manual transaction", "error", err)
		utils.SendJSONError(w, "failed to add transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

// SetAllocationsRequest replaces a transaction's allocation list. Version is
// the optimistic-concurrency token read alongside the transaction.
type SetAllocationsRequest struct {
	Version     int64                   `json:"version"`
	Allocations []models.CostAllocation `json:"allocations"`
}

func (h *TransactionHandler) HandleSetAllocations(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	var req SetAllocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err = h.allocationService.SetAllocations(transactionID, req.Allocations, req.Version)
	if err != nil {
		var allocErr *services.AllocationError
		switch {
		case errors.As(err, &allocErr):
			utils.SendJSONError(w, allocErr.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrTransactionNotFound):
			utils.SendJSONError(w, "transaction not found", http.StatusNotFound)
		case errors.Is(err, services.ErrVersionConflict):
			utils.SendJSONError(w, "transaction was modified concurrently, reload and retry", http.StatusConflict)
		default:
			logger.FromContext(r.Context()).Error("Failed to set allocations", "transactionID", transactionID, "error", err)
			utils.SendJSONError(w, "failed to set allocations", http.StatusInternalServerError)
		}
		return
	}

	allocations, err := h.allocationService.GetAllocations(transactionID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to reload allocations", "transactionID", transactionID, "error", err)
		utils.SendJSONError(w, "allocations saved but could not be reloaded", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"allocations": allocations})
}

// SetGeneralCostRequest tags a transaction with a general-cost group, or
// clears the tag when general_cost_id is null.
type SetGeneralCostRequest struct {
	GeneralCostID *int64 `json:"general_cost_id"`
}

func (h *TransactionHandler) HandleSetGeneralCost(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	var req SetGeneralCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`UPDATE transactions SET general_cost_id = ? WHERE id = ?`,
		req.GeneralCostID, transactionID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to tag transaction", "transactionID", transactionID, "error", err)
		utils.SendJSONError(w, "failed to tag transaction", http.StatusInternalServerError)
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		utils.SendJSONError(w, "transaction not found", http.StatusNotFound)
		return
	}

	h.reportService.InvalidateCache()
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRequest selects which transactions to delete: everything or one year.
type DeleteRequest struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

func (h *TransactionHandler) HandleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctxLogger := logger.FromContext(r.Context())
	ctxLogger.Info("Handling DeleteTransactions request", "type", req.Type, "values", req.Values)

	var deleted int64
	switch req.Type {
	case "all":
		res, err := database.DB.Exec(`DELETE FROM transactions`)
		if err != nil {
			utils.SendJSONError(w, "failed to delete transactions", http.StatusInternalServerError)
			return
		}
		deleted, _ = res.RowsAffected()
	case "year":
		if len(req.Values) == 0 {
			utils.SendJSONError(w, "year values required", http.StatusBadRequest)
			return
		}
		for _, year := range req.Values {
			if _, err := strconv.Atoi(year); err != nil {
				utils.SendJSONError(w, fmt.Sprintf("invalid year %q", year), http.StatusBadRequest)
				return
			}
			res, err := database.DB.Exec(`DELETE FROM transactions WHERE substr(date, 1, 4) = ?`, year)
			if err != nil {
				utils.SendJSONError(w, "failed to delete transactions", http.StatusInternalServerError)
				return
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
	default:
		utils.SendJSONError(w, "unknown delete type", http.StatusBadRequest)
		return
	}

	h.reportService.InvalidateCache()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}
