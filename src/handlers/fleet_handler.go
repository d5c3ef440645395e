// backend/src/handlers/fleet_handler.go
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/security/validation"
	"github.com/username/fliegerkasse/backend/src/services"
	"github.com/username/fliegerkasse/backend/src/utils"
)

// FleetHandler serves the master data behind the accounting core: aircraft,
// general-cost groups, membership fee types and their yearly snapshots.
type FleetHandler struct {
	reportService services.ReportService
}

func NewFleetHandler(reportService services.ReportService) *FleetHandler {
	return &FleetHandler{reportService: reportService}
}

func (h *FleetHandler) HandleGetAircraft(w http.ResponseWriter, r *http.Request) {
	rows, err := database.DB.Query(`SELECT id, registration, name, active FROM aircraft ORDER BY registration`)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to query aircraft", "error", err)
		utils.SendJSONError(w, "failed to query aircraft", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	aircraft := []models.Aircraft{}
	for rows.Next() {
		var a models.Aircraft
		if err := rows.Scan(&a.ID, &a.Registration, &a.Name, &a.Active); err != nil {
			utils.SendJSONError(w, "failed to scan aircraft", http.StatusInternalServerError)
			return
		}
		aircraft = append(aircraft, a)
	}
	if err := rows.Err(); err != nil {
		utils.SendJSONError(w, "failed to iterate aircraft", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(aircraft)
}

type createAircraftRequest struct {
	Registration string `json:"registration"`
	Name         string `json:"name"`
}

func (h *FleetHandler) HandleCreateAircraft(w http.ResponseWriter, r *http.Request) {
	var req createAircraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	registration := validation.SanitizeText(validation.StripUnprintable(req.Registration))
	name := validation.SanitizeText(validation.StripUnprintable(req.Name))
	if err := validation.ValidateStringNotEmpty(registration, "registration"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(registration, validation.MaxRegistrationLength, "registration"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(name, validation.MaxNameLength, "name"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`INSERT INTO aircraft (registration, name, active) VALUES (?, ?, 1)`,
		registration, name)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create aircraft", "registration", registration, "error", err)
		utils.SendJSONError(w, "failed to create aircraft (registration may already exist)", http.StatusConflict)
		return
	}
	id, _ := res.LastInsertId()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.Aircraft{ID: id, Registration: registration, Name: name, Active: true})
}

func (h *FleetHandler) HandleGetGeneralCosts(w http.ResponseWriter, r *http.Request) {
	rows, err := database.DB.Query(`
		SELECT id, name, parent_id, available_for_income, available_for_expense, active
		FROM general_costs ORDER BY COALESCE(parent_id, id), id`)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to query general costs", "error", err)
		utils.SendJSONError(w, "failed to query general costs", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	groups := []models.GeneralCost{}
	for rows.Next() {
		var g models.GeneralCost
		if err := rows.Scan(&g.ID, &g.Name, &g.ParentID, &g.AvailableForIncome, &g.AvailableForExpense, &g.Active); err != nil {
			utils.SendJSONError(w, "failed to scan general cost", http.StatusInternalServerError)
			return
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		utils.SendJSONError(w, "failed to iterate general costs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

type createGeneralCostRequest struct {
	Name                string `json:"name"`
	ParentID            *int64 `json:"parent_id"`
	AvailableForIncome  bool   `json:"available_for_income"`
	AvailableForExpense bool   `json:"available_for_expense"`
}

func (h *FleetHandler) HandleCreateGeneralCost(w http.ResponseWriter, r *http.Request) {
	var req createGeneralCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	name := validation.SanitizeText(validation.StripUnprintable(req.Name))
	if err := validation.ValidateStringNotEmpty(name, "name"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(name, validation.MaxNameLength, "name"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The hierarchy is two levels at most: a parent must itself be a root.
	if req.ParentID != nil {
		var parentOfParent *int64
		err := database.DB.QueryRow(`SELECT parent_id FROM general_costs WHERE id = ?`, *req.ParentID).Scan(&parentOfParent)
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "parent general-cost group does not exist", http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.FromContext(r.Context()).Error("Failed to check parent group", "parentID", *req.ParentID, "error", err)
			utils.SendJSONError(w, "failed to create general-cost group", http.StatusInternalServerError)
			return
		}
		if parentOfParent != nil {
			utils.SendJSONError(w, "parent must be a root group; nesting deeper than one level is not allowed", http.StatusBadRequest)
			return
		}
	}

	res, err := database.DB.Exec(`
		INSERT INTO general_costs (name, parent_id, available_for_income, available_for_expense, active)
		VALUES (?, ?, ?, ?, 1)`,
		name, req.ParentID, req.AvailableForIncome, req.AvailableForExpense)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create general-cost group", "name", name, "error", err)
		utils.SendJSONError(w, "failed to create general-cost group", http.StatusInternalServerError)
		return
	}
	id, _ := res.LastInsertId()

	h.reportService.InvalidateCache()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.GeneralCost{
		ID:                  id,
		Name:                name,
		ParentID:            req.ParentID,
		AvailableForIncome:  req.AvailableForIncome,
		AvailableForExpense: req.AvailableForExpense,
		Active:              true,
	})
}

func (h *FleetHandler) HandleGetMembershipFeeTypes(w http.ResponseWriter, r *http.Request) {
	rows, err := database.DB.Query(`SELECT id, name, default_amount, general_cost_id FROM membership_fee_types ORDER BY name`)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to query fee types", "error", err)
		utils.SendJSONError(w, "failed to query membership fee types", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	feeTypes := []models.MembershipFeeType{}
	for rows.Next() {
		var ft models.MembershipFeeType
		if err := rows.Scan(&ft.ID, &ft.Name, &ft.DefaultAmount, &ft.GeneralCostID); err != nil {
			utils.SendJSONError(w, "failed to scan membership fee type", http.StatusInternalServerError)
			return
		}
		feeTypes = append(feeTypes, ft)
	}
	if err := rows.Err(); err != nil {
		utils.SendJSONError(w, "failed to iterate membership fee types", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feeTypes)
}

type createFeeTypeRequest struct {
	Name          string `json:"name"`
	DefaultAmount string `json:"default_amount"`
	GeneralCostID *int64 `json:"general_cost_id"`
}

func (h *FleetHandler) HandleCreateMembershipFeeType(w http.ResponseWriter, r *http.Request) {
	var req createFeeTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	name := validation.SanitizeText(validation.StripUnprintable(req.Name))
	if err := validation.ValidateStringNotEmpty(name, "name"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := validation.ValidateAmountString(req.DefaultAmount, "default_amount", false)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`
		INSERT INTO membership_fee_types (name, default_amount, general_cost_id) VALUES (?, ?, ?)`,
		name, amount, req.GeneralCostID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create fee type", "name", name, "error", err)
		utils.SendJSONError(w, "failed to create membership fee type", http.StatusInternalServerError)
		return
	}
	id, _ := res.LastInsertId()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.MembershipFeeType{
		ID: id, Name: name, DefaultAmount: amount, GeneralCostID: req.GeneralCostID,
	})
}

func (h *FleetHandler) HandleGetMembershipFeeStats(w http.ResponseWriter, r *http.Request) {
	rows, err := database.DB.Query(`
		SELECT id, year, snapshot_date, fee_type_id, member_count, amount_per_member, total_income, general_cost_id
		FROM membership_fee_stats ORDER BY year DESC, fee_type_id`)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to query fee stats", "error", err)
		utils.SendJSONError(w, "failed to query membership fee stats", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	stats := []models.MembershipFeeStat{}
	for rows.Next() {
		var s models.MembershipFeeStat
		if err := rows.Scan(&s.ID, &s.Year, &s.SnapshotDate, &s.FeeTypeID, &s.MemberCount,
			&s.AmountPerMember, &s.TotalIncome, &s.GeneralCostID); err != nil {
			utils.SendJSONError(w, "failed to scan membership fee stat", http.StatusInternalServerError)
			return
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		utils.SendJSONError(w, "failed to iterate membership fee stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

type createFeeStatRequest struct {
	Year            int    `json:"year"`
	SnapshotDate    string `json:"snapshot_date"`
	FeeTypeID       int64  `json:"fee_type_id"`
	MemberCount     int64  `json:"member_count"`
	AmountPerMember string `json:"amount_per_member"`
	TotalIncome     string `json:"total_income"`
	GeneralCostID   *int64 `json:"general_cost_id"`
}

func (h *FleetHandler) HandleCreateMembershipFeeStat(w http.ResponseWriter, r *http.Request) {
	var req createFeeStatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateYear(req.Year, "year"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateISODate(req.SnapshotDate, "snapshot_date"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MemberCount < 0 {
		utils.SendJSONError(w, "member_count must not be negative", http.StatusBadRequest)
		return
	}
	amountPerMember, err := validation.ValidateAmountString(req.AmountPerMember, "amount_per_member", true)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// total_income is an optional override of member_count x amount_per_member.
	var totalIncome any
	if req.TotalIncome != "" {
		val, err := validation.ValidateAmountString(req.TotalIncome, "total_income", true)
		if err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		totalIncome = val
	}

	var feeTypeExists int
	if err := database.DB.QueryRow(`SELECT COUNT(1) FROM membership_fee_types WHERE id = ?`, req.FeeTypeID).Scan(&feeTypeExists); err != nil {
		utils.SendJSONError(w, "failed to create membership fee stat", http.StatusInternalServerError)
		return
	}
	if feeTypeExists == 0 {
		utils.SendJSONError(w, "membership fee type does not exist", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`
		INSERT INTO membership_fee_stats (year, snapshot_date, fee_type_id, member_count, amount_per_member, total_income, general_cost_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.Year, req.SnapshotDate, req.FeeTypeID, req.MemberCount, amountPerMember, totalIncome, req.GeneralCostID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create fee stat", "year", req.Year, "feeTypeID", req.FeeTypeID, "error", err)
		utils.SendJSONError(w, "failed to create membership fee stat", http.StatusInternalServerError)
		return
	}
	id, _ := res.LastInsertId()

	h.reportService.InvalidateCache()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"id": id})
}
