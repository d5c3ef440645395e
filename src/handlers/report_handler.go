// backend/src/handlers/report_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/services"
	"github.com/username/fliegerkasse/backend/src/utils"
)

type ReportHandler struct {
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// selectorFromQuery reads the optional group_type/group_id pair. Absent
// parameters mean the global scope (nil selector).
func selectorFromQuery(r *http.Request) (*models.GroupSelector, error) {
	groupType := r.URL.Query().Get("group_type")
	groupIDParam := r.URL.Query().Get("group_id")

	if groupType == "" && groupIDParam == "" {
		return nil, nil
	}
	if groupType == "" || groupIDParam == "" {
		return nil, errors.New("group_type and group_id must be provided together")
	}

	groupID, err := strconv.ParseInt(groupIDParam, 10, 64)
	if err != nil {
		return nil, errors.New("group_id must be an integer")
	}

	switch models.GroupKind(groupType) {
	case models.GroupAircraft:
		selector := models.AircraftGroup(groupID)
		return &selector, nil
	case models.GroupGeneralCost:
		selector := models.GeneralCostGroup(groupID)
		return &selector, nil
	default:
		return nil, errors.New("group_type must be 'aircraft' or 'generalCost'")
	}
}

// HandleGetYearStats returns the per-year aggregates for a scope, newest year
// first, with a flattened summary. Amounts are rounded at this boundary.
func (h *ReportHandler) HandleGetYearStats(w http.ResponseWriter, r *http.Request) {
	selector, err := selectorFromQuery(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, summary, err := h.reportService.ComputeYearStats(selector)
	if err != nil {
		writeReportError(w, r, err)
		return
	}

	// An optional years filter narrows the series; the summary always spans
	// the whole scope.
	if rawYears := r.URL.Query().Get("years"); rawYears != "" {
		years, err := utils.ParseYearSet(rawYears)
		if err != nil {
			utils.SendJSONError(w, "years must be a comma-separated integer list", http.StatusBadRequest)
			return
		}
		wanted := make(map[int]bool, len(years))
		for _, y := range years {
			wanted[y] = true
		}
		// Copy: the service may hand out a cached slice.
		filtered := make([]models.YearStat, 0, len(stats))
		for _, stat := range stats {
			if wanted[stat.Year] {
				filtered = append(filtered, stat)
			}
		}
		stats = filtered
	}

	rounded := make([]models.YearStat, len(stats))
	for i, stat := range stats {
		// Presentation order is newest first; the engine computes ascending.
		rounded[len(stats)-1-i] = stat.Rounded()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"years":   rounded,
		"summary": summary.Rounded(),
	})
}

// HandleGetDetails returns the individual contributions behind one side
// (income or expense) of a scope's aggregate.
func (h *ReportHandler) HandleGetDetails(w http.ResponseWriter, r *http.Request) {
	selector, err := selectorFromQuery(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	kind := models.TransactionType(r.URL.Query().Get("kind"))
	if kind != models.TransactionIncome && kind != models.TransactionExpense {
		utils.SendJSONError(w, "kind must be 'income' or 'expense'", http.StatusBadRequest)
		return
	}

	details, err := h.reportService.ComputeDetails(selector, kind)
	if err != nil {
		writeReportError(w, r, err)
		return
	}

	sort.SliceStable(details, func(i, j int) bool {
		if details[i].Year != details[j].Year {
			return details[i].Year > details[j].Year
		}
		return details[i].Date > details[j].Date
	})
	rounded := make([]models.DetailItem, len(details))
	for i, d := range details {
		rounded[i] = d.Rounded()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"details": rounded})
}

// HandleCompareYears compares explicitly selected years within a scope.
func (h *ReportHandler) HandleCompareYears(w http.ResponseWriter, r *http.Request) {
	selector, err := selectorFromQuery(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	years, err := utils.ParseYearSet(r.URL.Query().Get("years"))
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(years) == 0 {
		utils.SendJSONError(w, "at least one year must be selected", http.StatusBadRequest)
		return
	}

	result, err := h.reportService.CompareYears(selector, years)
	if err != nil {
		writeReportError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func writeReportError(w http.ResponseWriter, r *http.Request, err error) {
	var resErr *services.ResolutionError
	if errors.As(err, &resErr) {
		utils.SendJSONError(w, resErr.Error(), http.StatusNotFound)
		return
	}
	logger.FromContext(r.Context()).Error("Report computation failed", "error", err)
	sendInternalError(w, r, "report computation failed")
}
