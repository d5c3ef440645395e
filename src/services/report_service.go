// backend/src/services/report_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/processors"
)

const (
	ckYearStats            = "report_year_stats_%s"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type reportServiceImpl struct {
	reportCache *cache.Cache
	comparator  *processors.ComparisonProcessor
}

func NewReportService(reportCache *cache.Cache) ReportService {
	return &reportServiceImpl{
		reportCache: reportCache,
		comparator:  processors.NewComparisonProcessor(),
	}
}

func (s *reportServiceImpl) InvalidateCache() {
	s.reportCache.Flush()
}

// cachedYearStats bundles what one ComputeYearStats call produces.
type cachedYearStats struct {
	Stats   []models.YearStat
	Summary models.ReportSummary
}

func selectorCacheKey(selector *models.GroupSelector) string {
	if selector == nil {
		return "global"
	}
	switch selector.Kind {
	case models.GroupAircraft:
		return fmt.Sprintf("aircraft_%d", selector.AircraftID)
	default:
		return fmt.Sprintf("generalCost_%d", selector.GeneralCostID)
	}
}

// yearOf extracts the calendar year from an ISO date.
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, _ := strconv.Atoi(date[:4])
	return year
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// resolveGeneralCostScope yields the set of general-cost IDs a selector
// covers: a root group rolls up itself plus all of its children, a child
// group stands alone. The hierarchy is loaded into a node arena once per
// call, which is also where the depth-of-one invariant is enforced.
func resolveGeneralCostScope(groupID int64) ([]int64, error) {
	rows, err := database.DB.Query(`SELECT id, parent_id FROM general_costs`)
	if err != nil {
		return nil, fmt.Errorf("error loading general-cost hierarchy: %w", err)
	}
	defer rows.Close()

	parents := make(map[int64]*int64)
	children := make(map[int64][]int64)
	for rows.Next() {
		var id int64
		var parentID *int64
		if err := rows.Scan(&id, &parentID); err != nil {
			return nil, fmt.Errorf("error scanning general cost: %w", err)
		}
		parents[id] = parentID
		if parentID != nil {
			children[*parentID] = append(children[*parentID], id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for id, parentID := range parents {
		if parentID == nil {
			continue
		}
		if grand, ok := parents[*parentID]; ok && grand != nil {
			return nil, fmt.Errorf("general-cost hierarchy deeper than one level at group %d", id)
		}
	}

	parentID, ok := parents[groupID]
	if !ok {
		return nil, &ResolutionError{Kind: models.GroupGeneralCost, GroupID: groupID}
	}
	if parentID != nil {
		// A child group: no further descent, depth is at most one.
		return []int64{groupID}, nil
	}
	return append([]int64{groupID}, children[groupID]...), nil
}

func aircraftExists(aircraftID int64) (bool, error) {
	var one int
	err := database.DB.QueryRow(`SELECT 1 FROM aircraft WHERE id = ?`, aircraftID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}

type yearAccumulator struct {
	income   decimal.Decimal
	expenses decimal.Decimal
	txCount  int
}

type yearBuckets map[int]*yearAccumulator

func (b yearBuckets) at(year int) *yearAccumulator {
	acc, ok := b[year]
	if !ok {
		acc = &yearAccumulator{income: decimal.Zero, expenses: decimal.Zero}
		b[year] = acc
	}
	return acc
}

func (b yearBuckets) add(year int, txType models.TransactionType, amount decimal.Decimal, countsAsTransaction bool) {
	acc := b.at(year)
	if txType == models.TransactionIncome {
		acc.income = acc.income.Add(amount)
	} else {
		acc.expenses = acc.expenses.Add(amount)
	}
	if countsAsTransaction {
		acc.txCount++
	}
}

// ComputeYearStats aggregates income, expenses, balance and transaction count
// per year for the selected cost center (nil selector: everything). Sums stay
// unrounded decimals; only a year with at least one contribution yields an
// entry.
func (s *reportServiceImpl) ComputeYearStats(selector *models.GroupSelector) ([]models.YearStat, models.ReportSummary, error) {
	cacheKey := fmt.Sprintf(ckYearStats, selectorCacheKey(selector))
	if cached, found := s.reportCache.Get(cacheKey); found {
		result := cached.(cachedYearStats)
		return result.Stats, result.Summary, nil
	}

	buckets := yearBuckets{}
	var err error
	switch {
	case selector == nil:
		err = s.accumulateGlobal(buckets)
	case selector.Kind == models.GroupAircraft:
		err = s.accumulateAircraft(buckets, selector.AircraftID)
	case selector.Kind == models.GroupGeneralCost:
		err = s.accumulateGeneralCost(buckets, selector.GeneralCostID)
	default:
		err = &ResolutionError{Kind: selector.Kind}
	}
	if err != nil {
		return nil, models.ReportSummary{}, err
	}

	stats := make([]models.YearStat, 0, len(buckets))
	summary := models.ReportSummary{Income: decimal.Zero, Expenses: decimal.Zero, Balance: decimal.Zero}
	for year, acc := range buckets {
		stats = append(stats, models.YearStat{
			Year:             year,
			Income:           acc.income,
			Expenses:         acc.expenses,
			Balance:          acc.income.Sub(acc.expenses),
			TransactionCount: acc.txCount,
		})
		summary.Income = summary.Income.Add(acc.income)
		summary.Expenses = summary.Expenses.Add(acc.expenses)
		summary.TransactionCount += acc.txCount
	}
	summary.Balance = summary.Income.Sub(summary.Expenses)
	sort.Slice(stats, func(i, j int) bool { return stats[i].Year < stats[j].Year })

	s.reportCache.Set(cacheKey, cachedYearStats{Stats: stats, Summary: summary}, DefaultCacheExpiration)
	logger.L.Debug("Year stats computed", "scope", selectorCacheKey(selector), "years", len(stats))
	return stats, summary, nil
}

func (s *reportServiceImpl) accumulateAircraft(buckets yearBuckets, aircraftID int64) error {
	exists, err := aircraftExists(aircraftID)
	if err != nil {
		return fmt.Errorf("error checking aircraft: %w", err)
	}
	if !exists {
		return &ResolutionError{Kind: models.GroupAircraft, GroupID: aircraftID}
	}

	rows, err := database.DB.Query(`
		SELECT t.date, t.amount, t.type, ca.weight
		FROM transactions t
		JOIN cost_allocations ca ON ca.transaction_id = t.id
		WHERE ca.aircraft_id = ?`, aircraftID)
	if err != nil {
		return fmt.Errorf("error querying aircraft contributions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date, txType string
		var amount, weight decimal.Decimal
		if err := rows.Scan(&date, &amount, &txType, &weight); err != nil {
			return fmt.Errorf("error scanning aircraft contribution: %w", err)
		}
		buckets.add(yearOf(date), models.TransactionType(txType), weightedContribution(amount, weight), true)
	}
	return rows.Err()
}

func (s *reportServiceImpl) accumulateGeneralCost(buckets yearBuckets, groupID int64) error {
	scope, err := resolveGeneralCostScope(groupID)
	if err != nil {
		return err
	}

	args := make([]any, len(scope))
	for i, id := range scope {
		args[i] = id
	}
	rows, err := database.DB.Query(fmt.Sprintf(`
		SELECT date, amount, type FROM transactions
		WHERE general_cost_id IN (%s)`, placeholders(len(scope))), args...)
	if err != nil {
		return fmt.Errorf("error querying general-cost transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date, txType string
		var amount decimal.Decimal
		if err := rows.Scan(&date, &amount, &txType); err != nil {
			return fmt.Errorf("error scanning general-cost transaction: %w", err)
		}
		// General-cost attribution is whole-amount, not percentage-split.
		buckets.add(yearOf(date), models.TransactionType(txType), amount, true)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	inScope := make(map[int64]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}
	stats, err := fetchMembershipFeeStats()
	if err != nil {
		return err
	}
	for _, fs := range stats {
		if fs.effectiveGeneralCostID == nil || !inScope[*fs.effectiveGeneralCostID] {
			continue
		}
		// Fee snapshots fold into income but are not transactions.
		buckets.add(fs.stat.Year, models.TransactionIncome, fs.stat.EffectiveIncome(), false)
	}
	return nil
}

func (s *reportServiceImpl) accumulateGlobal(buckets yearBuckets) error {
	rows, err := database.DB.Query(`SELECT date, amount, type FROM transactions`)
	if err != nil {
		return fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date, txType string
		var amount decimal.Decimal
		if err := rows.Scan(&date, &amount, &txType); err != nil {
			return fmt.Errorf("error scanning transaction: %w", err)
		}
		buckets.add(yearOf(date), models.TransactionType(txType), amount, true)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// The "all" aggregate counts every fee snapshot, attributed or not.
	stats, err := fetchMembershipFeeStats()
	if err != nil {
		return err
	}
	for _, fs := range stats {
		buckets.add(fs.stat.Year, models.TransactionIncome, fs.stat.EffectiveIncome(), false)
	}
	return nil
}

func weightedContribution(amount, weight decimal.Decimal) decimal.Decimal {
	return amount.Mul(weight).Div(fullWeight)
}

// feeStatRow couples a snapshot with its already-resolved general-cost mapping.
type feeStatRow struct {
	stat                   models.MembershipFeeStat
	feeTypeName            string
	effectiveGeneralCostID *int64
}

func fetchMembershipFeeStats() ([]feeStatRow, error) {
	rows, err := database.DB.Query(`
		SELECT s.year, s.snapshot_date, s.fee_type_id, s.member_count, s.amount_per_member,
		       s.total_income, s.general_cost_id, ft.name, ft.general_cost_id
		FROM membership_fee_stats s
		JOIN membership_fee_types ft ON ft.id = s.fee_type_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying membership fee stats: %w", err)
	}
	defer rows.Close()

	var result []feeStatRow
	for rows.Next() {
		var stat models.MembershipFeeStat
		var feeType models.MembershipFeeType
		if err := rows.Scan(&stat.Year, &stat.SnapshotDate, &stat.FeeTypeID, &stat.MemberCount,
			&stat.AmountPerMember, &stat.TotalIncome, &stat.GeneralCostID,
			&feeType.Name, &feeType.GeneralCostID); err != nil {
			return nil, fmt.Errorf("error scanning membership fee stat: %w", err)
		}
		result = append(result, feeStatRow{
			stat:                   stat,
			feeTypeName:            feeType.Name,
			effectiveGeneralCostID: stat.EffectiveGeneralCostID(feeType),
		})
	}
	return result, rows.Err()
}

// ComputeDetails lists every record behind an aggregated figure, one
// DetailItem per contributing record, using the exact matching and weighting
// rules of ComputeYearStats. Summing WeightedAmount per year therefore
// reproduces the matching YearStat field.
func (s *reportServiceImpl) ComputeDetails(selector *models.GroupSelector, kind models.TransactionType) ([]models.DetailItem, error) {
	if kind != models.TransactionIncome && kind != models.TransactionExpense {
		return nil, fmt.Errorf("unknown detail kind %q", kind)
	}

	switch {
	case selector == nil:
		return s.globalDetails(kind)
	case selector.Kind == models.GroupAircraft:
		return s.aircraftDetails(selector.AircraftID, kind)
	case selector.Kind == models.GroupGeneralCost:
		return s.generalCostDetails(selector.GeneralCostID, kind)
	default:
		return nil, &ResolutionError{Kind: selector.Kind}
	}
}

func (s *reportServiceImpl) aircraftDetails(aircraftID int64, kind models.TransactionType) ([]models.DetailItem, error) {
	exists, err := aircraftExists(aircraftID)
	if err != nil {
		return nil, fmt.Errorf("error checking aircraft: %w", err)
	}
	if !exists {
		return nil, &ResolutionError{Kind: models.GroupAircraft, GroupID: aircraftID}
	}

	rows, err := database.DB.Query(`
		SELECT t.date, t.description, t.reference, t.amount, t.type, ca.weight
		FROM transactions t
		JOIN cost_allocations ca ON ca.transaction_id = t.id
		WHERE ca.aircraft_id = ? AND t.type = ?
		ORDER BY t.date DESC, t.id DESC`, aircraftID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("error querying aircraft details: %w", err)
	}
	defer rows.Close()

	items := []models.DetailItem{}
	for rows.Next() {
		var item models.DetailItem
		var weight decimal.Decimal
		if err := rows.Scan(&item.Date, &item.Description, &item.Reference, &item.Amount, &item.Type, &weight); err != nil {
			return nil, fmt.Errorf("error scanning aircraft detail: %w", err)
		}
		item.Source = models.DetailSourceTransaction
		item.Year = yearOf(item.Date)
		item.WeightedAmount = weightedContribution(item.Amount, weight)
		item.AllocationWeight = decimal.NullDecimal{Decimal: weight, Valid: true}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *reportServiceImpl) generalCostDetails(groupID int64, kind models.TransactionType) ([]models.DetailItem, error) {
	scope, err := resolveGeneralCostScope(groupID)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(scope)+1)
	for _, id := range scope {
		args = append(args, id)
	}
	args = append(args, string(kind))
	rows, err := database.DB.Query(fmt.Sprintf(`
		SELECT date, description, reference, amount, type FROM transactions
		WHERE general_cost_id IN (%s) AND type = ?
		ORDER BY date DESC, id DESC`, placeholders(len(scope))), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying general-cost details: %w", err)
	}
	defer rows.Close()

	items := []models.DetailItem{}
	for rows.Next() {
		var item models.DetailItem
		if err := rows.Scan(&item.Date, &item.Description, &item.Reference, &item.Amount, &item.Type); err != nil {
			return nil, fmt.Errorf("error scanning general-cost detail: %w", err)
		}
		item.Source = models.DetailSourceTransaction
		item.Year = yearOf(item.Date)
		item.WeightedAmount = item.Amount
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if kind == models.TransactionIncome {
		inScope := make(map[int64]bool, len(scope))
		for _, id := range scope {
			inScope[id] = true
		}
		stats, err := fetchMembershipFeeStats()
		if err != nil {
			return nil, err
		}
		for _, fs := range stats {
			if fs.effectiveGeneralCostID == nil || !inScope[*fs.effectiveGeneralCostID] {
				continue
			}
			items = append(items, membershipFeeDetail(fs))
		}
	}
	return items, nil
}

func (s *reportServiceImpl) globalDetails(kind models.TransactionType) ([]models.DetailItem, error) {
	rows, err := database.DB.Query(`
		SELECT date, description, reference, amount, type FROM transactions
		WHERE type = ?
		ORDER BY date DESC, id DESC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("error querying transaction details: %w", err)
	}
	defer rows.Close()

	items := []models.DetailItem{}
	for rows.Next() {
		var item models.DetailItem
		if err := rows.Scan(&item.Date, &item.Description, &item.Reference, &item.Amount, &item.Type); err != nil {
			return nil, fmt.Errorf("error scanning transaction detail: %w", err)
		}
		item.Source = models.DetailSourceTransaction
		item.Year = yearOf(item.Date)
		item.WeightedAmount = item.Amount
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if kind == models.TransactionIncome {
		stats, err := fetchMembershipFeeStats()
		if err != nil {
			return nil, err
		}
		for _, fs := range stats {
			items = append(items, membershipFeeDetail(fs))
		}
	}
	return items, nil
}

func membershipFeeDetail(fs feeStatRow) models.DetailItem {
	income := fs.stat.EffectiveIncome()
	return models.DetailItem{
		Source:         models.DetailSourceMembershipFee,
		Year:           fs.stat.Year,
		Date:           fs.stat.SnapshotDate,
		Description:    fmt.Sprintf("%s %d (%d Mitglieder)", fs.feeTypeName, fs.stat.Year, fs.stat.MemberCount),
		Type:           models.TransactionIncome,
		Amount:         income,
		WeightedAmount: income,
	}
}

// CompareYears runs the comparator over the scope's year series.
func (s *reportServiceImpl) CompareYears(selector *models.GroupSelector, years []int) (models.ComparisonResult, error) {
	stats, _, err := s.ComputeYearStats(selector)
	if err != nil {
		return models.ComparisonResult{}, err
	}
	return s.comparator.Compare(stats, years), nil
}
