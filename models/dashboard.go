package models

import (
	"context"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"github.com/shopspring/decimal"
)

// MonthlySummary is one calendar month of the dashboard: total recorded
// value per entry type next to the AOP target for the same month.
type MonthlySummary struct {
	Month            int             `json:"month"`
	ForecastMillion  decimal.Decimal `json:"forecast_million"`
	ActualMillion    decimal.Decimal `json:"actual_million"`
	AOPTargetMillion decimal.Decimal `json:"aop_target_million"`
}

// DashboardSummary holds twelve summaries in fiscal month order Apr..Mar.
type DashboardSummary struct {
	Year   int               `json:"year"`
	Months []*MonthlySummary `json:"months"`
}

type monthTotal struct {
	Month int
	Total decimal.Decimal
}

// GetDashboardSummary aggregates forecast and actual totals per month for a
// fiscal year against the newest AOP target per (project, month). ManagerId
// of zero means the whole organisation; non-zero scopes to that manager's
// entries.
func GetDashboardSummary(ctx context.Context, year int, managerId int) (*DashboardSummary, error) {
	forecast, err := sumEntriesByMonth(ctx, EntryTypeForecast, year, managerId)
	if err != nil {
		return nil, err
	}
	actual, err := sumEntriesByMonth(ctx, EntryTypeActual, year, managerId)
	if err != nil {
		return nil, err
	}
	targets, err := sumAOPTargetsByMonth(ctx, year)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{Year: year, Months: make([]*MonthlySummary, 0, 12)}
	for _, m := range FiscalMonthOrder {
		summary.Months = append(summary.Months, &MonthlySummary{
			Month:            m,
			ForecastMillion:  forecast[m],
			ActualMillion:    actual[m],
			AOPTargetMillion: targets[m],
		})
	}
	return summary, nil
}

func sumEntriesByMonth(ctx context.Context, typ EntryType, year int, managerId int) (map[int]decimal.Decimal, error) {
	db := config.GetDB()
	query := `SELECT month, COALESCE(SUM(value_million), 0) AS total
		FROM entries WHERE type = ? AND year = ?`
	args := []interface{}{typ, year}
	if managerId > 0 {
		query += ` AND manager_id = ?`
		args = append(args, managerId)
	}
	query += ` GROUP BY month`

	var rows []*monthTotal
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := make(map[int]decimal.Decimal, len(rows))
	for _, r := range rows {
		totals[r.Month] = r.Total
	}
	return totals, nil
}

// sumAOPTargetsByMonth sums the most recent target row per (project, month).
// Targets are append-only, so the newest row supersedes earlier ones.
func sumAOPTargetsByMonth(ctx context.Context, year int) (map[int]decimal.Decimal, error) {
	db := config.GetDB()
	query := `SELECT t.month, COALESCE(SUM(t.value_million), 0) AS total
		FROM aop_targets t
		INNER JOIN (
			SELECT project_id, month, MAX(id) AS max_id
			FROM aop_targets WHERE year = ?
			GROUP BY project_id, month
		) latest ON latest.max_id = t.id
		GROUP BY t.month`

	var rows []*monthTotal
	if err := db.WithContext(ctx).Raw(query, year).Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := make(map[int]decimal.Decimal, len(rows))
	for _, r := range rows {
		totals[r.Month] = r.Total
	}
	return totals, nil
}
