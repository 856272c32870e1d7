package models

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"github.com/shopspring/decimal"
)

// Entry is one (project, year, month, type)-keyed financial record.
// Year is the fiscal year (Apr..Mar); Month is the calendar month number.
// The composite unique index is the final arbiter against concurrent
// upserts racing on the same key.
type Entry struct {
	ID           int               `gorm:"primary_key" json:"id"`
	ProjectId    int               `gorm:"uniqueIndex:idx_entry_key;not null" json:"project_id"`
	Year         int               `gorm:"uniqueIndex:idx_entry_key;not null" json:"year"`
	Month        int               `gorm:"uniqueIndex:idx_entry_key;not null" json:"month"`
	Type         EntryType         `gorm:"size:20;uniqueIndex:idx_entry_key;not null" json:"type"`
	ValueMillion decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"value_million"`
	Comment      string            `gorm:"type:text" json:"comment"`
	Probability  Probability       `gorm:"size:1" json:"probability"`
	Status       OpportunityStatus `gorm:"size:20" json:"status"`
	SnapshotURL  string            `gorm:"size:512" json:"snapshot_url"`
	ManagerId    int               `gorm:"index" json:"manager_id"`
	Project      *Project          `json:"project,omitempty"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// EntryQuery filters ListEntries. Month/Year zero means no filter.
// ManagerId restricts to entries owned by that manager (role scoping).
type EntryQuery struct {
	Type      EntryType
	Year      int
	Month     int
	ManagerId int
}

func ListEntries(ctx context.Context, q EntryQuery) ([]*Entry, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Entry{}).Where("type = ?", q.Type)
	if q.Year > 0 {
		dbCtx = dbCtx.Where("year = ?", q.Year)
	}
	if q.Month > 0 {
		dbCtx = dbCtx.Where("month = ?", q.Month)
	}
	if q.ManagerId > 0 {
		dbCtx = dbCtx.Where("manager_id = ?", q.ManagerId)
	}

	var entries []*Entry
	if err := dbCtx.Preload("Project").
		Order("project_id, year, month").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetEntryYears returns the distinct fiscal years for a type, newest first,
// cached in redis. Falls back to the current and next calendar year when no
// entries exist yet, so a fresh install still renders year pickers.
func GetEntryYears(ctx context.Context, typ EntryType) ([]int, error) {
	years := make([]int, 0)
	redisKey := "EntryYears:" + string(typ)
	exists, err := config.GetRedisObject(redisKey, &years)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&Entry{}).
			Where("type = ?", typ).Distinct("year").Pluck("year", &years).Error; err != nil {
			return nil, err
		}
		sort.Sort(sort.Reverse(sort.IntSlice(years)))
		if len(years) > 0 {
			if err := config.SetRedisObject(redisKey, &years, time.Hour); err != nil {
				return nil, err
			}
		}
	}
	if len(years) == 0 {
		y := time.Now().Year()
		years = []int{y, y + 1}
	}
	return years, nil
}

// ClearEntryYearsCache drops the cached year list after imports that may add
// a new fiscal year.
func ClearEntryYearsCache(typ EntryType) error {
	return config.RemoveRedisKey("EntryYears:" + string(typ))
}

// ExportRow is one project's line in a CSV export, month values in fiscal
// column order Apr..Mar.
type ExportRow struct {
	Account         string
	DeliveryManager string
	ProjectName     string
	BU              string
	VDE             string
	GDE             string
	Months          [12]decimal.Decimal
	Total           decimal.Decimal
	Comment         string
	Probability     Probability
	Status          OpportunityStatus
}

// FiscalMonthOrder is the calendar month number of each fiscal column.
var FiscalMonthOrder = [12]int{4, 5, 6, 7, 8, 9, 10, 11, 12, 1, 2, 3}

// FiscalMonthLabels are the export column headers, fiscal order.
var FiscalMonthLabels = [12]string{"Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec", "Jan", "Feb", "Mar"}

// BuildExportRows pivots monthly entries into one row per project,
// in deterministic project order.
func BuildExportRows(ctx context.Context, typ EntryType, year int) ([]*ExportRow, error) {
	entries, err := ListEntries(ctx, EntryQuery{Type: typ, Year: year})
	if err != nil {
		return nil, err
	}

	monthIndex := make(map[int]int, 12)
	for i, m := range FiscalMonthOrder {
		monthIndex[m] = i
	}

	byProject := make(map[int]*ExportRow)
	order := make([]int, 0)
	for _, e := range entries {
		row, ok := byProject[e.ProjectId]
		if !ok {
			row = &ExportRow{}
			if e.Project != nil {
				row.Account = e.Project.Account
				row.DeliveryManager = e.Project.ManagerName
				row.ProjectName = e.Project.Name
				row.BU = e.Project.BU
				row.VDE = e.Project.VDE
				row.GDE = e.Project.GDE
			}
			byProject[e.ProjectId] = row
			order = append(order, e.ProjectId)
		}
		if i, ok := monthIndex[e.Month]; ok {
			row.Months[i] = e.ValueMillion
			row.Total = row.Total.Add(e.ValueMillion)
		}
		if e.Comment != "" {
			row.Comment = e.Comment
		}
		if e.Probability != "" {
			row.Probability = e.Probability
		}
		if e.Status != "" {
			row.Status = e.Status
		}
	}

	rows := make([]*ExportRow, 0, len(order))
	for _, pid := range order {
		rows = append(rows, byProject[pid])
	}
	return rows, nil
}
