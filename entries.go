package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"bitbucket.org/mmdatafocus/forecast_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func actorFromContext(c *gin.Context) workflow.Actor {
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	name, _ := utils.GetUserNameFromContext(c.Request.Context())
	role, _ := utils.GetRoleFromContext(c.Request.Context())
	return workflow.Actor{UserId: userId, Name: name, Role: models.UserRole(role)}
}

func newCoordinator() *workflow.Coordinator {
	store := models.NewStore(config.GetDB())
	return workflow.NewCoordinator(store, workflow.NewReconciler(store, workflow.DefaultEditPolicy()))
}

func entryTypeFromQuery(c *gin.Context) (models.EntryType, bool) {
	typ, err := models.ParseEntryType(c.Query("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be forecast, opportunity or actual"})
		return "", false
	}
	return typ, true
}

// listEntriesHandler returns entries filtered by type/year/month. Managers
// only see their own entries; admins see everything.
func listEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		typ, ok := entryTypeFromQuery(c)
		if !ok {
			return
		}
		year, _ := strconv.Atoi(c.Query("year"))
		month, _ := strconv.Atoi(c.Query("month"))

		actor := actorFromContext(c)
		q := models.EntryQuery{Type: typ, Year: year, Month: month}
		if actor.Role == models.UserRoleManager {
			q.ManagerId = actor.UserId
		}

		entries, err := models.ListEntries(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func listActualsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, _ := strconv.Atoi(c.Query("year"))
		entries, err := models.ListEntries(c.Request.Context(), models.EntryQuery{
			Type: models.EntryTypeActual,
			Year: year,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

type upsertEntryRequest struct {
	ProjectId    int                      `json:"projectId" binding:"required"`
	Year         int                      `json:"year" binding:"required"`
	Month        int                      `json:"month" binding:"required"`
	Type         models.EntryType         `json:"type"`
	ValueMillion decimal.Decimal          `json:"valueMillion"`
	Comment      string                   `json:"comment"`
	Probability  models.Probability       `json:"probability"`
	Status       models.OpportunityStatus `json:"status"`
	SnapshotURL  string                   `json:"snapshotURL"`
}

// upsertEntryHandler is the interactive single-cell path: the weekly
// throttle and the month-end freeze apply here and only here.
func upsertEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req upsertEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		store := models.NewStore(config.GetDB())
		reconciler := workflow.NewReconciler(store, workflow.DefaultEditPolicy())
		entry, err := reconciler.Apply(c.Request.Context(), actorFromContext(c), workflow.SourceInteractive, &workflow.CanonicalEntry{
			ProjectId:    req.ProjectId,
			Year:         req.Year,
			Month:        req.Month,
			Type:         req.Type,
			ValueMillion: req.ValueMillion,
			Comment:      req.Comment,
			Probability:  req.Probability,
			Status:       req.Status,
			SnapshotURL:  req.SnapshotURL,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if err := models.ClearEntryYearsCache(req.Type); err != nil {
			_ = c.Error(err)
		}
		c.JSON(http.StatusOK, entry)
	}
}

type bulkSaveRequest struct {
	Type models.EntryType         `json:"type"`
	Year int                      `json:"year" binding:"required"`
	Rows []map[string]interface{} `json:"rows" binding:"required"`
}

// bulkSaveHandler saves a whole edited grid. Any validation problem
// rejects the batch; nothing is written partially.
func bulkSaveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkSaveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if req.Type == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
			return
		}

		saved, err := newCoordinator().BulkSave(c.Request.Context(), actorFromContext(c), req.Type, req.Year, toRawRows(req.Rows))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"saved": saved})
	}
}

// toRawRows flattens JSON rows to string cells. Numbers come through in
// their JSON text form, so numeric coercion behaves the same for JSON and
// file input.
func toRawRows(rows []map[string]interface{}) []workflow.RawRow {
	out := make([]workflow.RawRow, 0, len(rows))
	for _, row := range rows {
		raw := make(workflow.RawRow, len(row))
		for k, v := range row {
			switch val := v.(type) {
			case nil:
				raw[k] = ""
			case string:
				raw[k] = val
			case float64:
				raw[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				raw[k] = strconv.FormatBool(val)
			default:
				raw[k] = fmt.Sprint(val)
			}
		}
		out = append(out, raw)
	}
	return out
}

func entryYearsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		typ, ok := entryTypeFromQuery(c)
		if !ok {
			return
		}
		years, err := models.GetEntryYears(c.Request.Context(), typ)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, years)
	}
}

func entryAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entryId, err := strconv.Atoi(c.Param("id"))
		if err != nil || entryId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
			return
		}
		logs, err := models.ListAuditLogsForEntry(c.Request.Context(), entryId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

// exportEntriesHandler streams a CSV pivot of one fiscal year, columns in
// fiscal month order Apr..Mar.
func exportEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		typ, ok := entryTypeFromQuery(c)
		if !ok {
			return
		}
		year, _ := strconv.Atoi(c.Query("year"))
		if year <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year is required"})
			return
		}

		rows, err := models.BuildExportRows(c.Request.Context(), typ, year)
		if err != nil {
			respondError(c, err)
			return
		}

		filename := fmt.Sprintf("%s-%d.csv", typ, year)
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

		w := csv.NewWriter(c.Writer)
		header := []string{"Account", "Delivery Manager", "Project Name", "BU", "VDE", "GDE"}
		header = append(header, models.FiscalMonthLabels[:]...)
		header = append(header, "Total", "Comment")
		if typ == models.EntryTypeOpportunity {
			header = append(header, "Probability", "Status")
		}
		if err := w.Write(header); err != nil {
			_ = c.Error(err)
			return
		}
		for _, row := range rows {
			record := []string{row.Account, row.DeliveryManager, row.ProjectName, row.BU, row.VDE, row.GDE}
			for _, v := range row.Months {
				record = append(record, v.String())
			}
			record = append(record, row.Total.String(), row.Comment)
			if typ == models.EntryTypeOpportunity {
				record = append(record, string(row.Probability), string(row.Status))
			}
			if err := w.Write(record); err != nil {
				_ = c.Error(err)
				return
			}
		}
		w.Flush()
	}
}
