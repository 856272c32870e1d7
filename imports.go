package main

import (
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// importHandler accepts a multipart CSV or XLSX upload and drives it
// through the bulk import pipeline. Mismatched rows come back in the
// response body; the import itself still returns 200 so the caller can see
// the partial result.
func importHandler(typ models.EntryType) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, _ := strconv.Atoi(c.PostForm("year"))
		if year <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year is required"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer file.Close()

		rows, err := utils.ParseRows(file, fileHeader.Filename)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("could not parse file: %v", err)})
			return
		}

		result, err := newCoordinator().Import(c.Request.Context(), actorFromContext(c), typ, year, rows)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// exportActualsHandler writes one fiscal year of actuals as an XLSX
// workbook.
func exportActualsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, _ := strconv.Atoi(c.Query("year"))
		if year <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year is required"})
			return
		}

		rows, err := models.BuildExportRows(c.Request.Context(), models.EntryTypeActual, year)
		if err != nil {
			respondError(c, err)
			return
		}

		f := excelize.NewFile()
		defer f.Close()
		sheet := f.GetSheetName(0)

		header := []interface{}{"Account", "Delivery Manager", "Project Name", "BU", "VDE", "GDE"}
		for _, label := range models.FiscalMonthLabels {
			header = append(header, label)
		}
		header = append(header, "Total")
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			respondError(c, err)
			return
		}

		for i, row := range rows {
			record := []interface{}{row.Account, row.DeliveryManager, row.ProjectName, row.BU, row.VDE, row.GDE}
			for _, v := range row.Months {
				val, _ := v.Float64()
				record = append(record, val)
			}
			total, _ := row.Total.Float64()
			record = append(record, total)
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				respondError(c, err)
				return
			}
			if err := f.SetSheetRow(sheet, cell, &record); err != nil {
				respondError(c, err)
				return
			}
		}

		filename := fmt.Sprintf("actuals-%d.xlsx", year)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if err := f.Write(c.Writer); err != nil {
			_ = c.Error(err)
		}
	}
}
