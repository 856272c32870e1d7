package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"github.com/gin-gonic/gin"
)

// dashboardSummaryHandler returns per-month forecast and actual totals
// against AOP targets for one fiscal year. Managers see only their own
// entries aggregated; targets stay organisation-wide.
func dashboardSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, _ := strconv.Atoi(c.Query("year"))
		if year <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year is required"})
			return
		}

		actor := actorFromContext(c)
		managerId := 0
		if actor.Role == models.UserRoleManager {
			managerId = actor.UserId
		}

		summary, err := models.GetDashboardSummary(c.Request.Context(), year, managerId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
