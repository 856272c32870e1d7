package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func listProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := models.ListProjects(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, projects)
	}
}

type createProjectRequest struct {
	Account     string `json:"account" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ManagerName string `json:"managerName"`
	BU          string `json:"bu"`
	VDE         string `json:"vde"`
	GDE         string `json:"gde"`
}

func createProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account and name are required"})
			return
		}

		project := &models.Project{
			Account:     req.Account,
			Name:        req.Name,
			Description: req.Description,
			ManagerName: req.ManagerName,
			BU:          req.BU,
			VDE:         req.VDE,
			GDE:         req.GDE,
		}
		if err := models.CreateProject(c.Request.Context(), project); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, project)
	}
}

type assignManagersRequest struct {
	ManagerIds []int `json:"managerIds"`
}

func assignManagersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, err := strconv.Atoi(c.Param("id"))
		if err != nil || projectId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		var req assignManagersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "managerIds is required"})
			return
		}

		project, err := models.UpdateProjectManagers(c.Request.Context(), projectId, req.ManagerIds)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

type setAOPTargetRequest struct {
	Year         int             `json:"year" binding:"required"`
	Month        int             `json:"month" binding:"required"`
	ValueMillion decimal.Decimal `json:"valueMillion"`
}

// setAOPTargetHandler appends a target record. Targets are never edited in
// place; a correction is simply a newer row.
func setAOPTargetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, err := strconv.Atoi(c.Param("id"))
		if err != nil || projectId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		var req setAOPTargetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year and month are required"})
			return
		}

		target, err := models.AppendAOPTarget(c.Request.Context(), projectId, req.Year, req.Month, req.ValueMillion)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, target)
	}
}

func listManagersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		managers, err := models.ListManagers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, managers)
	}
}
