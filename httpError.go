package main

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"bitbucket.org/mmdatafocus/forecast_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondBindError reports a JSON binding failure, with per-field detail
// when the validator produced any.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(verrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondError maps the pipeline failure taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "problems": ve.Problems})
	case errors.Is(err, utils.ErrNotFound), errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, utils.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "only one update per week is allowed"})
	case errors.Is(err, utils.ErrFrozen):
		c.JSON(http.StatusLocked, gin.H{"error": "entry is frozen and can no longer be edited"})
	case errors.Is(err, workflow.ErrImportInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
