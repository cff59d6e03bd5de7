package handlers

import (
	"errors"
	"net/http"

	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
)

// respondError maps the engine's error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrCapability):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrLocked), errors.Is(err, services.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
