package handlers

import (
	"net/http"
	"strconv"

	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditHandler struct {
	db    *gorm.DB
	audit *services.AuditService
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{db: db, audit: services.NewAuditService(db)}
}

func (h *AuditHandler) GetRecentActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.audit.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AuditHandler) GetResourceTrail(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}
	resourceType := c.Query("type")
	if resourceType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type query parameter required"})
		return
	}

	entries, err := h.audit.ForResource(resourceType, resourceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
