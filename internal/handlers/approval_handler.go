package handlers

import (
	"net/http"

	"github.com/campus-erp/backend/internal/middleware"
	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalHandler struct {
	db        *gorm.DB
	approvals *services.ApprovalService
}

func NewApprovalHandler(db *gorm.DB) *ApprovalHandler {
	return &ApprovalHandler{db: db, approvals: services.NewApprovalService(db)}
}

func (h *ApprovalHandler) Batches(c *gin.Context) {
	courseID := uuid.Nil
	if raw := c.Query("course_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
			return
		}
		courseID = parsed
	}

	batches, err := h.approvals.Batches(courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

func (h *ApprovalHandler) Transition(c *gin.Context) {
	var req struct {
		ComponentID string   `json:"component_id" binding:"required"`
		RecordIDs   []string `json:"record_ids" binding:"required"`
		Action      string   `json:"action" binding:"required"`
		Comment     string   `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	componentID, err := uuid.Parse(req.ComponentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
		return
	}

	recordIDs := make([]uuid.UUID, 0, len(req.RecordIDs))
	for _, s := range req.RecordIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid record ID: " + s})
			return
		}
		recordIDs = append(recordIDs, id)
	}

	err = h.approvals.Transition(middleware.GetActor(c), componentID, recordIDs, req.Action, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Transition applied"})
}

func (h *ApprovalHandler) BulkTransition(c *gin.Context) {
	var req struct {
		ComponentIDs []string `json:"component_ids" binding:"required"`
		Action       string   `json:"action" binding:"required"`
		Comment      string   `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	componentIDs := make([]uuid.UUID, 0, len(req.ComponentIDs))
	for _, s := range req.ComponentIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID: " + s})
			return
		}
		componentIDs = append(componentIDs, id)
	}

	results := h.approvals.BulkTransition(middleware.GetActor(c), componentIDs, req.Action, req.Comment)
	c.JSON(http.StatusOK, results)
}
