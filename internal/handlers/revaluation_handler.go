package handlers

import (
	"net/http"

	"github.com/campus-erp/backend/internal/middleware"
	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RevaluationHandler struct {
	db           *gorm.DB
	revaluations *services.RevaluationService
}

func NewRevaluationHandler(db *gorm.DB, finance services.FinanceNotifier) *RevaluationHandler {
	return &RevaluationHandler{
		db:           db,
		revaluations: services.NewRevaluationService(db, finance),
	}
}

func (h *RevaluationHandler) Open(c *gin.Context) {
	var req struct {
		ApplicationID string `json:"application_id" binding:"required"`
		StudentID     string `json:"student_id" binding:"required"`
		ComponentID   string `json:"component_id" binding:"required"`
		RevalType     string `json:"reval_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applicationID, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application ID"})
		return
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid student ID"})
		return
	}
	componentID, err := uuid.Parse(req.ComponentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
		return
	}

	subject, err := h.revaluations.Open(middleware.GetActor(c),
		applicationID, studentID, componentID, req.RevalType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subject)
}

func (h *RevaluationHandler) EnterRemarks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subject ID"})
		return
	}

	var req struct {
		Marks *float64 `json:"marks" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subject, err := h.revaluations.EnterRemarks(middleware.GetActor(c), id, *req.Marks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subject)
}

func (h *RevaluationHandler) Reconcile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subject ID"})
		return
	}

	var req struct {
		RefundAmount float64 `json:"refund_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subject, err := h.revaluations.Reconcile(middleware.GetActor(c), id, req.RefundAmount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subject)
}

func (h *RevaluationHandler) List(c *gin.Context) {
	subjects, err := h.revaluations.List(c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}
