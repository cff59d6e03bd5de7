package handlers

import (
	"net/http"

	"github.com/campus-erp/backend/internal/middleware"
	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MarksHandler struct {
	db    *gorm.DB
	marks *services.MarksService
}

func NewMarksHandler(db *gorm.DB) *MarksHandler {
	return &MarksHandler{db: db, marks: services.NewMarksService(db)}
}

func (h *MarksHandler) Upsert(c *gin.Context) {
	var req struct {
		ComponentID string   `json:"component_id" binding:"required"`
		StudentID   string   `json:"student_id" binding:"required"`
		Marks       *float64 `json:"marks,omitempty"`
		IsAbsent    bool     `json:"is_absent"`
		Remarks     string   `json:"remarks"`
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
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid student ID"})
		return
	}

	rec, err := h.marks.UpsertRaw(middleware.GetActor(c), componentID, studentID,
		req.Marks, req.IsAbsent, req.Remarks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *MarksHandler) Submit(c *gin.Context) {
	var req struct {
		ComponentID string   `json:"component_id" binding:"required"`
		StudentIDs  []string `json:"student_ids" binding:"required"`
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

	studentIDs := make([]uuid.UUID, 0, len(req.StudentIDs))
	for _, s := range req.StudentIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid student ID: " + s})
			return
		}
		studentIDs = append(studentIDs, id)
	}

	count, err := h.marks.Submit(middleware.GetActor(c), componentID, studentIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submitted": count})
}

func (h *MarksHandler) List(c *gin.Context) {
	componentID, err := uuid.Parse(c.Query("component_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "component_id query parameter required"})
		return
	}

	recs, err := h.marks.Records(componentID, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}
