package handlers

import (
	"errors"
	"net/http"

	"github.com/campus-erp/backend/internal/evaluator"
	"github.com/campus-erp/backend/internal/middleware"
	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ComponentHandler struct {
	db         *gorm.DB
	components *services.ComponentService
	scores     *services.ScoreService
}

func NewComponentHandler(db *gorm.DB) *ComponentHandler {
	return &ComponentHandler{
		db:         db,
		components: services.NewComponentService(db),
		scores:     services.NewScoreService(db),
	}
}

func (h *ComponentHandler) Define(c *gin.Context) {
	var req struct {
		CourseID        string                   `json:"course_id" binding:"required"`
		TermID          string                   `json:"term_id" binding:"required"`
		ComponentTypeID string                   `json:"component_type_id" binding:"required"`
		Params          services.ComponentParams `json:"params" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}
	termID, err := uuid.Parse(req.TermID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid term ID"})
		return
	}
	typeID, err := uuid.Parse(req.ComponentTypeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component type ID"})
		return
	}

	result, err := h.components.Define(middleware.GetActor(c), courseID, termID, typeID, req.Params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *ComponentHandler) Edit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
		return
	}

	var params services.ComponentParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.components.Edit(middleware.GetActor(c), id, params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ComponentHandler) List(c *gin.Context) {
	courseID, err := uuid.Parse(c.Query("course_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id query parameter required"})
		return
	}
	termID, err := uuid.Parse(c.Query("term_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "term_id query parameter required"})
		return
	}

	defs, err := h.components.List(courseID, termID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (h *ComponentHandler) Readiness(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
		return
	}

	ready, err := h.components.IsReady(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"component_id": id, "ready": ready})
}

func (h *ComponentHandler) Scores(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
		return
	}

	scores, err := h.scores.ComponentScores(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scores)
}

func (h *ComponentHandler) Evaluate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
		return
	}

	var req struct {
		Scores []struct {
			Value  float64 `json:"value"`
			Absent bool    `json:"absent"`
		} `json:"scores" binding:"required"`
		Weights []float64 `json:"weights"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scores := make([]evaluator.Score, len(req.Scores))
	for i, s := range req.Scores {
		scores[i] = evaluator.Score{Value: s.Value, Absent: s.Absent}
	}

	value, err := h.scores.EvaluateItems(id, scores, req.Weights)
	if err != nil {
		if errors.Is(err, evaluator.ErrMalformedInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"component_id": id, "value": value})
}

func (h *ComponentHandler) Composite(c *gin.Context) {
	courseID, err := uuid.Parse(c.Query("course_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id query parameter required"})
		return
	}
	termID, err := uuid.Parse(c.Query("term_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "term_id query parameter required"})
		return
	}
	studentID, err := uuid.Parse(c.Query("student_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_id query parameter required"})
		return
	}

	value, err := h.scores.Composite(courseID, termID, studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_id": studentID, "course_id": courseID, "value": value})
}
