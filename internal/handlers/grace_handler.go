package handlers

import (
	"net/http"

	"github.com/campus-erp/backend/internal/middleware"
	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GraceHandler struct {
	db    *gorm.DB
	grace *services.GraceService
}

func NewGraceHandler(db *gorm.DB) *GraceHandler {
	return &GraceHandler{db: db, grace: services.NewGraceService(db)}
}

func (h *GraceHandler) Create(c *gin.Context) {
	var params services.GracePolicyParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := h.grace.Create(middleware.GetActor(c), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, policy)
}

func (h *GraceHandler) List(c *gin.Context) {
	courseID, err := uuid.Parse(c.Query("course_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id query parameter required"})
		return
	}

	policies, err := h.grace.List(courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (h *GraceHandler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid policy ID"})
		return
	}

	if err := h.grace.Deactivate(middleware.GetActor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Grace policy deactivated"})
}
