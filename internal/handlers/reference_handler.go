package handlers

import (
	"net/http"

	"github.com/campus-erp/backend/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ReferenceHandler serves the read-only lookups consumed by the engine:
// courses, academic terms, and the component type taxonomy.
type ReferenceHandler struct {
	db *gorm.DB
}

func NewReferenceHandler(db *gorm.DB) *ReferenceHandler {
	return &ReferenceHandler{db: db}
}

func (h *ReferenceHandler) ListCourses(c *gin.Context) {
	var courses []models.Course
	query := h.db
	if dept := c.Query("department"); dept != "" {
		query = query.Where("department = ?", dept)
	}
	if err := query.Order("code").Find(&courses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, courses)
}

func (h *ReferenceHandler) GetCourse(c *gin.Context) {
	var course models.Course
	if err := h.db.First(&course, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *ReferenceHandler) ListTerms(c *gin.Context) {
	var terms []models.AcademicTerm
	if err := h.db.Order("year DESC, semester").Find(&terms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, terms)
}

func (h *ReferenceHandler) ListComponentTypes(c *gin.Context) {
	var types []models.ComponentType
	if err := h.db.Order("name").Find(&types).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, types)
}
