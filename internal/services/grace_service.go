package services

import (
	"fmt"
	"time"

	"github.com/campus-erp/backend/internal/evaluator"
	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GraceService stores per-course grace-mark allowances.
type GraceService struct {
	db *gorm.DB
}

func NewGraceService(db *gorm.DB) *GraceService {
	return &GraceService{db: db}
}

// GracePolicyParams carries the definable attributes of a policy.
type GracePolicyParams struct {
	CourseID        uuid.UUID  `json:"course_id" binding:"required"`
	MaxGraceMarks   *float64   `json:"max_grace_marks,omitempty"`
	MaxGracePercent *float64   `json:"max_grace_percent,omitempty"`
	ValidFrom       time.Time  `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
}

// Create stores a new active policy for a course.
func (s *GraceService) Create(actor Actor, p GracePolicyParams) (*models.GracePolicy, error) {
	if !actor.Can(CapAdmin) {
		return nil, fmt.Errorf("%w: %s", ErrCapability, CapAdmin)
	}
	if p.MaxGraceMarks == nil && p.MaxGracePercent == nil {
		return nil, fmt.Errorf("%w: at least one grace cap required", ErrValidation)
	}
	if p.MaxGraceMarks != nil && *p.MaxGraceMarks < 0 {
		return nil, fmt.Errorf("%w: absolute cap cannot be negative", ErrValidation)
	}
	if p.MaxGracePercent != nil && *p.MaxGracePercent < 0 {
		return nil, fmt.Errorf("%w: percent cap cannot be negative", ErrValidation)
	}
	if p.ValidUntil != nil && p.ValidUntil.Before(p.ValidFrom) {
		return nil, fmt.Errorf("%w: validity window ends before it starts", ErrValidation)
	}

	policy := &models.GracePolicy{
		CourseID:        p.CourseID,
		MaxGraceMarks:   p.MaxGraceMarks,
		MaxGracePercent: p.MaxGracePercent,
		IsActive:        true,
		ValidFrom:       p.ValidFrom,
		ValidUntil:      p.ValidUntil,
	}
	if err := s.db.Create(policy).Error; err != nil {
		return nil, err
	}
	return policy, nil
}

// Deactivate switches a policy off without deleting it.
func (s *GraceService) Deactivate(actor Actor, id uuid.UUID) error {
	if !actor.Can(CapAdmin) {
		return fmt.Errorf("%w: %s", ErrCapability, CapAdmin)
	}
	res := s.db.Model(&models.GracePolicy{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: grace policy %s", ErrNotFound, id)
	}
	return nil
}

// List returns all policies for a course.
func (s *GraceService) List(courseID uuid.UUID) ([]models.GracePolicy, error) {
	var policies []models.GracePolicy
	err := s.db.Where("course_id = ?", courseID).Order("created_at DESC").Find(&policies).Error
	return policies, err
}

// ActivePolicy returns the course's policy in effect at the given instant,
// or nil when none applies.
func (s *GraceService) ActivePolicy(courseID uuid.UUID, at time.Time) (*models.GracePolicy, error) {
	var policies []models.GracePolicy
	err := s.db.Where("course_id = ? AND is_active = ?", courseID, true).
		Order("created_at DESC").Find(&policies).Error
	if err != nil {
		return nil, err
	}
	for i := range policies {
		if policyParams(&policies[i]).InEffect(at) {
			return &policies[i], nil
		}
	}
	return nil, nil
}

// policyParams converts a stored policy into the evaluator's pure form.
func policyParams(p *models.GracePolicy) evaluator.GracePolicy {
	return evaluator.GracePolicy{
		AbsoluteCap: p.MaxGraceMarks,
		PercentCap:  p.MaxGracePercent,
		Active:      p.IsActive,
		ValidFrom:   p.ValidFrom,
		ValidUntil:  p.ValidUntil,
	}
}
