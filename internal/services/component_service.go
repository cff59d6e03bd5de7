package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/campus-erp/backend/internal/evaluator"
	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ComponentService owns the per-course assessment blueprint.
type ComponentService struct {
	db *gorm.DB
}

func NewComponentService(db *gorm.DB) *ComponentService {
	return &ComponentService{db: db}
}

// ComponentParams carries the definable attributes of a component.
type ComponentParams struct {
	Name             string     `json:"name" binding:"required"`
	MaxMarks         float64    `json:"max_marks" binding:"required"`
	WeightagePercent float64    `json:"weightage_percent"`
	Formula          string     `json:"formula" binding:"required"`
	BestOfNCount     *int       `json:"best_of_n_count,omitempty"`
	ExpectedItems    int        `json:"expected_items"`
	RoundOff         string     `json:"round_off"`
	ManualEntry      bool       `json:"manual_entry"`
	ApprovalRequired bool       `json:"approval_required"`
	ApprovalDeadline *time.Time `json:"approval_deadline,omitempty"`
	EntryStartsAt    *time.Time `json:"entry_starts_at,omitempty"`
	EntryDeadline    *time.Time `json:"entry_deadline,omitempty"`
	GracePeriodHours int        `json:"grace_period_hours"`
	DependsOnID      *uuid.UUID `json:"depends_on_id,omitempty"`
}

// DefineResult pairs a stored definition with a non-fatal weightage warning.
// Over- or under-allocating a course's 100% is surfaced, never rejected.
type DefineResult struct {
	Definition *models.ComponentDefinition `json:"definition"`
	Warning    string                      `json:"warning,omitempty"`
}

func (s *ComponentService) validate(p ComponentParams) error {
	if p.MaxMarks <= 0 {
		return fmt.Errorf("%w: max marks must be positive", ErrValidation)
	}
	if p.WeightagePercent < 0 {
		return fmt.Errorf("%w: weightage cannot be negative", ErrValidation)
	}
	if !evaluator.ValidFormula(p.Formula) {
		return fmt.Errorf("%w: unknown formula %q", ErrValidation, p.Formula)
	}
	if p.RoundOff != "" && !evaluator.ValidRoundRule(p.RoundOff) {
		return fmt.Errorf("%w: unknown round-off rule %q", ErrValidation, p.RoundOff)
	}
	if p.Formula == evaluator.FormulaBestOfN {
		if p.BestOfNCount == nil || *p.BestOfNCount <= 0 {
			return fmt.Errorf("%w: best_of_n requires best_of_n_count", ErrValidation)
		}
		if p.ExpectedItems > 0 && *p.BestOfNCount > p.ExpectedItems {
			return fmt.Errorf("%w: best_of_n_count %d exceeds %d graded items",
				ErrValidation, *p.BestOfNCount, p.ExpectedItems)
		}
	} else if p.BestOfNCount != nil {
		return fmt.Errorf("%w: best_of_n_count only applies to best_of_n", ErrValidation)
	}
	return nil
}

// Define validates and stores a new component definition for (course, term, type).
func (s *ComponentService) Define(actor Actor, courseID, termID, typeID uuid.UUID, p ComponentParams) (*DefineResult, error) {
	if !actor.Can(CapDefine) && !actor.Can(CapAdmin) {
		return nil, fmt.Errorf("%w: %s", ErrCapability, CapDefine)
	}
	if err := s.validate(p); err != nil {
		return nil, err
	}

	if p.DependsOnID != nil {
		if err := s.checkDependency(courseID, termID, uuid.Nil, *p.DependsOnID); err != nil {
			return nil, err
		}
	}

	roundOff := p.RoundOff
	if roundOff == "" {
		roundOff = evaluator.RoundNone
	}

	def := &models.ComponentDefinition{
		CourseID:         courseID,
		TermID:           termID,
		ComponentTypeID:  typeID,
		Name:             p.Name,
		MaxMarks:         p.MaxMarks,
		WeightagePercent: p.WeightagePercent,
		Formula:          p.Formula,
		BestOfNCount:     p.BestOfNCount,
		RoundOff:         roundOff,
		ManualEntry:      p.ManualEntry,
		ApprovalRequired: p.ApprovalRequired,
		ApprovalDeadline: p.ApprovalDeadline,
		EntryStartsAt:    p.EntryStartsAt,
		EntryDeadline:    p.EntryDeadline,
		GracePeriodHours: p.GracePeriodHours,
		DependsOnID:      p.DependsOnID,
		CreatedBy:        actor.ID,
	}
	if err := s.db.Create(def).Error; err != nil {
		return nil, err
	}

	warning, err := s.weightageWarning(courseID, termID)
	if err != nil {
		return nil, err
	}
	return &DefineResult{Definition: def, Warning: warning}, nil
}

// Edit updates a definition. Once any ledger row under it has left draft the
// definition is locked except for deadline extension.
func (s *ComponentService) Edit(actor Actor, id uuid.UUID, p ComponentParams) (*DefineResult, error) {
	if !actor.Can(CapDefine) && !actor.Can(CapAdmin) {
		return nil, fmt.Errorf("%w: %s", ErrCapability, CapDefine)
	}

	var def models.ComponentDefinition
	if err := s.db.First(&def, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: component %s", ErrNotFound, id)
		}
		return nil, err
	}

	locked, err := s.gradingStarted(id)
	if err != nil {
		return nil, err
	}
	if locked {
		if !deadlineOnlyChange(&def, p) {
			return nil, fmt.Errorf("%w: grading has started, only deadline extension allowed", ErrLocked)
		}
		if !extendsDeadline(def.ApprovalDeadline, p.ApprovalDeadline) ||
			!extendsDeadline(def.EntryDeadline, p.EntryDeadline) {
			return nil, fmt.Errorf("%w: grading has started, deadlines may only move later", ErrLocked)
		}
		updates := map[string]interface{}{
			"approval_deadline": p.ApprovalDeadline,
			"entry_deadline":    p.EntryDeadline,
		}
		if err := s.db.Model(&def).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &DefineResult{Definition: &def}, nil
	}

	if err := s.validate(p); err != nil {
		return nil, err
	}
	if p.DependsOnID != nil {
		if err := s.checkDependency(def.CourseID, def.TermID, def.ID, *p.DependsOnID); err != nil {
			return nil, err
		}
	}

	roundOff := p.RoundOff
	if roundOff == "" {
		roundOff = evaluator.RoundNone
	}
	def.Name = p.Name
	def.MaxMarks = p.MaxMarks
	def.WeightagePercent = p.WeightagePercent
	def.Formula = p.Formula
	def.BestOfNCount = p.BestOfNCount
	def.RoundOff = roundOff
	def.ManualEntry = p.ManualEntry
	def.ApprovalRequired = p.ApprovalRequired
	def.ApprovalDeadline = p.ApprovalDeadline
	def.EntryStartsAt = p.EntryStartsAt
	def.EntryDeadline = p.EntryDeadline
	def.GracePeriodHours = p.GracePeriodHours
	def.DependsOnID = p.DependsOnID
	if err := s.db.Save(&def).Error; err != nil {
		return nil, err
	}

	warning, err := s.weightageWarning(def.CourseID, def.TermID)
	if err != nil {
		return nil, err
	}
	return &DefineResult{Definition: &def, Warning: warning}, nil
}

// List returns all definitions for a course and term.
func (s *ComponentService) List(courseID, termID uuid.UUID) ([]models.ComponentDefinition, error) {
	var defs []models.ComponentDefinition
	err := s.db.Where("course_id = ? AND term_id = ?", courseID, termID).
		Order("created_at").Find(&defs).Error
	return defs, err
}

// Get loads one definition by id.
func (s *ComponentService) Get(id uuid.UUID) (*models.ComponentDefinition, error) {
	var def models.ComponentDefinition
	if err := s.db.First(&def, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: component %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &def, nil
}

// IsReady reports whether a definition may be evaluated: either it has no
// dependency, or the dependency's scores are fully published (at least one
// approved row and nothing still pending review).
func (s *ComponentService) IsReady(id uuid.UUID) (bool, error) {
	def, err := s.Get(id)
	if err != nil {
		return false, err
	}
	if def.DependsOnID == nil {
		return true, nil
	}

	dep, err := s.Get(*def.DependsOnID)
	if err != nil {
		return false, err
	}
	pendingStatuses := []string{models.StatusDraft, models.StatusSentBack}
	if dep.ApprovalRequired {
		pendingStatuses = append(pendingStatuses, models.StatusSubmitted)
	}

	var pending int64
	err = s.db.Model(&models.MarksLedgerRecord{}).
		Where("component_id = ? AND status IN ?", dep.ID, pendingStatuses).
		Count(&pending).Error
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}

	var published int64
	err = s.db.Model(&models.MarksLedgerRecord{}).
		Where("component_id = ? AND status IN ?", dep.ID, publishableStatuses(dep)).
		Count(&published).Error
	if err != nil {
		return false, err
	}
	return published > 0, nil
}

// gradingStarted reports whether any ledger row under the definition has
// left draft.
func (s *ComponentService) gradingStarted(id uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&models.MarksLedgerRecord{}).
		Where("component_id = ? AND status <> ?", id, models.StatusDraft).
		Count(&count).Error
	return count > 0, err
}

// checkDependency verifies the dependency exists within the same course+term
// and that following the dependency chain never reaches editingID.
func (s *ComponentService) checkDependency(courseID, termID, editingID, depID uuid.UUID) error {
	if editingID != uuid.Nil && depID == editingID {
		return fmt.Errorf("%w: component cannot depend on itself", ErrValidation)
	}

	var defs []models.ComponentDefinition
	if err := s.db.Where("course_id = ? AND term_id = ?", courseID, termID).Find(&defs).Error; err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*models.ComponentDefinition, len(defs))
	for i := range defs {
		byID[defs[i].ID] = &defs[i]
	}
	if _, ok := byID[depID]; !ok {
		return fmt.Errorf("%w: dependency %s not found in course/term", ErrValidation, depID)
	}

	// Walk the dependency edges depth-first. Each node holds at most one
	// outgoing edge, so this is a chain walk with a visited set.
	visited := map[uuid.UUID]bool{}
	cur := depID
	for {
		if cur == editingID {
			return fmt.Errorf("%w: dependency creates a cycle", ErrValidation)
		}
		if visited[cur] {
			return fmt.Errorf("%w: dependency creates a cycle", ErrValidation)
		}
		visited[cur] = true
		node, ok := byID[cur]
		if !ok || node.DependsOnID == nil {
			return nil
		}
		cur = *node.DependsOnID
	}
}

// weightageWarning flags a course+term whose component weightages do not sum
// to 100. Advisory only.
func (s *ComponentService) weightageWarning(courseID, termID uuid.UUID) (string, error) {
	var total float64
	err := s.db.Model(&models.ComponentDefinition{}).
		Where("course_id = ? AND term_id = ?", courseID, termID).
		Select("COALESCE(SUM(weightage_percent), 0)").Scan(&total).Error
	if err != nil {
		return "", err
	}
	if total != 100 {
		return fmt.Sprintf("component weightages sum to %.2f%%, not 100%%", total), nil
	}
	return "", nil
}

func deadlineOnlyChange(def *models.ComponentDefinition, p ComponentParams) bool {
	same := p.Name == def.Name &&
		p.MaxMarks == def.MaxMarks &&
		p.WeightagePercent == def.WeightagePercent &&
		p.Formula == def.Formula &&
		p.ManualEntry == def.ManualEntry &&
		p.ApprovalRequired == def.ApprovalRequired &&
		p.GracePeriodHours == def.GracePeriodHours &&
		equalIntPtr(p.BestOfNCount, def.BestOfNCount) &&
		equalUUIDPtr(p.DependsOnID, def.DependsOnID)
	if !same {
		return false
	}
	if p.RoundOff != "" && p.RoundOff != def.RoundOff {
		return false
	}
	return true
}

// extendsDeadline accepts keeping a deadline, setting one where none existed,
// or moving it later. Clearing or shortening is not an extension.
func extendsDeadline(stored, incoming *time.Time) bool {
	if incoming == nil {
		return stored == nil
	}
	if stored == nil {
		return true
	}
	return !incoming.Before(*stored)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
