package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MarksService is the ledger of raw scores: one record per (student, component).
type MarksService struct {
	db    *gorm.DB
	grace *GraceService
}

func NewMarksService(db *gorm.DB) *MarksService {
	return &MarksService{db: db, grace: NewGraceService(db)}
}

// UpsertRaw writes a raw score (or an absence) for a student. Permitted only
// while the record is in draft or sent_back; a write against a sent_back
// record re-enters draft and bumps the revision count.
func (s *MarksService) UpsertRaw(actor Actor, componentID, studentID uuid.UUID, marks *float64, isAbsent bool, remarks string) (*models.MarksLedgerRecord, error) {
	if !actor.Can(CapMarksEnter) && !actor.Can(CapAdmin) {
		return nil, fmt.Errorf("%w: %s", ErrCapability, CapMarksEnter)
	}

	var def models.ComponentDefinition
	if err := s.db.First(&def, "id = ?", componentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: component %s", ErrNotFound, componentID)
		}
		return nil, err
	}

	now := time.Now()
	if err := s.checkEntryWindow(&def, now); err != nil {
		return nil, err
	}

	if isAbsent {
		// Absent records carry no numeric score.
		marks = nil
	} else {
		if marks == nil {
			return nil, fmt.Errorf("%w: marks required unless absent", ErrValidation)
		}
		if err := checkMarksRange(s.grace, &def, *marks, now); err != nil {
			return nil, err
		}
	}

	var rec models.MarksLedgerRecord
	err := s.db.Where("component_id = ? AND student_id = ?", componentID, studentID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = models.MarksLedgerRecord{
			ComponentID:   componentID,
			StudentID:     studentID,
			MarksObtained: marks,
			IsAbsent:      isAbsent,
			Remarks:       remarks,
			Status:        models.StatusDraft,
			EnteredBy:     actor.ID,
			EnteredAt:     now,
		}
		if err := s.db.Create(&rec).Error; err != nil {
			return nil, err
		}
		return &rec, nil
	case err != nil:
		return nil, err
	}

	if rec.Status != models.StatusDraft && rec.Status != models.StatusSentBack {
		return nil, fmt.Errorf("%w: record is %s", ErrLocked, rec.Status)
	}

	updates := map[string]interface{}{
		"marks_obtained": marks,
		"is_absent":      isAbsent,
		"remarks":        remarks,
		"entered_by":     actor.ID,
		"entered_at":     now,
	}
	if rec.Status == models.StatusSentBack {
		updates["status"] = models.StatusDraft
		updates["revision_count"] = rec.RevisionCount + 1
	}

	// Optimistic: the status must not have moved under us.
	res := s.db.Model(&models.MarksLedgerRecord{}).
		Where("id = ? AND status IN ?", rec.ID, []string{models.StatusDraft, models.StatusSentBack}).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: record %s changed status during write", ErrConcurrentModification, rec.ID)
	}

	if err := s.db.First(&rec, "id = ?", rec.ID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Submit moves qualifying draft rows for the given students to submitted.
// Rows already beyond draft are skipped, not errors. Returns the number of
// rows actually submitted.
func (s *MarksService) Submit(actor Actor, componentID uuid.UUID, studentIDs []uuid.UUID) (int, error) {
	if !actor.Can(CapMarksEnter) && !actor.Can(CapAdmin) {
		return 0, fmt.Errorf("%w: %s", ErrCapability, CapMarksEnter)
	}
	if len(studentIDs) == 0 {
		return 0, fmt.Errorf("%w: no students given", ErrValidation)
	}

	res := s.db.Model(&models.MarksLedgerRecord{}).
		Where("component_id = ? AND student_id IN ? AND status = ?",
			componentID, studentIDs, models.StatusDraft).
		Update("status", models.StatusSubmitted)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// Records lists ledger rows for a component, optionally filtered by status.
func (s *MarksService) Records(componentID uuid.UUID, status string) ([]models.MarksLedgerRecord, error) {
	query := s.db.Where("component_id = ?", componentID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var recs []models.MarksLedgerRecord
	err := query.Order("student_id").Find(&recs).Error
	return recs, err
}

func (s *MarksService) checkEntryWindow(def *models.ComponentDefinition, now time.Time) error {
	if def.EntryStartsAt != nil && now.Before(*def.EntryStartsAt) {
		return fmt.Errorf("%w: entry window has not opened", ErrValidation)
	}
	if def.EntryDeadline != nil {
		cutoff := def.EntryDeadline.Add(time.Duration(def.GracePeriodHours) * time.Hour)
		if now.After(cutoff) {
			return fmt.Errorf("%w: entry window closed", ErrLocked)
		}
	}
	return nil
}

// checkMarksRange enforces [0, max], allowing an excess only when an active
// grace policy covers it. Shared by raw entry and revaluation re-checks.
func checkMarksRange(grace *GraceService, def *models.ComponentDefinition, marks float64, now time.Time) error {
	if marks < 0 {
		return fmt.Errorf("%w: marks cannot be negative", ErrOutOfRange)
	}
	if marks <= def.MaxMarks {
		return nil
	}
	policy, err := grace.ActivePolicy(def.CourseID, now)
	if err != nil {
		return err
	}
	if policy == nil {
		return fmt.Errorf("%w: %.2f exceeds max %.2f", ErrOutOfRange, marks, def.MaxMarks)
	}
	allowance := policyParams(policy).Allowance(def.MaxMarks)
	if marks > def.MaxMarks+allowance {
		return fmt.Errorf("%w: %.2f exceeds max %.2f plus grace %.2f",
			ErrOutOfRange, marks, def.MaxMarks, allowance)
	}
	return nil
}
