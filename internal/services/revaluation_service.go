package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FinanceNotifier receives refund decisions. The engine never writes fee
// ledger entries itself.
type FinanceNotifier interface {
	RefundApproved(subjectID uuid.UUID, amount float64)
}

type noopFinance struct{}

func (noopFinance) RefundApproved(uuid.UUID, float64) {}

// RevaluationService reconciles re-checked marks against the frozen
// original and applies the institution's revaluation policy.
type RevaluationService struct {
	db      *gorm.DB
	finance FinanceNotifier
	audit   *AuditService
	grace   *GraceService
}

func NewRevaluationService(db *gorm.DB, finance FinanceNotifier) *RevaluationService {
	if finance == nil {
		finance = noopFinance{}
	}
	return &RevaluationService{
		db:      db,
		finance: finance,
		audit:   NewAuditService(db),
		grace:   NewGraceService(db),
	}
}

// Open accepts a revaluation application for a (student, component) pair.
// The original marks are frozen from the approved ledger row at this moment.
func (s *RevaluationService) Open(actor Actor, applicationID, studentID, componentID uuid.UUID, revalType string) (*models.RevaluationSubject, error) {
	if !actor.Can(CapRevaluate) && !actor.Can(CapAdmin) {
		return nil, fmt.Errorf("%w: %s", ErrCapability, CapRevaluate)
	}
	if revalType != models.RevalRetotaling && revalType != models.RevalFullReevaluation {
		return nil, fmt.Errorf("%w: unknown revaluation type %q", ErrValidation, revalType)
	}

	var rec models.MarksLedgerRecord
	err := s.db.Where("component_id = ? AND student_id = ? AND status = ?",
		componentID, studentID, models.StatusApproved).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no approved marks for student/component", ErrNotFound)
		}
		return nil, err
	}
	if rec.IsAbsent || rec.MarksObtained == nil {
		return nil, fmt.Errorf("%w: absent record has no score to revalue", ErrValidation)
	}

	subject := &models.RevaluationSubject{
		ApplicationID: applicationID,
		StudentID:     studentID,
		ComponentID:   componentID,
		RevalType:     revalType,
		OriginalMarks: *rec.MarksObtained,
		Status:        models.RevalPending,
	}
	if err := s.db.Create(subject).Error; err != nil {
		return nil, err
	}
	return subject, nil
}

// EnterRemarks records the second examiner's score, moving the subject to
// compared. The re-check is bound by the component's marks range the same way
// raw entry is. A subject accepts the re-check result exactly once.
func (s *RevaluationService) EnterRemarks(actor Actor, subjectID uuid.UUID, marks float64) (*models.RevaluationSubject, error) {
	if !actor.Can(CapRevaluate) && !actor.Can(CapAdmin) {
		return nil, fmt.Errorf("%w: %s", ErrCapability, CapRevaluate)
	}

	subject, err := s.Get(subjectID)
	if err != nil {
		return nil, err
	}
	var def models.ComponentDefinition
	if err := s.db.First(&def, "id = ?", subject.ComponentID).Error; err != nil {
		return nil, err
	}
	if err := checkMarksRange(s.grace, &def, marks, time.Now()); err != nil {
		return nil, err
	}

	res := s.db.Model(&models.RevaluationSubject{}).
		Where("id = ? AND status = ?", subjectID, models.RevalPending).
		Updates(map[string]interface{}{
			"revaluation_marks": marks,
			"status":            models.RevalCompared,
			"entered_by":        actor.ID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: subject %s is not pending", ErrConcurrentModification, subjectID)
	}
	return s.Get(subjectID)
}

// Reconcile closes a compared subject: retotaling keeps the higher of the
// two scores (a pure re-count should never lower one); full_reevaluation
// takes the re-check outright. Refund is recorded only when the score
// improved; the amount is caller-supplied since refund policy lives with
// the fee schedule. A subject is reconciled exactly once.
func (s *RevaluationService) Reconcile(actor Actor, subjectID uuid.UUID, refundAmount float64) (*models.RevaluationSubject, error) {
	if !actor.Can(CapRevaluate) && !actor.Can(CapAdmin) {
		return nil, fmt.Errorf("%w: %s", ErrCapability, CapRevaluate)
	}

	subject, err := s.Get(subjectID)
	if err != nil {
		return nil, err
	}
	switch subject.Status {
	case models.RevalCompared:
	case models.RevalFinal:
		return nil, fmt.Errorf("%w: subject already reconciled", ErrLocked)
	default:
		return nil, fmt.Errorf("%w: re-check result not yet entered", ErrValidation)
	}

	reval := *subject.RevaluationMarks
	final := reval
	if subject.RevalType == models.RevalRetotaling && subject.OriginalMarks > reval {
		final = subject.OriginalMarks
	}
	delta := reval - subject.OriginalMarks
	refund := delta > 0

	now := time.Now()
	updates := map[string]interface{}{
		"final_marks":     final,
		"refund_eligible": refund,
		"status":          models.RevalFinal,
		"completed_at":    now,
	}
	if refund {
		updates["refund_amount"] = refundAmount
	}

	// Optimistic: someone else may be reconciling the same subject.
	res := s.db.Model(&models.RevaluationSubject{}).
		Where("id = ? AND status = ?", subjectID, models.RevalCompared).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: subject %s reconciled concurrently", ErrConcurrentModification, subjectID)
	}

	// Overwrite the approved ledger score with the final decision.
	err = s.db.Model(&models.MarksLedgerRecord{}).
		Where("component_id = ? AND student_id = ? AND status = ?",
			subject.ComponentID, subject.StudentID, models.StatusApproved).
		Update("marks_obtained", final).Error
	if err != nil {
		return nil, err
	}

	if refund {
		s.finance.RefundApproved(subjectID, refundAmount)
	}
	s.audit.Log(actor.ID, "revaluation.reconcile", "revaluation_subject", subjectID,
		models.JSONB{"original": subject.OriginalMarks, "revaluation": reval},
		models.JSONB{"final": final, "refund": refund}, "")

	return s.Get(subjectID)
}

// Get loads one subject by id.
func (s *RevaluationService) Get(id uuid.UUID) (*models.RevaluationSubject, error) {
	var subject models.RevaluationSubject
	if err := s.db.First(&subject, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: revaluation subject %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &subject, nil
}

// List returns subjects, optionally filtered by status.
func (s *RevaluationService) List(status string) ([]models.RevaluationSubject, error) {
	query := s.db.Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var subjects []models.RevaluationSubject
	err := query.Find(&subjects).Error
	return subjects, err
}
