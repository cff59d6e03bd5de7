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

// Review actions on a batch of submitted marks
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionSendBack = "send_back"
)

// reviewable are the statuses an approver may act on. The optimistic
// transition check expects the row to still hold one of these at write time.
var reviewable = []string{models.StatusSubmitted, models.StatusSentBack}

// ApprovalService groups ledger rows into reviewable batches and executes
// actor-gated state transitions over them.
type ApprovalService struct {
	db    *gorm.DB
	audit *AuditService
}

func NewApprovalService(db *gorm.DB) *ApprovalService {
	return &ApprovalService{db: db, audit: NewAuditService(db)}
}

// BatchStats are recomputed on every read over non-absent numeric rows.
// Histogram buckets score-as-percent-of-max into 0-25, 25-50, 50-75, 75-100.
type BatchStats struct {
	Count     int     `json:"count"`
	Average   float64 `json:"average"`
	Max       float64 `json:"max"`
	Min       float64 `json:"min"`
	PassCount int     `json:"pass_count"`
	FailCount int     `json:"fail_count"`
	PassRate  float64 `json:"pass_rate"`
	Histogram [4]int  `json:"histogram"`
}

// ApprovalBatch is the derived unit of review: every reviewable row under
// one component. Never persisted.
type ApprovalBatch struct {
	Component models.ComponentDefinition `json:"component"`
	Records   []models.MarksLedgerRecord `json:"records"`
	Stats     BatchStats                 `json:"stats"`
	Overdue   bool                       `json:"overdue"`
}

// BatchResult is the per-batch outcome of a bulk transition.
type BatchResult struct {
	ComponentID  uuid.UUID `json:"component_id"`
	Transitioned int       `json:"transitioned"`
	Error        string    `json:"error,omitempty"`
}

// Batches groups all reviewable rows by component. Pass courseID to narrow
// to one course; uuid.Nil lists everything.
func (s *ApprovalService) Batches(courseID uuid.UUID) ([]ApprovalBatch, error) {
	var rows []models.MarksLedgerRecord
	query := s.db.Where("status IN ?", reviewable).Order("component_id, student_id")
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	grouped := map[uuid.UUID][]models.MarksLedgerRecord{}
	order := []uuid.UUID{}
	for _, r := range rows {
		if _, seen := grouped[r.ComponentID]; !seen {
			order = append(order, r.ComponentID)
		}
		grouped[r.ComponentID] = append(grouped[r.ComponentID], r)
	}

	now := time.Now()
	batches := make([]ApprovalBatch, 0, len(order))
	for _, componentID := range order {
		var def models.ComponentDefinition
		if err := s.db.First(&def, "id = ?", componentID).Error; err != nil {
			return nil, err
		}
		if courseID != uuid.Nil && def.CourseID != courseID {
			continue
		}
		recs := grouped[componentID]
		batches = append(batches, ApprovalBatch{
			Component: def,
			Records:   recs,
			Stats:     computeStats(def.MaxMarks, recs),
			Overdue:   def.ApprovalDeadline != nil && now.After(*def.ApprovalDeadline),
		})
	}
	return batches, nil
}

// Transition applies one action to the named rows of a component's batch.
// approve needs no comment; reject and send_back require one. Each row is
// its own atomic unit: a row whose status moved since it was read fails
// with ErrConcurrentModification without touching its siblings.
func (s *ApprovalService) Transition(actor Actor, componentID uuid.UUID, recordIDs []uuid.UUID, action, comment string) error {
	def, err := s.gate(actor, componentID, action, comment)
	if err != nil {
		return err
	}
	if len(recordIDs) == 0 {
		return fmt.Errorf("%w: no records given", ErrValidation)
	}

	for _, id := range recordIDs {
		if err := s.transitionRow(actor, def, id, action, comment); err != nil {
			return err
		}
	}
	return nil
}

// BulkTransition applies the same action to every reviewable row across the
// named batches. Best-effort: one batch's failure never blocks the others,
// and the caller gets one result per batch.
func (s *ApprovalService) BulkTransition(actor Actor, componentIDs []uuid.UUID, action, comment string) []BatchResult {
	results := make([]BatchResult, 0, len(componentIDs))
	for _, componentID := range componentIDs {
		result := BatchResult{ComponentID: componentID}

		def, err := s.gate(actor, componentID, action, comment)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		var rows []models.MarksLedgerRecord
		err = s.db.Where("component_id = ? AND status IN ?", componentID, reviewable).Find(&rows).Error
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		for _, row := range rows {
			if err := s.transitionRow(actor, def, row.ID, action, comment); err != nil {
				// keep going; report the first failure for the batch
				if result.Error == "" {
					result.Error = err.Error()
				}
				continue
			}
			result.Transitioned++
		}
		results = append(results, result)
	}
	return results
}

// gate loads the component and enforces capability and comment rules.
func (s *ApprovalService) gate(actor Actor, componentID uuid.UUID, action, comment string) (*models.ComponentDefinition, error) {
	switch action {
	case ActionApprove:
	case ActionReject, ActionSendBack:
		if comment == "" {
			return nil, fmt.Errorf("%w: %s requires a comment", ErrValidation, action)
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	var def models.ComponentDefinition
	if err := s.db.First(&def, "id = ?", componentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: component %s", ErrNotFound, componentID)
		}
		return nil, err
	}
	if !actor.CanApprove(def.CourseID) {
		return nil, fmt.Errorf("%w: approval rights for course %s", ErrCapability, def.CourseID)
	}
	return &def, nil
}

// transitionRow is the single atomic transition unit: an UPDATE guarded by
// the expected current status. RowsAffected == 0 means another approver got
// there first.
func (s *ApprovalService) transitionRow(actor Actor, def *models.ComponentDefinition, recordID uuid.UUID, action, comment string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"approved_by":      actor.ID,
		"approved_at":      now,
		"approval_comment": comment,
	}
	switch action {
	case ActionApprove:
		updates["status"] = models.StatusApproved
		updates["is_approved"] = true
	case ActionReject:
		updates["status"] = models.StatusRejected
	case ActionSendBack:
		updates["status"] = models.StatusSentBack
		updates["is_approved"] = false
	}

	res := s.db.Model(&models.MarksLedgerRecord{}).
		Where("id = ? AND component_id = ? AND status IN ?", recordID, def.ID, reviewable).
		Updates(updates)
	if res.Error != nil {
		transitionsTotal.WithLabelValues(action, "error").Inc()
		return res.Error
	}
	if res.RowsAffected == 0 {
		transitionsTotal.WithLabelValues(action, "conflict").Inc()
		return fmt.Errorf("%w: record %s is no longer reviewable", ErrConcurrentModification, recordID)
	}
	transitionsTotal.WithLabelValues(action, "ok").Inc()

	s.audit.Log(actor.ID, "marks."+action, "marks_ledger_record", recordID,
		nil, models.JSONB{"comment": comment}, "")
	return nil
}

func computeStats(maxMarks float64, recs []models.MarksLedgerRecord) BatchStats {
	stats := BatchStats{}
	passMark := evaluator.PassMark(maxMarks)
	sum := 0.0
	for _, r := range recs {
		if r.IsAbsent || r.MarksObtained == nil {
			continue
		}
		v := *r.MarksObtained
		if stats.Count == 0 || v > stats.Max {
			stats.Max = v
		}
		if stats.Count == 0 || v < stats.Min {
			stats.Min = v
		}
		stats.Count++
		sum += v
		if v >= passMark {
			stats.PassCount++
		} else {
			stats.FailCount++
		}
		stats.Histogram[histogramBucket(v, maxMarks)]++
	}
	if stats.Count > 0 {
		stats.Average = sum / float64(stats.Count)
		stats.PassRate = float64(stats.PassCount) / float64(stats.Count)
	}
	return stats
}

func histogramBucket(v, maxMarks float64) int {
	if maxMarks <= 0 {
		return 0
	}
	pct := v / maxMarks * 100
	switch {
	case pct < 25:
		return 0
	case pct < 50:
		return 1
	case pct < 75:
		return 2
	default:
		return 3
	}
}
