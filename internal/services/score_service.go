package services

import (
	"fmt"
	"time"

	"github.com/campus-erp/backend/internal/evaluator"
	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScoreService turns approved ledger rows into published component scores
// and composite course marks. It never runs a dependent component before
// its dependency is published; callers get the readiness answer, not an
// automatic scheduler.
type ScoreService struct {
	db         *gorm.DB
	components *ComponentService
	grace      *GraceService
}

func NewScoreService(db *gorm.DB) *ScoreService {
	return &ScoreService{
		db:         db,
		components: NewComponentService(db),
		grace:      NewGraceService(db),
	}
}

// ComponentScore is the published per-student value for one component,
// consumed by the composite-grade calculator and student-facing display.
type ComponentScore struct {
	StudentID   uuid.UUID `json:"student_id"`
	ComponentID uuid.UUID `json:"component_id"`
	Value       float64   `json:"value"`
}

// publishableStatuses lists the ledger statuses a component treats as final.
// Submission is the last step for components that skip the approval workflow.
func publishableStatuses(def *models.ComponentDefinition) []string {
	if def.ApprovalRequired {
		return []string{models.StatusApproved}
	}
	return []string{models.StatusApproved, models.StatusSubmitted}
}

// ComponentScores publishes one score per student from the component's
// publishable rows: round-off first, then any applicable grace top-up toward
// the pass mark. Fails when a dependency is not yet published.
func (s *ScoreService) ComponentScores(componentID uuid.UUID) ([]ComponentScore, error) {
	ready, err := s.components.IsReady(componentID)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, fmt.Errorf("%w: dependency not yet published", ErrValidation)
	}

	def, err := s.components.Get(componentID)
	if err != nil {
		return nil, err
	}

	var rows []models.MarksLedgerRecord
	err = s.db.Where("component_id = ? AND status IN ?", componentID, publishableStatuses(def)).
		Order("student_id").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	policy, err := s.grace.ActivePolicy(def.CourseID, now)
	if err != nil {
		return nil, err
	}

	scores := make([]ComponentScore, 0, len(rows))
	for _, row := range rows {
		value := 0.0
		if !row.IsAbsent && row.MarksObtained != nil {
			value = evaluator.Round(def.RoundOff, *row.MarksObtained)
			if policy != nil {
				value = evaluator.ApplyGrace(value, def.MaxMarks,
					evaluator.PassMark(def.MaxMarks), policyParams(policy), now)
			}
		}
		scores = append(scores, ComponentScore{
			StudentID:   row.StudentID,
			ComponentID: componentID,
			Value:       value,
		})
	}
	return scores, nil
}

// EvaluateItems runs the component's formula over caller-supplied item
// scores (e.g. individual quiz results) and applies its round-off rule.
func (s *ScoreService) EvaluateItems(componentID uuid.UUID, scores []evaluator.Score, weights []float64) (float64, error) {
	def, err := s.components.Get(componentID)
	if err != nil {
		return 0, err
	}
	bestOfN := 0
	if def.BestOfNCount != nil {
		bestOfN = *def.BestOfNCount
	}
	value, err := evaluator.Evaluate(evaluator.Input{
		Formula: def.Formula,
		BestOfN: bestOfN,
		Scores:  scores,
		Weights: weights,
	})
	if err != nil {
		return 0, err
	}
	evaluationsTotal.WithLabelValues(def.Formula).Inc()
	return evaluator.Round(def.RoundOff, value), nil
}

// Composite computes a student's course internal mark: the weighted average
// of their published component scores using component weightages.
func (s *ScoreService) Composite(courseID, termID, studentID uuid.UUID) (float64, error) {
	defs, err := s.components.List(courseID, termID)
	if err != nil {
		return 0, err
	}
	if len(defs) == 0 {
		return 0, fmt.Errorf("%w: no components for course", ErrNotFound)
	}

	scores := make([]evaluator.Score, 0, len(defs))
	weights := make([]float64, 0, len(defs))
	for _, def := range defs {
		var row models.MarksLedgerRecord
		err := s.db.Where("component_id = ? AND student_id = ? AND status IN ?",
			def.ID, studentID, publishableStatuses(&def)).First(&row).Error
		if err != nil {
			// not yet published counts as absent from the composite
			scores = append(scores, evaluator.Score{Absent: true})
			weights = append(weights, def.WeightagePercent)
			continue
		}
		value := 0.0
		if !row.IsAbsent && row.MarksObtained != nil {
			// normalize to percent of max before weighting
			value = evaluator.Round(def.RoundOff, *row.MarksObtained) / def.MaxMarks * 100
		}
		scores = append(scores, evaluator.Score{Value: value})
		weights = append(weights, def.WeightagePercent)
	}

	result, err := evaluator.Evaluate(evaluator.Input{
		Formula: evaluator.FormulaWeightedAverage,
		Scores:  scores,
		Weights: weights,
	})
	if err != nil {
		return 0, err
	}
	evaluationsTotal.WithLabelValues(evaluator.FormulaWeightedAverage).Inc()
	return result, nil
}
