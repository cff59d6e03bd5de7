package services

import (
	"errors"
	"testing"
	"time"

	"github.com/campus-erp/backend/internal/evaluator"
	"github.com/campus-erp/backend/internal/models"
)

func TestComponentScores(t *testing.T) {
	db := newTestDB(t)
	svc := NewScoreService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.MaxMarks = 40
		p.RoundOff = evaluator.RoundNearest
	})

	seedRecord(t, db, def.ID, 25.4, models.StatusApproved) // rounds to 25
	seedRecord(t, db, def.ID, 38, models.StatusApproved)
	absent := seedRecord(t, db, def.ID, 0, models.StatusApproved)
	db.Model(absent).Updates(map[string]interface{}{"is_absent": true, "marks_obtained": nil})
	seedRecord(t, db, def.ID, 30, models.StatusSubmitted) // not published

	scores, err := svc.ComponentScores(def.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 3 {
		t.Fatalf("got %d scores, want 3 approved rows", len(scores))
	}

	byValue := map[float64]int{}
	for _, s := range scores {
		byValue[s.Value]++
	}
	if byValue[25] != 1 {
		t.Errorf("expected one score rounded to 25, got %v", byValue)
	}
	if byValue[38] != 1 {
		t.Errorf("expected the 38 passthrough, got %v", byValue)
	}
	if byValue[0] != 1 {
		t.Errorf("absent row should publish as 0, got %v", byValue)
	}
}

func TestComponentScoresGraceTopUp(t *testing.T) {
	db := newTestDB(t)
	svc := NewScoreService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.MaxMarks = 100
	})

	graceSvc := NewGraceService(db)
	if _, err := graceSvc.Create(adminActor(), GracePolicyParams{
		CourseID:      course.ID,
		MaxGraceMarks: ptr(2),
		ValidFrom:     time.Now().AddDate(0, 0, -1),
	}); err != nil {
		t.Fatal(err)
	}

	seedRecord(t, db, def.ID, 38, models.StatusApproved) // within 2 of pass mark 40
	seedRecord(t, db, def.ID, 35, models.StatusApproved) // too far below
	seedRecord(t, db, def.ID, 60, models.StatusApproved) // already passing

	scores, err := svc.ComponentScores(def.ID)
	if err != nil {
		t.Fatal(err)
	}

	byValue := map[float64]int{}
	for _, s := range scores {
		byValue[s.Value]++
	}
	if byValue[40] != 1 {
		t.Errorf("38 should be topped up to the pass mark 40, got %v", byValue)
	}
	if byValue[35] != 1 {
		t.Errorf("35 is beyond the allowance and must stay 35, got %v", byValue)
	}
	if byValue[60] != 1 {
		t.Errorf("passing scores take no grace, got %v", byValue)
	}
}

func TestComponentScoresApprovalOptional(t *testing.T) {
	db := newTestDB(t)
	svc := NewScoreService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.Name = "Attendance"
		p.ApprovalRequired = false
	})

	seedRecord(t, db, def.ID, 8, models.StatusSubmitted)
	seedRecord(t, db, def.ID, 9, models.StatusApproved)
	seedRecord(t, db, def.ID, 5, models.StatusDraft) // never published

	scores, err := svc.ComponentScores(def.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2: submitted rows are final when approval is not required", len(scores))
	}

	t.Run("Approval Required Still Gates", func(t *testing.T) {
		gated := seedComponent(t, db, course.ID, term.ID, nil)
		seedRecord(t, db, gated.ID, 8, models.StatusSubmitted)
		scores, err := svc.ComponentScores(gated.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(scores) != 0 {
			t.Errorf("got %d scores, submitted rows must not publish when approval is required", len(scores))
		}
	})
}

func TestComponentScoresDependencyGate(t *testing.T) {
	db := newTestDB(t)
	svc := NewScoreService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)

	base := seedComponent(t, db, course.ID, term.ID, nil)
	dependent := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.Name = "Final Quiz"
		p.DependsOnID = &base.ID
	})
	seedRecord(t, db, base.ID, 70, models.StatusSubmitted)

	_, err := svc.ComponentScores(dependent.ID)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation while dependency unpublished, got %v", err)
	}
}

func TestEvaluateItems(t *testing.T) {
	db := newTestDB(t)
	svc := NewScoreService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)

	two := 2
	def := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.Name = "Quiz Series"
		p.Formula = evaluator.FormulaBestOfN
		p.BestOfNCount = &two
		p.ExpectedItems = 3
		p.RoundOff = evaluator.RoundCeiling
	})

	got, err := svc.EvaluateItems(def.ID, []evaluator.Score{
		{Value: 42}, {Value: 38.2}, {Value: 25},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != 81 {
		t.Errorf("best 2 of [42, 38.2, 25] with ceiling = %v, want 81", got)
	}
}

func TestComposite(t *testing.T) {
	db := newTestDB(t)
	svc := NewScoreService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)

	quiz := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.Name = "Quiz"
		p.MaxMarks = 20
		p.WeightagePercent = 40
	})
	exam := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.Name = "Mid-Term"
		p.MaxMarks = 50
		p.WeightagePercent = 60
	})

	rec := seedRecord(t, db, quiz.ID, 16, models.StatusApproved) // 80%
	student := rec.StudentID
	examRec := &models.MarksLedgerRecord{
		ComponentID:   exam.ID,
		StudentID:     student,
		MarksObtained: ptr(35), // 70%
		Status:        models.StatusApproved,
		EnteredBy:     rec.EnteredBy,
		EnteredAt:     time.Now(),
	}
	if err := db.Create(examRec).Error; err != nil {
		t.Fatal(err)
	}

	got, err := svc.Composite(course.ID, term.ID, student)
	if err != nil {
		t.Fatal(err)
	}
	// 80*0.4 + 70*0.6 = 74
	if got != 74 {
		t.Errorf("composite = %v, want 74", got)
	}
}
