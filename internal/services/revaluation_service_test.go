package services

import (
	"errors"
	"testing"
	"time"

	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
)

// recordingFinance captures refund notifications for assertions.
type recordingFinance struct {
	subjectID uuid.UUID
	amount    float64
	calls     int
}

func (f *recordingFinance) RefundApproved(subjectID uuid.UUID, amount float64) {
	f.subjectID = subjectID
	f.amount = amount
	f.calls++
}

func TestOpenFreezesOriginal(t *testing.T) {
	db := newTestDB(t)
	svc := NewRevaluationService(db, nil)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 52, models.StatusApproved)

	subject, err := svc.Open(adminActor(), uuid.New(), rec.StudentID, def.ID, models.RevalRetotaling)
	if err != nil {
		t.Fatal(err)
	}
	if subject.OriginalMarks != 52 {
		t.Errorf("original marks = %v, want 52 frozen at open", subject.OriginalMarks)
	}
	if subject.Status != models.RevalPending {
		t.Errorf("status = %q, want pending", subject.Status)
	}

	t.Run("No Approved Row", func(t *testing.T) {
		_, err := svc.Open(adminActor(), uuid.New(), uuid.New(), def.ID, models.RevalRetotaling)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Unknown Type", func(t *testing.T) {
		_, err := svc.Open(adminActor(), uuid.New(), rec.StudentID, def.ID, "appeal")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestReconcileRetotalingKeepsHigher(t *testing.T) {
	db := newTestDB(t)
	finance := &recordingFinance{}
	svc := NewRevaluationService(db, finance)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 55, models.StatusApproved)
	admin := adminActor()

	subject, err := svc.Open(admin, uuid.New(), rec.StudentID, def.ID, models.RevalRetotaling)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnterRemarks(admin, subject.ID, 52); err != nil {
		t.Fatal(err)
	}

	final, err := svc.Reconcile(admin, subject.ID, 500)
	if err != nil {
		t.Fatal(err)
	}
	if final.FinalMarks == nil || *final.FinalMarks != 55 {
		t.Errorf("final = %v, retotaling must keep the higher original 55", final.FinalMarks)
	}
	if final.RefundEligible {
		t.Error("no improvement means no refund")
	}
	if finance.calls != 0 {
		t.Errorf("finance notified %d times, want 0", finance.calls)
	}
	if got := reload(t, db, rec); *got.MarksObtained != 55 {
		t.Errorf("ledger marks = %v, must stay 55", *got.MarksObtained)
	}
}

func TestReconcileImprovementRefunds(t *testing.T) {
	db := newTestDB(t)
	finance := &recordingFinance{}
	svc := NewRevaluationService(db, finance)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 48, models.StatusApproved)
	admin := adminActor()

	subject, err := svc.Open(admin, uuid.New(), rec.StudentID, def.ID, models.RevalRetotaling)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnterRemarks(admin, subject.ID, 53); err != nil {
		t.Fatal(err)
	}

	final, err := svc.Reconcile(admin, subject.ID, 500)
	if err != nil {
		t.Fatal(err)
	}
	if final.FinalMarks == nil || *final.FinalMarks != 53 {
		t.Errorf("final = %v, want the improved 53", final.FinalMarks)
	}
	if !final.RefundEligible {
		t.Error("improvement must mark the subject refund eligible")
	}
	if final.RefundAmount == nil || *final.RefundAmount != 500 {
		t.Errorf("refund amount = %v, want 500", final.RefundAmount)
	}
	if finance.calls != 1 || finance.subjectID != subject.ID || finance.amount != 500 {
		t.Errorf("finance notification = %+v, want one call for subject/500", finance)
	}
	if got := reload(t, db, rec); *got.MarksObtained != 53 {
		t.Errorf("ledger marks = %v, must be overwritten to 53", *got.MarksObtained)
	}
}

func TestReconcileFullReevaluationTakesRecheck(t *testing.T) {
	db := newTestDB(t)
	svc := NewRevaluationService(db, nil)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 55, models.StatusApproved)
	admin := adminActor()

	subject, err := svc.Open(admin, uuid.New(), rec.StudentID, def.ID, models.RevalFullReevaluation)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnterRemarks(admin, subject.ID, 50); err != nil {
		t.Fatal(err)
	}

	final, err := svc.Reconcile(admin, subject.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if final.FinalMarks == nil || *final.FinalMarks != 50 {
		t.Errorf("final = %v, full re-evaluation takes the re-check even when lower", final.FinalMarks)
	}
	if final.RefundEligible {
		t.Error("a drop is never refund eligible")
	}
	if got := reload(t, db, rec); *got.MarksObtained != 50 {
		t.Errorf("ledger marks = %v, want 50", *got.MarksObtained)
	}
}

func TestReconcileExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewRevaluationService(db, nil)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 40, models.StatusApproved)
	admin := adminActor()

	subject, err := svc.Open(admin, uuid.New(), rec.StudentID, def.ID, models.RevalRetotaling)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Before Remarks", func(t *testing.T) {
		_, err := svc.Reconcile(admin, subject.ID, 0)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation before re-check entered, got %v", err)
		}
	})

	if _, err := svc.EnterRemarks(admin, subject.ID, 45); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reconcile(admin, subject.ID, 250); err != nil {
		t.Fatal(err)
	}

	t.Run("Second Reconcile", func(t *testing.T) {
		_, err := svc.Reconcile(admin, subject.ID, 250)
		if !errors.Is(err, ErrLocked) {
			t.Errorf("expected ErrLocked on second reconcile, got %v", err)
		}
	})

	t.Run("Remarks After Final", func(t *testing.T) {
		_, err := svc.EnterRemarks(admin, subject.ID, 47)
		if !errors.Is(err, ErrConcurrentModification) {
			t.Errorf("expected ErrConcurrentModification for non-pending subject, got %v", err)
		}
	})
}

func TestEnterRemarksRange(t *testing.T) {
	db := newTestDB(t)
	svc := NewRevaluationService(db, nil)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.MaxMarks = 50
	})
	rec := seedRecord(t, db, def.ID, 40, models.StatusApproved)
	admin := adminActor()

	subject, err := svc.Open(admin, uuid.New(), rec.StudentID, def.ID, models.RevalRetotaling)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Above Max", func(t *testing.T) {
		_, err := svc.EnterRemarks(admin, subject.ID, 500)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("expected ErrOutOfRange for 500 on max 50, got %v", err)
		}
	})

	t.Run("Negative", func(t *testing.T) {
		_, err := svc.EnterRemarks(admin, subject.ID, -1)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("expected ErrOutOfRange, got %v", err)
		}
	})

	t.Run("Subject Still Pending", func(t *testing.T) {
		fresh, err := svc.Get(subject.ID)
		if err != nil {
			t.Fatal(err)
		}
		if fresh.Status != models.RevalPending {
			t.Errorf("status = %q, rejected re-checks must not advance the subject", fresh.Status)
		}
	})

	t.Run("Within Grace Allowance", func(t *testing.T) {
		graceSvc := NewGraceService(db)
		if _, err := graceSvc.Create(adminActor(), GracePolicyParams{
			CourseID:      course.ID,
			MaxGraceMarks: ptr(2),
			ValidFrom:     time.Now().AddDate(0, 0, -1),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.EnterRemarks(admin, subject.ID, 51); err != nil {
			t.Errorf("51 on max 50 with +2 grace should be accepted: %v", err)
		}
	})
}

func TestRevaluationCapability(t *testing.T) {
	db := newTestDB(t)
	svc := NewRevaluationService(db, nil)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 40, models.StatusApproved)

	_, err := svc.Open(facultyActor(), uuid.New(), rec.StudentID, def.ID, models.RevalRetotaling)
	if !errors.Is(err, ErrCapability) {
		t.Errorf("expected ErrCapability for actor without revaluation rights, got %v", err)
	}
}
