package services

import (
	"errors"
	"testing"
	"time"

	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
)

func TestBatchesGroupingAndStats(t *testing.T) {
	db := newTestDB(t)
	svc := NewApprovalService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, func(p *ComponentParams) {
		p.MaxMarks = 100
	})

	seedRecord(t, db, def.ID, 80, models.StatusSubmitted) // pass, bucket 3
	seedRecord(t, db, def.ID, 60, models.StatusSubmitted) // pass, bucket 2
	seedRecord(t, db, def.ID, 30, models.StatusSubmitted) // fail, bucket 1
	seedRecord(t, db, def.ID, 10, models.StatusSentBack)  // fail, bucket 0
	seedRecord(t, db, def.ID, 95, models.StatusApproved)  // not reviewable
	seedRecord(t, db, def.ID, 95, models.StatusDraft)     // not reviewable

	absent := seedRecord(t, db, def.ID, 0, models.StatusSubmitted)
	db.Model(absent).Updates(map[string]interface{}{"is_absent": true, "marks_obtained": nil})

	batches, err := svc.Batches(uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}

	batch := batches[0]
	if len(batch.Records) != 5 {
		t.Errorf("batch holds %d records, want 5 reviewable rows", len(batch.Records))
	}

	stats := batch.Stats
	if stats.Count != 4 {
		t.Errorf("stats count = %d, want 4 (absent row excluded)", stats.Count)
	}
	if stats.Average != 45 {
		t.Errorf("average = %v, want 45", stats.Average)
	}
	if stats.Max != 80 || stats.Min != 10 {
		t.Errorf("max/min = %v/%v, want 80/10", stats.Max, stats.Min)
	}
	if stats.PassCount != 2 || stats.FailCount != 2 {
		t.Errorf("pass/fail = %d/%d, want 2/2", stats.PassCount, stats.FailCount)
	}
	if stats.PassRate != 0.5 {
		t.Errorf("pass rate = %v, want 0.5", stats.PassRate)
	}
	want := [4]int{1, 1, 1, 1}
	if stats.Histogram != want {
		t.Errorf("histogram = %v, want %v", stats.Histogram, want)
	}
}

func TestBatchesCourseFilterAndOverdue(t *testing.T) {
	db := newTestDB(t)
	svc := NewApprovalService(db)
	term := seedTerm(t, db)

	courseA := seedCourse(t, db)
	courseB := seedCourse(t, db)
	past := time.Now().AddDate(0, 0, -1)
	defA := seedComponent(t, db, courseA.ID, term.ID, func(p *ComponentParams) {
		p.ApprovalDeadline = &past
	})
	defB := seedComponent(t, db, courseB.ID, term.ID, nil)
	seedRecord(t, db, defA.ID, 50, models.StatusSubmitted)
	seedRecord(t, db, defB.ID, 50, models.StatusSubmitted)

	batches, err := svc.Batches(courseA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches for one course, want 1", len(batches))
	}
	if batches[0].Component.ID != defA.ID {
		t.Error("filter returned the wrong course's batch")
	}
	if !batches[0].Overdue {
		t.Error("batch past its approval deadline must be flagged overdue")
	}
}

func TestTransitionActions(t *testing.T) {
	db := newTestDB(t)
	svc := NewApprovalService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	approver := approverActor(course.ID)

	t.Run("Approve", func(t *testing.T) {
		rec := seedRecord(t, db, def.ID, 70, models.StatusSubmitted)
		if err := svc.Transition(approver, def.ID, []uuid.UUID{rec.ID}, ActionApprove, ""); err != nil {
			t.Fatal(err)
		}
		fresh := reload(t, db, rec)
		if fresh.Status != models.StatusApproved || !fresh.IsApproved {
			t.Errorf("row = %q/approved=%v, want approved/true", fresh.Status, fresh.IsApproved)
		}
		if fresh.ApprovedBy == nil || *fresh.ApprovedBy != approver.ID {
			t.Error("approver identity not recorded")
		}
	})

	t.Run("Reject Requires Comment", func(t *testing.T) {
		rec := seedRecord(t, db, def.ID, 70, models.StatusSubmitted)
		err := svc.Transition(approver, def.ID, []uuid.UUID{rec.ID}, ActionReject, "")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation for empty comment, got %v", err)
		}
		if err := svc.Transition(approver, def.ID, []uuid.UUID{rec.ID}, ActionReject, "duplicate entry"); err != nil {
			t.Fatal(err)
		}
		if got := reload(t, db, rec).Status; got != models.StatusRejected {
			t.Errorf("status = %q, want rejected", got)
		}
	})

	t.Run("Send Back Requires Comment", func(t *testing.T) {
		rec := seedRecord(t, db, def.ID, 70, models.StatusSubmitted)
		err := svc.Transition(approver, def.ID, []uuid.UUID{rec.ID}, ActionSendBack, "")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation for empty comment, got %v", err)
		}
		if err := svc.Transition(approver, def.ID, []uuid.UUID{rec.ID}, ActionSendBack, "check roll 42"); err != nil {
			t.Fatal(err)
		}
		fresh := reload(t, db, rec)
		if fresh.Status != models.StatusSentBack {
			t.Errorf("status = %q, want sent_back", fresh.Status)
		}
		if fresh.ApprovalComment != "check roll 42" {
			t.Errorf("comment = %q, want it preserved for the faculty", fresh.ApprovalComment)
		}
	})

	t.Run("Unknown Action", func(t *testing.T) {
		rec := seedRecord(t, db, def.ID, 70, models.StatusSubmitted)
		err := svc.Transition(approver, def.ID, []uuid.UUID{rec.ID}, "escalate", "x")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation for unknown action, got %v", err)
		}
	})
}

func TestTransitionCapabilityScope(t *testing.T) {
	db := newTestDB(t)
	svc := NewApprovalService(db)
	term := seedTerm(t, db)
	courseA := seedCourse(t, db)
	courseB := seedCourse(t, db)
	def := seedComponent(t, db, courseA.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 70, models.StatusSubmitted)

	t.Run("Other Course Approver Denied", func(t *testing.T) {
		err := svc.Transition(approverActor(courseB.ID), def.ID, []uuid.UUID{rec.ID}, ActionApprove, "")
		if !errors.Is(err, ErrCapability) {
			t.Errorf("expected ErrCapability, got %v", err)
		}
	})

	t.Run("Wildcard Approver Allowed", func(t *testing.T) {
		wildcard := Actor{ID: uuid.New(), Capabilities: []string{CapApproveAll}}
		if err := svc.Transition(wildcard, def.ID, []uuid.UUID{rec.ID}, ActionApprove, ""); err != nil {
			t.Fatal(err)
		}
	})
}

func TestTransitionConcurrentModification(t *testing.T) {
	db := newTestDB(t)
	svc := NewApprovalService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 70, models.StatusSubmitted)

	first := approverActor(course.ID)
	second := approverActor(course.ID)

	if err := svc.Transition(first, def.ID, []uuid.UUID{rec.ID}, ActionApprove, ""); err != nil {
		t.Fatal(err)
	}
	err := svc.Transition(second, def.ID, []uuid.UUID{rec.ID}, ActionReject, "late objection")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification for stale transition, got %v", err)
	}

	// Exactly one transition applied: the first one stands.
	fresh := reload(t, db, rec)
	if fresh.Status != models.StatusApproved {
		t.Errorf("status = %q, the first approval must stand", fresh.Status)
	}
	if fresh.ApprovedBy == nil || *fresh.ApprovedBy != first.ID {
		t.Error("the losing approver must not overwrite the decision record")
	}
}

func TestBulkTransitionPartialSuccess(t *testing.T) {
	db := newTestDB(t)
	svc := NewApprovalService(db)
	term := seedTerm(t, db)
	courseA := seedCourse(t, db)
	courseB := seedCourse(t, db)

	defA := seedComponent(t, db, courseA.ID, term.ID, nil)
	defB := seedComponent(t, db, courseB.ID, term.ID, nil)
	recA1 := seedRecord(t, db, defA.ID, 70, models.StatusSubmitted)
	recA2 := seedRecord(t, db, defA.ID, 55, models.StatusSubmitted)
	recB := seedRecord(t, db, defB.ID, 80, models.StatusSubmitted)

	// Approver holds rights on course A only: batch B must fail, batch A
	// must go through untouched by B's failure.
	results := svc.BulkTransition(approverActor(courseA.ID),
		[]uuid.UUID{defA.ID, defB.ID}, ActionApprove, "")

	if len(results) != 2 {
		t.Fatalf("got %d results, want one per batch", len(results))
	}
	if results[0].ComponentID != defA.ID || results[0].Error != "" || results[0].Transitioned != 2 {
		t.Errorf("batch A result = %+v, want 2 transitioned with no error", results[0])
	}
	if results[1].ComponentID != defB.ID || results[1].Error == "" || results[1].Transitioned != 0 {
		t.Errorf("batch B result = %+v, want reported failure with nothing transitioned", results[1])
	}

	if got := reload(t, db, recA1).Status; got != models.StatusApproved {
		t.Errorf("A1 status = %q, want approved", got)
	}
	if got := reload(t, db, recA2).Status; got != models.StatusApproved {
		t.Errorf("A2 status = %q, want approved", got)
	}
	if got := reload(t, db, recB).Status; got != models.StatusSubmitted {
		t.Errorf("B status = %q, must remain submitted", got)
	}
}

func TestTransitionWritesAudit(t *testing.T) {
	db := newTestDB(t)
	svc := NewApprovalService(db)
	course := seedCourse(t, db)
	term := seedTerm(t, db)
	def := seedComponent(t, db, course.ID, term.ID, nil)
	rec := seedRecord(t, db, def.ID, 70, models.StatusSubmitted)
	approver := approverActor(course.ID)

	if err := svc.Transition(approver, def.ID, []uuid.UUID{rec.ID}, ActionApprove, ""); err != nil {
		t.Fatal(err)
	}

	var entries []models.AuditLog
	if err := db.Where("resource_id = ?", rec.ID).Find(&entries).Error; err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].Action != "marks.approve" {
		t.Errorf("audit action = %q, want marks.approve", entries[0].Action)
	}
	if entries[0].ActorUserID != approver.ID {
		t.Error("audit entry missing the acting approver")
	}
}
