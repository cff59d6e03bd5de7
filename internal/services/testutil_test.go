package services

import (
	"testing"
	"time"

	"github.com/campus-erp/backend/internal/evaluator"
	"github.com/campus-erp/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.AcademicTerm{},
		&models.ComponentType{},
		&models.ComponentDefinition{},
		&models.MarksLedgerRecord{},
		&models.GracePolicy{},
		&models.RevaluationSubject{},
		&models.AuditLog{},
		&models.RefreshToken{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func facultyActor() Actor {
	return Actor{ID: uuid.New(), Capabilities: []string{CapMarksEnter, CapDefine}}
}

func approverActor(courseIDs ...uuid.UUID) Actor {
	caps := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		caps = append(caps, ApproveCapability(id))
	}
	return Actor{ID: uuid.New(), Capabilities: caps}
}

func adminActor() Actor {
	return Actor{ID: uuid.New(), Capabilities: []string{CapAdmin, CapApproveAll, CapRevaluate}}
}

func seedCourse(t *testing.T, db *gorm.DB) *models.Course {
	t.Helper()
	course := &models.Course{Code: "CS301-" + uuid.NewString()[:8], Title: "Data Structures"}
	if err := db.Create(course).Error; err != nil {
		t.Fatalf("failed to seed course: %v", err)
	}
	return course
}

func seedTerm(t *testing.T, db *gorm.DB) *models.AcademicTerm {
	t.Helper()
	term := &models.AcademicTerm{Year: 2026, Semester: "odd", StartsOn: time.Now().AddDate(0, -1, 0)}
	if err := db.Create(term).Error; err != nil {
		t.Fatalf("failed to seed term: %v", err)
	}
	return term
}

func seedComponentType(t *testing.T, db *gorm.DB) *models.ComponentType {
	t.Helper()
	ct := &models.ComponentType{Name: "Quiz-" + uuid.NewString()[:8], Code: "QZ"}
	if err := db.Create(ct).Error; err != nil {
		t.Fatalf("failed to seed component type: %v", err)
	}
	return ct
}

// seedComponent creates a plain average/100-mark component unless the caller
// mutates the returned params first via mutate.
func seedComponent(t *testing.T, db *gorm.DB, courseID, termID uuid.UUID, mutate func(*ComponentParams)) *models.ComponentDefinition {
	t.Helper()
	svc := NewComponentService(db)
	params := ComponentParams{
		Name:             "Quiz",
		MaxMarks:         100,
		WeightagePercent: 20,
		Formula:          evaluator.FormulaAverage,
		RoundOff:         evaluator.RoundNone,
		ManualEntry:      true,
		ApprovalRequired: true,
	}
	if mutate != nil {
		mutate(&params)
	}
	ct := seedComponentType(t, db)
	result, err := svc.Define(facultyActor(), courseID, termID, ct.ID, params)
	if err != nil {
		t.Fatalf("failed to seed component: %v", err)
	}
	return result.Definition
}

func seedRecord(t *testing.T, db *gorm.DB, componentID uuid.UUID, marks float64, status string) *models.MarksLedgerRecord {
	t.Helper()
	rec := &models.MarksLedgerRecord{
		ComponentID:   componentID,
		StudentID:     uuid.New(),
		MarksObtained: &marks,
		Status:        status,
		EnteredBy:     uuid.New(),
		EnteredAt:     time.Now(),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("failed to seed ledger record: %v", err)
	}
	return rec
}

func reload(t *testing.T, db *gorm.DB, rec *models.MarksLedgerRecord) *models.MarksLedgerRecord {
	t.Helper()
	var fresh models.MarksLedgerRecord
	if err := db.First(&fresh, "id = ?", rec.ID).Error; err != nil {
		t.Fatalf("failed to reload record: %v", err)
	}
	return &fresh
}

func ptr(v float64) *float64 { return &v }
