package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB custom type for JSON fields
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// StringList stores a JSON array of strings (used for capability sets)
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Base model with UUID
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Marks ledger lifecycle statuses
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusSentBack  = "sent_back"
)

// Revaluation subject statuses
const (
	RevalPending  = "pending"
	RevalCompared = "compared"
	RevalFinal    = "final"
)

// Revaluation types
const (
	RevalRetotaling       = "retotaling"
	RevalFullReevaluation = "full_reevaluation"
)

// User represents system users (faculty, approvers, admins)
type User struct {
	BaseModel
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Role         string     `gorm:"type:varchar(20);not null" json:"role"`
	FullName     string     `gorm:"type:varchar(255);not null" json:"full_name"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	Capabilities StringList `gorm:"type:json" json:"capabilities"`
	Meta         JSONB      `gorm:"type:json" json:"meta"`
}

// Course is read-only reference data
type Course struct {
	BaseModel
	Code       string `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Title      string `gorm:"type:varchar(255);not null" json:"title"`
	Department string `gorm:"type:varchar(100)" json:"department"`
	Credits    int    `gorm:"default:3" json:"credits"`
}

// AcademicTerm is read-only reference data (year + semester)
type AcademicTerm struct {
	BaseModel
	Year     int        `gorm:"not null;index:idx_term_year_sem" json:"year"`
	Semester string     `gorm:"type:varchar(10);not null;index:idx_term_year_sem" json:"semester"`
	StartsOn time.Time  `gorm:"type:date" json:"starts_on"`
	EndsOn   *time.Time `gorm:"type:date" json:"ends_on,omitempty"`
}

// ComponentType is the assessment component taxonomy (quiz, mid-term, ...)
type ComponentType struct {
	BaseModel
	Name        string `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Code        string `gorm:"type:varchar(50);not null" json:"code"`
	Description string `gorm:"type:text" json:"description"`
}

// ComponentDefinition is the per-course assessment blueprint:
// one row per (course, term, component type).
type ComponentDefinition struct {
	BaseModel
	CourseID         uuid.UUID  `gorm:"type:char(36);not null;index:idx_component_course_term" json:"course_id"`
	TermID           uuid.UUID  `gorm:"type:char(36);not null;index:idx_component_course_term" json:"term_id"`
	ComponentTypeID  uuid.UUID  `gorm:"type:char(36);not null;index" json:"component_type_id"`
	Name             string     `gorm:"type:varchar(255);not null" json:"name"`
	MaxMarks         float64    `gorm:"type:decimal(6,2);not null" json:"max_marks"`
	WeightagePercent float64    `gorm:"type:decimal(5,2);not null" json:"weightage_percent"`
	Formula          string     `gorm:"type:varchar(20);not null" json:"formula"`
	BestOfNCount     *int       `gorm:"type:smallint" json:"best_of_n_count,omitempty"`
	RoundOff         string     `gorm:"type:varchar(20);not null;default:'none'" json:"round_off"`
	ManualEntry      bool       `gorm:"default:true" json:"manual_entry"`
	ApprovalRequired bool       `gorm:"default:true" json:"approval_required"`
	ApprovalDeadline *time.Time `json:"approval_deadline,omitempty"`
	EntryStartsAt    *time.Time `json:"entry_starts_at,omitempty"`
	EntryDeadline    *time.Time `json:"entry_deadline,omitempty"`
	GracePeriodHours int        `gorm:"default:0" json:"grace_period_hours"`
	DependsOnID      *uuid.UUID `gorm:"type:char(36);index" json:"depends_on_id,omitempty"`
	CreatedBy        uuid.UUID  `gorm:"type:char(36);not null" json:"created_by"`

	Course        *Course              `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Term          *AcademicTerm        `gorm:"foreignKey:TermID" json:"term,omitempty"`
	ComponentType *ComponentType       `gorm:"foreignKey:ComponentTypeID" json:"component_type,omitempty"`
	DependsOn     *ComponentDefinition `gorm:"foreignKey:DependsOnID" json:"depends_on,omitempty"`
}

// MarksLedgerRecord holds one raw score per (student, component).
// RevisionCount distinguishes a first draft from a draft re-entered
// after a send-back, so the audit trail stays distinguishable.
type MarksLedgerRecord struct {
	BaseModel
	ComponentID     uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex:idx_ledger_component_student" json:"component_id"`
	StudentID       uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex:idx_ledger_component_student" json:"student_id"`
	MarksObtained   *float64   `gorm:"type:decimal(6,2)" json:"marks_obtained,omitempty"`
	IsAbsent        bool       `gorm:"default:false" json:"is_absent"`
	Remarks         string     `gorm:"type:text" json:"remarks"`
	Status          string     `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	RevisionCount   int        `gorm:"default:0" json:"revision_count"`
	IsApproved      bool       `gorm:"default:false" json:"is_approved"`
	ApprovedBy      *uuid.UUID `gorm:"type:char(36)" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ApprovalComment string     `gorm:"type:text" json:"approval_comment"`
	EnteredBy       uuid.UUID  `gorm:"type:char(36);not null" json:"entered_by"`
	EnteredAt       time.Time  `json:"entered_at"`

	Component *ComponentDefinition `gorm:"foreignKey:ComponentID" json:"component,omitempty"`
}

// GracePolicy is the per-course bounded grace-mark allowance.
// Nil caps mean "no cap of that kind"; the effective allowance is the
// minimum of the caps that are set.
type GracePolicy struct {
	BaseModel
	CourseID        uuid.UUID  `gorm:"type:char(36);not null;index" json:"course_id"`
	MaxGraceMarks   *float64   `gorm:"type:decimal(5,2)" json:"max_grace_marks,omitempty"`
	MaxGracePercent *float64   `gorm:"type:decimal(5,2)" json:"max_grace_percent,omitempty"`
	IsActive        bool       `gorm:"default:true;index" json:"is_active"`
	ValidFrom       time.Time  `gorm:"type:date" json:"valid_from"`
	ValidUntil      *time.Time `gorm:"type:date" json:"valid_until,omitempty"`

	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

// RevaluationSubject tracks one accepted revaluation application against
// a single (student, component) pair. OriginalMarks is frozen at open time.
type RevaluationSubject struct {
	BaseModel
	ApplicationID    uuid.UUID  `gorm:"type:char(36);not null;index" json:"application_id"`
	StudentID        uuid.UUID  `gorm:"type:char(36);not null;index:idx_reval_student_component" json:"student_id"`
	ComponentID      uuid.UUID  `gorm:"type:char(36);not null;index:idx_reval_student_component" json:"component_id"`
	RevalType        string     `gorm:"type:varchar(30);not null" json:"reval_type"`
	OriginalMarks    float64    `gorm:"type:decimal(6,2);not null" json:"original_marks"`
	RevaluationMarks *float64   `gorm:"type:decimal(6,2)" json:"revaluation_marks,omitempty"`
	FinalMarks       *float64   `gorm:"type:decimal(6,2)" json:"final_marks,omitempty"`
	RefundEligible   bool       `gorm:"default:false" json:"refund_eligible"`
	RefundAmount     *float64   `gorm:"type:decimal(10,2)" json:"refund_amount,omitempty"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	EnteredBy        *uuid.UUID `gorm:"type:char(36)" json:"entered_by,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	Component *ComponentDefinition `gorm:"foreignKey:ComponentID" json:"component,omitempty"`
}

// AuditLog tracks all data changes
type AuditLog struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ActorUserID  uuid.UUID `gorm:"type:char(36);index" json:"actor_user_id"`
	Action       string    `gorm:"type:varchar(50);not null" json:"action"`
	ResourceType string    `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   uuid.UUID `gorm:"type:char(36);index" json:"resource_id"`
	Before       JSONB     `gorm:"type:json" json:"before"`
	After        JSONB     `gorm:"type:json" json:"after"`
	Timestamp    time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
	IP           string    `gorm:"type:varchar(45)" json:"ip"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// RefreshToken stores refresh tokens for revocation
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:char(36);not null;index" json:"user_id"`
	Token     string    `gorm:"type:varchar(500);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Revoked   bool      `gorm:"default:false;index" json:"revoked"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
