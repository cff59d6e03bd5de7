package services

import (
	"github.com/google/uuid"
)

// Capability strings. Course-scoped approval capabilities are formed with
// ApproveCapability; CapApproveAll grants approval on every course.
const (
	CapMarksEnter = "marks:enter"
	CapApproveAll = "marks:approve:*"
	CapDefine     = "components:define"
	CapRevaluate  = "marks:revaluate"
	CapAdmin      = "admin"
)

// ApproveCapability returns the capability that gates approvals for one course.
func ApproveCapability(courseID uuid.UUID) string {
	return "marks:approve:" + courseID.String()
}

// Actor is the opaque identity every mutating call receives. The engine
// checks capability membership, never role names.
type Actor struct {
	ID           uuid.UUID
	Capabilities []string
}

// Can reports whether the actor holds the given capability.
func (a Actor) Can(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// CanApprove reports whether the actor may transition marks for the course.
func (a Actor) CanApprove(courseID uuid.UUID) bool {
	return a.Can(CapApproveAll) || a.Can(ApproveCapability(courseID))
}
