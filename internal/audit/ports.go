package audit

import "context"

// OrgAssignments is a subject's set of organizational-hierarchy assignments.
type OrgAssignments struct {
	Divisions   []string
	Departments []string
	Locations   []string
}

// Empty reports whether the subject has no assignment in any dimension.
func (o OrgAssignments) Empty() bool {
	return len(o.Divisions) == 0 && len(o.Departments) == 0 && len(o.Locations) == 0
}

// OrgDirectory is the organizational-assignment collaborator. It answers
// which divisions, departments and locations a subject is assigned to.
type OrgDirectory interface {
	Assignments(ctx context.Context, subjectID string) (OrgAssignments, error)
}

// Identity is the caller identity produced by the identity-extraction
// collaborator at the transport boundary.
type Identity struct {
	SubjectID string
	Email     string
	Roles     []string
}
