package audit

import (
	"context"
	"sync"
)

// MemoryOrgDirectory is an in-memory OrgDirectory for tests and local
// development.
type MemoryOrgDirectory struct {
	mu          sync.RWMutex
	assignments map[string]OrgAssignments
}

// NewMemoryOrgDirectory creates an empty in-memory assignment directory.
func NewMemoryOrgDirectory() *MemoryOrgDirectory {
	return &MemoryOrgDirectory{assignments: make(map[string]OrgAssignments)}
}

// Assign sets a subject's assignments, replacing any previous ones.
func (d *MemoryOrgDirectory) Assign(subjectID string, orgs OrgAssignments) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assignments[subjectID] = orgs
}

// Assignments returns the subject's assignments; unknown subjects have none.
func (d *MemoryOrgDirectory) Assignments(_ context.Context, subjectID string) (OrgAssignments, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.assignments[subjectID], nil
}
