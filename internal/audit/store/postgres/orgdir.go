package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"audittrail/internal/audit"
)

// OrgDirectory answers organizational-assignment lookups from the
// org_assignments table.
type OrgDirectory struct {
	db *sql.DB
}

// NewOrgDirectory creates a PostgreSQL-backed assignment directory.
func NewOrgDirectory(db *sql.DB) *OrgDirectory {
	return &OrgDirectory{db: db}
}

// Assignments returns the divisions, departments and locations the subject
// is assigned to.
func (d *OrgDirectory) Assignments(ctx context.Context, subjectID string) (audit.OrgAssignments, error) {
	query := `
		SELECT dimension, org_id
		FROM org_assignments
		WHERE subject_id = $1
	`

	rows, err := d.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return audit.OrgAssignments{}, fmt.Errorf("query org assignments: %w", err)
	}
	defer rows.Close()

	var orgs audit.OrgAssignments
	for rows.Next() {
		var dimension, orgID string
		if err := rows.Scan(&dimension, &orgID); err != nil {
			return audit.OrgAssignments{}, fmt.Errorf("scan org assignment: %w", err)
		}
		switch dimension {
		case "division":
			orgs.Divisions = append(orgs.Divisions, orgID)
		case "department":
			orgs.Departments = append(orgs.Departments, orgID)
		case "location":
			orgs.Locations = append(orgs.Locations, orgID)
		}
	}
	if err := rows.Err(); err != nil {
		return audit.OrgAssignments{}, fmt.Errorf("iterate org assignments: %w", err)
	}
	return orgs, nil
}
