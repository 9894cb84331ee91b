package store

import (
	"context"
	"time"
)

// SaveConfigCards replaces the ConfigCard definitions document of a company.
func (s *Store) SaveConfigCards(ctx context.Context, companyID, userID string, definitions []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO configcard_definitions (company_id, definitions, updated_by, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET definitions = excluded.definitions, updated_by = excluded.updated_by, updated_at = excluded.updated_at`,
		companyID, string(definitions), userID, s.Now())
	return mapErr(err)
}

// LoadConfigCards returns the stored definitions document, or ErrNotFound.
func (s *Store) LoadConfigCards(ctx context.Context, companyID string) ([]byte, time.Time, error) {
	var doc string
	var at time.Time
	err := s.db.QueryRowContext(ctx, `SELECT definitions, updated_at FROM configcard_definitions WHERE company_id = ?`, companyID).Scan(&doc, &at)
	if err != nil {
		return nil, time.Time{}, mapErr(err)
	}
	return []byte(doc), at, nil
}

// Department groups job titles within a company.
type Department struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"companyId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateDepartment inserts an active department.
func (s *Store) CreateDepartment(ctx context.Context, d Department) (Department, error) {
	d.ID, d.CreatedAt, d.Active = newID(), s.Now(), true
	_, err := s.db.ExecContext(ctx, `INSERT INTO departments (id, company_id, name, description, active, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
		d.ID, d.CompanyID, d.Name, d.Description, d.CreatedAt)
	return d, mapErr(err)
}

// ListDepartments returns departments by name; inactive ones only when
// includeInactive is set.
func (s *Store) ListDepartments(ctx context.Context, companyID string, includeInactive bool) ([]Department, error) {
	q := `SELECT id, company_id, name, description, active, created_at FROM departments WHERE company_id = ?`
	if !includeInactive {
		q += ` AND active = 1`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.Name, &d.Description, &d.Active, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeactivateDepartment hides a department without deleting it.
func (s *Store) DeactivateDepartment(ctx context.Context, companyID, id string) error {
	return s.deactivate(ctx, "departments", companyID, id)
}

// JobTitle is a role within a company, optionally tied to a department.
type JobTitle struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"companyId"`
	Title         string    `json:"title"`
	DepartmentID  string    `json:"departmentId,omitempty"`
	SecurityLevel string    `json:"securityLevel"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CreateJobTitle inserts an active job title.
func (s *Store) CreateJobTitle(ctx context.Context, j JobTitle) (JobTitle, error) {
	j.ID, j.CreatedAt, j.Active = newID(), s.Now(), true
	if j.SecurityLevel == "" {
		j.SecurityLevel = "low"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO job_titles (id, company_id, title, department_id, security_level, active, created_at) VALUES (?, ?, ?, ?, ?, 1, ?)`,
		j.ID, j.CompanyID, j.Title, nullString(j.DepartmentID), j.SecurityLevel, j.CreatedAt)
	return j, mapErr(err)
}

// ListJobTitles returns job titles by title.
func (s *Store) ListJobTitles(ctx context.Context, companyID string, includeInactive bool) ([]JobTitle, error) {
	q := `SELECT id, company_id, title, COALESCE(department_id, ''), security_level, active, created_at FROM job_titles WHERE company_id = ?`
	if !includeInactive {
		q += ` AND active = 1`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY title`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobTitle
	for rows.Next() {
		var j JobTitle
		if err := rows.Scan(&j.ID, &j.CompanyID, &j.Title, &j.DepartmentID, &j.SecurityLevel, &j.Active, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// DeactivateJobTitle hides a job title without deleting it.
func (s *Store) DeactivateJobTitle(ctx context.Context, companyID, id string) error {
	return s.deactivate(ctx, "job_titles", companyID, id)
}

// CountActive counts active departments and job titles of a company.
func (s *Store) CountActive(ctx context.Context, companyID string) (departments, jobTitles int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM departments WHERE company_id = ? AND active = 1),
		(SELECT COUNT(*) FROM job_titles WHERE company_id = ? AND active = 1)`, companyID, companyID).Scan(&departments, &jobTitles)
	return departments, jobTitles, err
}

func (s *Store) deactivate(ctx context.Context, table, companyID, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET active = 0 WHERE company_id = ? AND id = ? AND active = 1`, companyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
