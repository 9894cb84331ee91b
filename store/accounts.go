package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Company is a tenant ("client" in API payloads).
type Company struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BusinessType string    `json:"businessType"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// User is a login identity.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Membership links a user to a company with a role.
type Membership struct {
	CompanyID string    `json:"companyId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is a bearer token issued at login.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

const companyColumns = `id, name, business_type, email, phone, address, created_at, updated_at`

func scanCompany(row interface{ Scan(...any) error }) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.BusinessType, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

// CreateCompanyWithOwner inserts a company, its owner user and the owner
// membership in one transaction.
func (s *Store) CreateCompanyWithOwner(ctx context.Context, c Company, owner User) (Company, User, error) {
	now := s.Now()
	c.ID, c.CreatedAt, c.UpdatedAt = newID(), now, now
	owner.ID, owner.CreatedAt = newID(), now
	owner.Email = strings.ToLower(strings.TrimSpace(owner.Email))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO companies (`+companyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.BusinessType, c.Email, c.Phone, c.Address, c.CreatedAt, c.UpdatedAt); err != nil {
			return mapErr(err)
		}
		if err := insertUser(ctx, tx, owner); err != nil {
			return err
		}
		return insertMembership(ctx, tx, Membership{CompanyID: c.ID, UserID: owner.ID, Role: "owner", Status: "active", CreatedAt: now})
	})
	if err != nil {
		return Company{}, User{}, fmt.Errorf("create company: %w", err)
	}
	return c, owner, nil
}

// GetCompany loads a company by id.
func (s *Store) GetCompany(ctx context.Context, id string) (Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
}

// FindCompanyByName looks a company up by trimmed, case-insensitive name.
func (s *Store) FindCompanyByName(ctx context.Context, name string) (Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower(?) ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(name)))
}

// UpdateCompany overwrites the editable company fields.
func (s *Store) UpdateCompany(ctx context.Context, c Company) (Company, error) {
	c.UpdatedAt = s.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE companies SET name = ?, business_type = ?, email = ?, phone = ?, address = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.BusinessType, c.Email, c.Phone, c.Address, c.UpdatedAt, c.ID)
	if err != nil {
		return Company{}, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Company{}, ErrNotFound
	}
	return s.GetCompany(ctx, c.ID)
}

func insertUser(ctx context.Context, tx *sql.Tx, u User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users (id, email, full_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, u.PasswordHash, u.CreatedAt)
	return mapErr(err)
}

func insertMembership(ctx context.Context, tx *sql.Tx, m Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships (company_id, user_id, role, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.CompanyID, m.UserID, m.Role, m.Status, m.CreatedAt)
	return mapErr(err)
}

// CreateUser inserts a standalone user.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID, u.CreatedAt = newID(), s.Now()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := s.withTx(ctx, func(tx *sql.Tx) error { return insertUser(ctx, tx, u) })
	return u, err
}

const userColumns = `id, email, full_name, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt)
	return u, mapErr(err)
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail loads a user by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
}

// AddMembership links an existing user to a company.
func (s *Store) AddMembership(ctx context.Context, m Membership) error {
	if m.Status == "" {
		m.Status = "active"
	}
	m.CreatedAt = s.Now()
	return s.withTx(ctx, func(tx *sql.Tx) error { return insertMembership(ctx, tx, m) })
}

// GetMembership returns the membership of userID in companyID.
func (s *Store) GetMembership(ctx context.Context, companyID, userID string) (Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `SELECT company_id, user_id, role, status, created_at FROM memberships WHERE company_id = ? AND user_id = ?`,
		companyID, userID).Scan(&m.CompanyID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt)
	return m, mapErr(err)
}

// MembershipsForUser lists the companies a user belongs to, oldest first.
func (s *Store) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT company_id, user_id, role, status, created_at FROM memberships WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.CompanyID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IsMemberByEmail reports whether a user with email already belongs to
// companyID.
func (s *Store) IsMemberByEmail(ctx context.Context, companyID, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memberships m JOIN users u ON u.id = m.user_id WHERE m.company_id = ? AND u.email = ?`,
		companyID, strings.ToLower(strings.TrimSpace(email))).Scan(&n)
	return n > 0, err
}

// CountActiveMembers counts active memberships of a company.
func (s *Store) CountActiveMembers(ctx context.Context, companyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memberships WHERE company_id = ? AND status = 'active'`, companyID).Scan(&n)
	return n, err
}

// CreateSession stores a new session for userID.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (Session, error) {
	now := s.Now()
	sess := Session{Token: newID(), UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.ExpiresAt, sess.CreatedAt)
	return sess, mapErr(err)
}

// GetSession loads a session by token. Expired sessions are returned too;
// callers decide.
func (s *Store) GetSession(ctx context.Context, token string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token).
		Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	return sess, mapErr(err)
}

// DeleteSession removes a session. Deleting a missing session is not an
// error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// PurgeExpiredSessions deletes sessions that expired before now.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, s.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
