package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Invitation states.
const (
	InvitePending   = "pending"
	InviteAccepted  = "accepted"
	InviteCancelled = "cancelled"
	InviteExpired   = "expired"
)

// Invitation asks someone to join a company team.
type Invitation struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"companyId"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	InvitedBy  string     `json:"invitedBy"`
	Token      string     `json:"-"`
	Status     string     `json:"status"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

const invitationColumns = `id, company_id, email, role, invited_by, token, status, expires_at, accepted_at, created_at`

func scanInvitation(row interface{ Scan(...any) error }) (Invitation, error) {
	var inv Invitation
	var accepted sql.NullTime
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.Token, &inv.Status,
		&inv.ExpiresAt, &accepted, &inv.CreatedAt)
	inv.AcceptedAt = timePtr(accepted)
	return inv, mapErr(err)
}

// CreateInvitation stores a pending invitation with a fresh token.
func (s *Store) CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error) {
	inv.ID, inv.Token, inv.CreatedAt = newID(), newID(), s.Now()
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	if inv.Status == "" {
		inv.Status = InvitePending
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO invitations (`+invitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.CompanyID, inv.Email, inv.Role, inv.InvitedBy, inv.Token, inv.Status, inv.ExpiresAt.UTC(), nullTime(inv.AcceptedAt), inv.CreatedAt)
	if err != nil {
		return Invitation{}, fmt.Errorf("insert invitation: %w", mapErr(err))
	}
	return inv, nil
}

// HasPendingInvitation reports whether email already has a pending
// invitation to companyID.
func (s *Store) HasPendingInvitation(ctx context.Context, companyID, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invitations WHERE company_id = ? AND email = ? AND status = ?`,
		companyID, strings.ToLower(strings.TrimSpace(email)), InvitePending).Scan(&n)
	return n > 0, err
}

// ListInvitations returns the invitations of a company, newest first.
func (s *Store) ListInvitations(ctx context.Context, companyID string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE company_id = ? ORDER BY created_at DESC, rowid DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// GetInvitation loads an invitation of a company.
func (s *Store) GetInvitation(ctx context.Context, companyID, id string) (Invitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE company_id = ? AND id = ?`, companyID, id))
}

// GetInvitationByToken loads an invitation by its token.
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token))
}

// SetInvitationStatus moves a pending invitation to status.
func (s *Store) SetInvitationStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invitations SET status = ? WHERE id = ? AND status = ?`, status, id, InvitePending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AcceptInvitation creates the user (when user.ID is empty) and the
// membership, and marks the invitation accepted, atomically.
func (s *Store) AcceptInvitation(ctx context.Context, inv Invitation, user User) (User, error) {
	now := s.Now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE invitations SET status = ?, accepted_at = ? WHERE id = ? AND status = ?`,
			InviteAccepted, now, inv.ID, InvitePending)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if user.ID == "" {
			user.ID, user.CreatedAt = newID(), now
			user.Email = strings.ToLower(strings.TrimSpace(user.Email))
			if err := insertUser(ctx, tx, user); err != nil {
				return err
			}
		}
		return insertMembership(ctx, tx, Membership{CompanyID: inv.CompanyID, UserID: user.ID, Role: inv.Role, Status: "active", CreatedAt: now})
	})
	if err != nil {
		return User{}, fmt.Errorf("accept invitation: %w", err)
	}
	return user, nil
}

// OwnerInvitation is a champion's request for the business owner to review
// the evaluation.
type OwnerInvitation struct {
	ID                string          `json:"id"`
	CompanyID         string          `json:"companyId"`
	ChampionID        string          `json:"championId"`
	OwnerName         string          `json:"ownerName"`
	Email             string          `json:"email"`
	Phone             string          `json:"phone,omitempty"`
	Relationship      string          `json:"relationship"`
	PreferredContact  string          `json:"preferredContact"`
	EvaluationMessage string          `json:"evaluationMessage,omitempty"`
	Timeline          string          `json:"timeline,omitempty"`
	EvaluationSummary json.RawMessage `json:"evaluationSummary"`
	IncludeROIData    bool            `json:"includeRoiData"`
	Token             string          `json:"-"`
	Status            string          `json:"status"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	RespondedAt       *time.Time      `json:"respondedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

const ownerInvitationColumns = `id, company_id, champion_id, owner_name, email, phone, relationship, preferred_contact,
	evaluation_message, timeline, evaluation_summary, include_roi_data, token, status, expires_at, responded_at, created_at`

func scanOwnerInvitation(row interface{ Scan(...any) error }) (OwnerInvitation, error) {
	var o OwnerInvitation
	var summary string
	var responded sql.NullTime
	err := row.Scan(&o.ID, &o.CompanyID, &o.ChampionID, &o.OwnerName, &o.Email, &o.Phone, &o.Relationship, &o.PreferredContact,
		&o.EvaluationMessage, &o.Timeline, &summary, &o.IncludeROIData, &o.Token, &o.Status, &o.ExpiresAt, &responded, &o.CreatedAt)
	if err != nil {
		return OwnerInvitation{}, mapErr(err)
	}
	o.EvaluationSummary = json.RawMessage(summary)
	o.RespondedAt = timePtr(responded)
	return o, nil
}

// CreateOwnerInvitation stores a pending owner invitation.
func (s *Store) CreateOwnerInvitation(ctx context.Context, o OwnerInvitation) (OwnerInvitation, error) {
	o.ID, o.Token, o.CreatedAt = newID(), newID(), s.Now()
	o.Email = strings.ToLower(strings.TrimSpace(o.Email))
	if o.Status == "" {
		o.Status = InvitePending
	}
	if len(o.EvaluationSummary) == 0 {
		o.EvaluationSummary = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO owner_invitations (`+ownerInvitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CompanyID, o.ChampionID, o.OwnerName, o.Email, o.Phone, o.Relationship, o.PreferredContact,
		o.EvaluationMessage, o.Timeline, string(o.EvaluationSummary), o.IncludeROIData, o.Token, o.Status,
		o.ExpiresAt.UTC(), nullTime(o.RespondedAt), o.CreatedAt)
	if err != nil {
		return OwnerInvitation{}, fmt.Errorf("insert owner invitation: %w", mapErr(err))
	}
	return o, nil
}

// LatestOwnerInvitation returns the newest owner invitation sent by
// championID for companyID.
func (s *Store) LatestOwnerInvitation(ctx context.Context, companyID, championID string) (OwnerInvitation, error) {
	return scanOwnerInvitation(s.db.QueryRowContext(ctx, `SELECT `+ownerInvitationColumns+` FROM owner_invitations
		WHERE company_id = ? AND champion_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, companyID, championID))
}

// HasPendingOwnerInvitation reports whether email has a pending owner
// invitation for companyID.
func (s *Store) HasPendingOwnerInvitation(ctx context.Context, companyID, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM owner_invitations WHERE company_id = ? AND email = ? AND status = ?`,
		companyID, strings.ToLower(strings.TrimSpace(email)), InvitePending).Scan(&n)
	return n > 0, err
}
