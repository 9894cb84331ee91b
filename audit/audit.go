// Package audit appends tenant activity to the audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wudi/docketkit/store"
)

// Actions written by this module.
const (
	ActionDocumentUploaded      = "document.uploaded"
	ActionBulkDocumentProcessed = "bulk.document.processed"
	ActionBulkCompleted         = "bulk.processing.completed"
	ActionInviteUser            = "invite_user"
	ActionInvitationCancelled   = "invitation_cancelled"
	ActionInvitationAccepted    = "invitation_accepted"
	ActionOwnerInvited          = "owner_invitation_sent"
	ActionIncentiveClaimed      = "incentive_claimed"
	ActionCompanyCreated        = "company_created"
	ActionCompanyUpdated        = "company_updated"
	ActionConfigCardsSaved      = "configcards_saved"
	ActionAlertResolved         = "compliance_alert_resolved"
)

// Resource types.
const (
	ResourceDeliveryRecord  = "delivery_record"
	ResourceBulkOperation   = "bulk_operation"
	ResourceInvitation      = "team_invitation"
	ResourceOwnerInvitation = "owner_invitation"
	ResourceIncentive       = "champion_incentive"
	ResourceCompany         = "company"
	ResourceConfigCards     = "configcards"
	ResourceComplianceAlert = "compliance_alert"
)

// Entry is one audit row before persistence. Details is marshalled to JSON.
type Entry struct {
	ClientID     string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Details      any
}

// Writer appends entries.
type Writer interface {
	Write(ctx context.Context, e Entry) error
}

// StoreWriter persists entries in the store.
type StoreWriter struct {
	store *store.Store
}

// NewStoreWriter returns a Writer backed by st.
func NewStoreWriter(st *store.Store) *StoreWriter { return &StoreWriter{store: st} }

func (w *StoreWriter) Write(ctx context.Context, e Entry) error {
	var details json.RawMessage
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit %s: encode details: %w", e.Action, err)
		}
		details = b
	}
	_, err := w.store.InsertAuditLog(ctx, store.AuditLog{
		ClientID:     e.ClientID,
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      details,
	})
	if err != nil {
		return fmt.Errorf("audit %s: %w", e.Action, err)
	}
	return nil
}

// List returns the newest entries of clientID.
func (w *StoreWriter) List(ctx context.Context, clientID, action string, limit int) ([]store.AuditLog, error) {
	return w.store.ListAuditLogs(ctx, clientID, action, limit)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, e Entry) error

func (f WriterFunc) Write(ctx context.Context, e Entry) error { return f(ctx, e) }

// Nop discards entries.
var Nop Writer = WriterFunc(func(context.Context, Entry) error { return nil })
