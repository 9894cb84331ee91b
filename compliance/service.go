package compliance

import (
	"context"
	"time"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/store"
)

// DefaultAlertLimit bounds alert listings when the caller gives no limit.
const DefaultAlertLimit = 100

// Service exposes compliance alerts and supplier analytics of a company.
type Service struct {
	store    *store.Store
	accounts *account.Service
	rules    Rules
	audit    audit.Writer
	log      observability.Logger
}

func NewService(st *store.Store, accounts *account.Service, rules Rules, aw audit.Writer, log observability.Logger) *Service {
	if aw == nil {
		aw = audit.Nop
	}
	return &Service{store: st, accounts: accounts, rules: rules, audit: aw, log: observability.OrNop(log)}
}

// Alerts lists compliance alerts, newest first.
func (s *Service) Alerts(ctx context.Context, actorID, companyID string, unresolvedOnly bool, limit int) ([]store.ComplianceAlert, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	alerts, err := s.store.ListComplianceAlerts(ctx, companyID, unresolvedOnly, limit)
	if alerts == nil && err == nil {
		alerts = []store.ComplianceAlert{}
	}
	return alerts, err
}

// Resolve marks an alert resolved. Staff cannot resolve alerts.
func (s *Service) Resolve(ctx context.Context, actorID, companyID, alertID string) error {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID,
		account.RoleManager, account.RoleAdmin, account.RoleOwner, account.RoleChampion); err != nil {
		return err
	}
	if err := s.store.ResolveComplianceAlert(ctx, companyID, alertID, actorID); err != nil {
		return err
	}
	if err := s.audit.Write(ctx, audit.Entry{
		ClientID: companyID, UserID: actorID, Action: audit.ActionAlertResolved,
		ResourceType: audit.ResourceComplianceAlert, ResourceID: alertID,
	}); err != nil {
		s.log.Warn("audit write failed", observability.String("action", audit.ActionAlertResolved), observability.Err(err))
	}
	return nil
}

// SupplierPerformance analyses completed deliveries since the given time; a
// zero since covers all history.
func (s *Service) SupplierPerformance(ctx context.Context, actorID, companyID string, since time.Time) ([]Performance, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return nil, err
	}
	records, err := s.store.ListDeliveryRecords(ctx, store.RecordFilter{
		ClientID: companyID, Status: store.StatusCompleted, Since: since,
	})
	if err != nil {
		return nil, err
	}
	return AnalyzeSuppliers(s.deliveries(records)), nil
}

func (s *Service) deliveries(records []store.DeliveryRecord) []SupplierDelivery {
	out := make([]SupplierDelivery, 0, len(records))
	for _, r := range records {
		at, err := time.Parse(time.DateOnly, r.DeliveryDate)
		if err != nil {
			at = r.CreatedAt
		}
		rep := s.rules.Evaluate(Delivery{ProductType: r.ProductType, Temperatures: r.Temperatures})
		out = append(out, SupplierDelivery{
			Supplier:     r.SupplierName,
			DeliveredAt:  at,
			Temperatures: r.Temperatures,
			Compliant:    rep.Compliant,
		})
	}
	return out
}
