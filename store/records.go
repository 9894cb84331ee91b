package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Processing states of a delivery record.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DeliveryRecord is one processed docket.
type DeliveryRecord struct {
	ID               string    `json:"id"`
	ClientID         string    `json:"clientId"`
	UserID           string    `json:"userId"`
	SupplierName     string    `json:"supplierName"`
	DeliveryDate     string    `json:"deliveryDate"`
	DocketNumber     string    `json:"docketNumber,omitempty"`
	ImagePath        string    `json:"imagePath"`
	ItemCount        int       `json:"itemCount"`
	Temperatures     []float64 `json:"temperatures"`
	ProductType      string    `json:"productType,omitempty"`
	ProcessingStatus string    `json:"processingStatus"`
	ConfidenceScore  float64   `json:"confidenceScore"`
	RawExtractedText string    `json:"rawExtractedText,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	BulkUpload       bool      `json:"bulkUpload"`
	Priority         string    `json:"priority,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RecordFilter narrows ListDeliveryRecords.
type RecordFilter struct {
	ClientID string
	BulkOnly bool
	Status   string
	Supplier string
	Since    time.Time
	Limit    int
}

const recordColumns = `id, client_id, user_id, supplier_name, delivery_date, docket_number, image_path, item_count,
	temperatures, product_type, processing_status, confidence_score, raw_extracted_text, error_message,
	bulk_upload, priority, created_at`

func scanRecord(row interface{ Scan(...any) error }) (DeliveryRecord, error) {
	var r DeliveryRecord
	var temps string
	err := row.Scan(&r.ID, &r.ClientID, &r.UserID, &r.SupplierName, &r.DeliveryDate, &r.DocketNumber, &r.ImagePath,
		&r.ItemCount, &temps, &r.ProductType, &r.ProcessingStatus, &r.ConfidenceScore, &r.RawExtractedText,
		&r.ErrorMessage, &r.BulkUpload, &r.Priority, &r.CreatedAt)
	if err != nil {
		return DeliveryRecord{}, mapErr(err)
	}
	if err := json.Unmarshal([]byte(temps), &r.Temperatures); err != nil {
		return DeliveryRecord{}, fmt.Errorf("decode temperatures of %s: %w", r.ID, err)
	}
	return r, nil
}

// InsertDeliveryRecord assigns an id and creation time and stores r.
func (s *Store) InsertDeliveryRecord(ctx context.Context, r DeliveryRecord) (DeliveryRecord, error) {
	r.ID, r.CreatedAt = newID(), s.Now()
	if r.Temperatures == nil {
		r.Temperatures = []float64{}
	}
	temps, err := json.Marshal(r.Temperatures)
	if err != nil {
		return DeliveryRecord{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO delivery_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClientID, r.UserID, r.SupplierName, r.DeliveryDate, r.DocketNumber, r.ImagePath, r.ItemCount,
		string(temps), r.ProductType, r.ProcessingStatus, r.ConfidenceScore, r.RawExtractedText, r.ErrorMessage,
		r.BulkUpload, r.Priority, r.CreatedAt)
	if err != nil {
		return DeliveryRecord{}, fmt.Errorf("insert delivery record: %w", mapErr(err))
	}
	return r, nil
}

// GetDeliveryRecord loads a record of clientID.
func (s *Store) GetDeliveryRecord(ctx context.Context, clientID, id string) (DeliveryRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM delivery_records WHERE client_id = ? AND id = ?`, clientID, id))
}

// ListDeliveryRecords returns matching records, newest first.
func (s *Store) ListDeliveryRecords(ctx context.Context, f RecordFilter) ([]DeliveryRecord, error) {
	where := []string{"client_id = ?"}
	args := []any{f.ClientID}
	if f.BulkOnly {
		where = append(where, "bulk_upload = 1")
	}
	if f.Status != "" {
		where = append(where, "processing_status = ?")
		args = append(args, f.Status)
	}
	if f.Supplier != "" {
		where = append(where, "supplier_name = ?")
		args = append(args, f.Supplier)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	q := `SELECT ` + recordColumns + ` FROM delivery_records WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeliveryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountDeliveryRecords counts all records of clientID.
func (s *Store) CountDeliveryRecords(ctx context.Context, clientID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_records WHERE client_id = ?`, clientID).Scan(&n)
	return n, err
}

// ComplianceAlert is one out-of-range temperature on a docket.
type ComplianceAlert struct {
	ID               string     `json:"id"`
	ClientID         string     `json:"clientId"`
	DeliveryRecordID string     `json:"deliveryRecordId"`
	Severity         string     `json:"severity"`
	Temperature      float64    `json:"temperature"`
	Threshold        float64    `json:"threshold"`
	Message          string     `json:"message"`
	Resolved         bool       `json:"resolved"`
	ResolvedBy       string     `json:"resolvedBy,omitempty"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	DocketNumber     string     `json:"docketNumber,omitempty"`
	SupplierName     string     `json:"supplierName,omitempty"`
}

// InsertComplianceAlerts stores alerts in one transaction.
func (s *Store) InsertComplianceAlerts(ctx context.Context, alerts []ComplianceAlert) ([]ComplianceAlert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}
	now := s.Now()
	out := make([]ComplianceAlert, len(alerts))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, a := range alerts {
			a.ID, a.CreatedAt, a.Resolved = newID(), now, false
			if _, err := tx.ExecContext(ctx, `INSERT INTO compliance_alerts (id, client_id, delivery_record_id, severity, temperature, threshold, message, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, a.ID, a.ClientID, a.DeliveryRecordID, a.Severity, a.Temperature, a.Threshold, a.Message, a.CreatedAt); err != nil {
				return mapErr(err)
			}
			out[i] = a
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert compliance alerts: %w", err)
	}
	return out, nil
}

// ListComplianceAlerts returns alerts of clientID with the docket number and
// supplier of their record, newest first.
func (s *Store) ListComplianceAlerts(ctx context.Context, clientID string, unresolvedOnly bool, limit int) ([]ComplianceAlert, error) {
	q := `SELECT a.id, a.client_id, a.delivery_record_id, a.severity, a.temperature, a.threshold, a.message, a.resolved,
		a.resolved_by, a.resolved_at, a.created_at, r.docket_number, r.supplier_name
		FROM compliance_alerts a JOIN delivery_records r ON r.id = a.delivery_record_id
		WHERE a.client_id = ?`
	args := []any{clientID}
	if unresolvedOnly {
		q += ` AND a.resolved = 0`
	}
	q += ` ORDER BY a.created_at DESC, a.rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ComplianceAlert
	for rows.Next() {
		var a ComplianceAlert
		var by sql.NullString
		var at sql.NullTime
		if err := rows.Scan(&a.ID, &a.ClientID, &a.DeliveryRecordID, &a.Severity, &a.Temperature, &a.Threshold, &a.Message,
			&a.Resolved, &by, &at, &a.CreatedAt, &a.DocketNumber, &a.SupplierName); err != nil {
			return nil, err
		}
		a.ResolvedBy, a.ResolvedAt = by.String, timePtr(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveComplianceAlert marks an alert resolved by userID. Resolving an
// already resolved alert returns ErrNotFound.
func (s *Store) ResolveComplianceAlert(ctx context.Context, clientID, id, userID string) error {
	now := s.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE compliance_alerts SET resolved = 1, resolved_by = ?, resolved_at = ? WHERE client_id = ? AND id = ? AND resolved = 0`,
		nullString(userID), nullTime(&now), clientID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
