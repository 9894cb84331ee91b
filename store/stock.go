package store

import (
	"context"
	"time"
)

// InventoryItem is a stocked product.
type InventoryItem struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"companyId"`
	Name        string    `json:"name"`
	Unit        string    `json:"unit"`
	UnitCost    float64   `json:"unitCost"`
	ParLevelLow float64   `json:"parLevelLow"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InventoryCount is a stocktake of one item.
type InventoryCount struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"itemId"`
	Quantity  float64   `json:"quantity"`
	CountedBy string    `json:"countedBy,omitempty"`
	CountedAt time.Time `json:"countedAt"`
}

// InventoryBatch is a received lot with an expiry date.
type InventoryBatch struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	BatchNumber string    `json:"batchNumber"`
	Quantity    float64   `json:"quantity"`
	ExpiryDate  time.Time `json:"expiryDate"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	ItemName    string    `json:"itemName,omitempty"`
}

// CreateInventoryItem inserts an active item.
func (s *Store) CreateInventoryItem(ctx context.Context, it InventoryItem) (InventoryItem, error) {
	it.ID, it.CreatedAt, it.Active = newID(), s.Now(), true
	_, err := s.db.ExecContext(ctx, `INSERT INTO inventory_items (id, company_id, name, unit, unit_cost, par_level_low, active, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		it.ID, it.CompanyID, it.Name, it.Unit, it.UnitCost, it.ParLevelLow, it.CreatedAt)
	return it, mapErr(err)
}

// GetInventoryItem loads an item of a company.
func (s *Store) GetInventoryItem(ctx context.Context, companyID, id string) (InventoryItem, error) {
	var it InventoryItem
	err := s.db.QueryRowContext(ctx, `SELECT id, company_id, name, unit, unit_cost, par_level_low, active, created_at FROM inventory_items WHERE company_id = ? AND id = ?`,
		companyID, id).Scan(&it.ID, &it.CompanyID, &it.Name, &it.Unit, &it.UnitCost, &it.ParLevelLow, &it.Active, &it.CreatedAt)
	return it, mapErr(err)
}

// ItemWithCount pairs an item with its most recent count, if any.
type ItemWithCount struct {
	Item   InventoryItem
	Latest *InventoryCount
}

// ListItemsWithLatestCount returns active items by name with their newest
// count.
func (s *Store) ListItemsWithLatestCount(ctx context.Context, companyID string) ([]ItemWithCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT i.id, i.company_id, i.name, i.unit, i.unit_cost, i.par_level_low, i.active, i.created_at,
			c.id, c.quantity, c.counted_by, c.counted_at
		FROM inventory_items i
		LEFT JOIN inventory_counts c ON c.id = (
			SELECT c2.id FROM inventory_counts c2 WHERE c2.item_id = i.id ORDER BY c2.counted_at DESC, c2.rowid DESC LIMIT 1)
		WHERE i.company_id = ? AND i.active = 1
		ORDER BY i.name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemWithCount
	for rows.Next() {
		var it InventoryItem
		var cid, by *string
		var qty *float64
		var at *time.Time
		if err := rows.Scan(&it.ID, &it.CompanyID, &it.Name, &it.Unit, &it.UnitCost, &it.ParLevelLow, &it.Active, &it.CreatedAt,
			&cid, &qty, &by, &at); err != nil {
			return nil, err
		}
		row := ItemWithCount{Item: it}
		if cid != nil {
			c := InventoryCount{ID: *cid, ItemID: it.ID}
			if qty != nil {
				c.Quantity = *qty
			}
			if by != nil {
				c.CountedBy = *by
			}
			if at != nil {
				c.CountedAt = at.UTC()
			}
			row.Latest = &c
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertInventoryCount records a stocktake.
func (s *Store) InsertInventoryCount(ctx context.Context, c InventoryCount) (InventoryCount, error) {
	c.ID = newID()
	if c.CountedAt.IsZero() {
		c.CountedAt = s.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO inventory_counts (id, item_id, quantity, counted_by, counted_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ItemID, c.Quantity, c.CountedBy, c.CountedAt.UTC())
	return c, mapErr(err)
}

// InsertInventoryBatch records a received lot.
func (s *Store) InsertInventoryBatch(ctx context.Context, b InventoryBatch) (InventoryBatch, error) {
	b.ID, b.CreatedAt = newID(), s.Now()
	if b.Status == "" {
		b.Status = "active"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO inventory_batches (id, item_id, batch_number, quantity, expiry_date, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ItemID, b.BatchNumber, b.Quantity, b.ExpiryDate.UTC(), b.Status, b.CreatedAt)
	return b, mapErr(err)
}

// ListExpiringBatches returns active batches of a company's items expiring
// at or before before, soonest first.
func (s *Store) ListExpiringBatches(ctx context.Context, companyID string, before time.Time) ([]InventoryBatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT b.id, b.item_id, b.batch_number, b.quantity, b.expiry_date, b.status, b.created_at, i.name
		FROM inventory_batches b JOIN inventory_items i ON i.id = b.item_id
		WHERE i.company_id = ? AND b.status = 'active' AND b.expiry_date <= ?
		ORDER BY b.expiry_date, b.batch_number`, companyID, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InventoryBatch
	for rows.Next() {
		var b InventoryBatch
		if err := rows.Scan(&b.ID, &b.ItemID, &b.BatchNumber, &b.Quantity, &b.ExpiryDate, &b.Status, &b.CreatedAt, &b.ItemName); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
