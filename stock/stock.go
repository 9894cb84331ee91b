// Package stock tracks inventory items, stocktakes and expiring batches and
// summarises them for the dashboard.
package stock

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/store"
)

// Dashboard limits.
const (
	ExpiryWindowDays = 3
	MaxListed        = 10
)

// Config sets how dashboard money is written. Locale is a BCP 47 tag that
// picks digit grouping; Symbol prefixes the amount.
type Config struct {
	Locale string `yaml:"locale"`
	Symbol string `yaml:"currency_symbol"`
}

func DefaultConfig() Config {
	return Config{Locale: "en-US", Symbol: "$"}
}

// Money formats whole currency amounts for one locale.
type Money struct {
	printer *message.Printer
	symbol  string
}

// NewMoney builds a formatter from cfg. An unparsable locale falls back to
// the root locale; config validation reports it earlier.
func NewMoney(cfg Config) Money {
	def := DefaultConfig()
	if cfg.Locale == "" {
		cfg.Locale = def.Locale
	}
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	return Money{printer: message.NewPrinter(language.Make(cfg.Locale)), symbol: cfg.Symbol}
}

// Format renders v rounded to whole units with the locale's grouping.
func (m Money) Format(v float64) string {
	return m.printer.Sprintf("%s%d", m.symbol, int64(math.Round(v)))
}

// Service implements inventory operations for company members.
type Service struct {
	store    *store.Store
	accounts *account.Service
	money    Money
	log      observability.Logger
}

func NewService(st *store.Store, accounts *account.Service, cfg Config, log observability.Logger) *Service {
	return &Service{store: st, accounts: accounts, money: NewMoney(cfg), log: observability.OrNop(log)}
}

// ItemRequest is the payload of CreateItem.
type ItemRequest struct {
	Name        string  `json:"name"`
	Unit        string  `json:"unit"`
	UnitCost    float64 `json:"unitCost"`
	ParLevelLow float64 `json:"parLevelLow"`
}

// CreateItem adds an inventory item. Managers, admins and owners only.
func (s *Service) CreateItem(ctx context.Context, actorID, companyID string, req ItemRequest) (store.InventoryItem, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleManager, account.RoleAdmin, account.RoleOwner); err != nil {
		return store.InventoryItem{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return store.InventoryItem{}, fmt.Errorf("%w: item name is required", account.ErrInvalidInput)
	}
	if req.UnitCost < 0 || req.ParLevelLow < 0 {
		return store.InventoryItem{}, fmt.Errorf("%w: cost and par level must not be negative", account.ErrInvalidInput)
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = "each"
	}
	return s.store.CreateInventoryItem(ctx, store.InventoryItem{
		CompanyID: companyID, Name: name, Unit: unit, UnitCost: req.UnitCost, ParLevelLow: req.ParLevelLow,
	})
}

// CountRequest is the payload of RecordCount.
type CountRequest struct {
	ItemID    string    `json:"itemId"`
	Quantity  float64   `json:"quantity"`
	CountedAt time.Time `json:"countedAt"`
}

// RecordCount stores a stocktake of an item. Any member may count.
func (s *Service) RecordCount(ctx context.Context, actorID, companyID string, req CountRequest) (store.InventoryCount, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return store.InventoryCount{}, err
	}
	if req.Quantity < 0 {
		return store.InventoryCount{}, fmt.Errorf("%w: quantity must not be negative", account.ErrInvalidInput)
	}
	if _, err := s.store.GetInventoryItem(ctx, companyID, req.ItemID); err != nil {
		return store.InventoryCount{}, fmt.Errorf("item %s: %w", req.ItemID, err)
	}
	return s.store.InsertInventoryCount(ctx, store.InventoryCount{
		ItemID: req.ItemID, Quantity: req.Quantity, CountedBy: actorID, CountedAt: req.CountedAt,
	})
}

// BatchRequest is the payload of AddBatch. ExpiryDate is YYYY-MM-DD.
type BatchRequest struct {
	ItemID      string  `json:"itemId"`
	BatchNumber string  `json:"batchNumber"`
	Quantity    float64 `json:"quantity"`
	ExpiryDate  string  `json:"expiryDate"`
}

// AddBatch records a received lot. Managers, admins and owners only.
func (s *Service) AddBatch(ctx context.Context, actorID, companyID string, req BatchRequest) (store.InventoryBatch, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleManager, account.RoleAdmin, account.RoleOwner); err != nil {
		return store.InventoryBatch{}, err
	}
	expiry, err := time.Parse(time.DateOnly, strings.TrimSpace(req.ExpiryDate))
	if err != nil {
		return store.InventoryBatch{}, fmt.Errorf("%w: expiry date must be YYYY-MM-DD", account.ErrInvalidInput)
	}
	if strings.TrimSpace(req.BatchNumber) == "" || req.Quantity <= 0 {
		return store.InventoryBatch{}, fmt.Errorf("%w: batch number and a positive quantity are required", account.ErrInvalidInput)
	}
	item, err := s.store.GetInventoryItem(ctx, companyID, req.ItemID)
	if err != nil {
		return store.InventoryBatch{}, fmt.Errorf("item %s: %w", req.ItemID, err)
	}
	b, err := s.store.InsertInventoryBatch(ctx, store.InventoryBatch{
		ItemID: item.ID, BatchNumber: strings.TrimSpace(req.BatchNumber), Quantity: req.Quantity, ExpiryDate: expiry,
	})
	b.ItemName = item.Name
	return b, err
}

// Metric is one dashboard tile.
type Metric struct {
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted,omitempty"`
	Subtitle  string  `json:"subtitle"`
}

// Metrics are the dashboard tiles.
type Metrics struct {
	TotalValue         Metric `json:"totalValue"`
	ItemsBelowParCount Metric `json:"itemsBelowParCount"`
	ExpiringCount      Metric `json:"expiringCount"`
}

// BelowPar is an item whose latest count is under its low par level.
type BelowPar struct {
	ItemID       string     `json:"id"`
	ItemName     string     `json:"itemName"`
	Unit         string     `json:"unit"`
	ParLevelLow  float64    `json:"parLevelLow"`
	CurrentStock float64    `json:"currentStock"`
	CountDate    *time.Time `json:"countDate,omitempty"`
}

// Expiring is an active batch close to its expiry date.
type Expiring struct {
	store.InventoryBatch
	DaysUntilExpiry int `json:"daysUntilExpiry"`
}

// Dashboard is the stock overview of a company.
type Dashboard struct {
	Metrics         Metrics    `json:"metrics"`
	ItemsBelowPar   []BelowPar `json:"itemsBelowPar"`
	ExpiringBatches []Expiring `json:"expiringBatches"`
	LastUpdated     time.Time  `json:"lastUpdated"`
}

// Dashboard computes the stock overview. Any member may view it.
func (s *Service) Dashboard(ctx context.Context, actorID, companyID string) (Dashboard, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return Dashboard{}, err
	}
	items, err := s.store.ListItemsWithLatestCount(ctx, companyID)
	if err != nil {
		return Dashboard{}, err
	}
	now := s.store.Now()
	cutoff := now.Truncate(24*time.Hour).AddDate(0, 0, ExpiryWindowDays)
	batches, err := s.store.ListExpiringBatches(ctx, companyID, cutoff)
	if err != nil {
		return Dashboard{}, err
	}
	return summarize(items, batches, now, s.money), nil
}

func summarize(items []store.ItemWithCount, batches []store.InventoryBatch, now time.Time, money Money) Dashboard {
	d := Dashboard{ItemsBelowPar: []BelowPar{}, ExpiringBatches: []Expiring{}, LastUpdated: now}
	var total float64
	below := 0
	for _, iw := range items {
		var qty float64
		var at *time.Time
		if iw.Latest != nil {
			qty = iw.Latest.Quantity
			at = &iw.Latest.CountedAt
		}
		total += qty * iw.Item.UnitCost
		if iw.Item.ParLevelLow > 0 && qty < iw.Item.ParLevelLow {
			below++
			if len(d.ItemsBelowPar) < MaxListed {
				d.ItemsBelowPar = append(d.ItemsBelowPar, BelowPar{
					ItemID: iw.Item.ID, ItemName: iw.Item.Name, Unit: iw.Item.Unit,
					ParLevelLow: iw.Item.ParLevelLow, CurrentStock: qty, CountDate: at,
				})
			}
		}
	}
	for _, b := range batches {
		if len(d.ExpiringBatches) == MaxListed {
			break
		}
		days := int(math.Ceil(b.ExpiryDate.Sub(now).Hours() / 24))
		d.ExpiringBatches = append(d.ExpiringBatches, Expiring{InventoryBatch: b, DaysUntilExpiry: days})
	}
	d.Metrics = Metrics{
		TotalValue: Metric{Value: total, Formatted: money.Format(total), Subtitle: "Current inventory value"},
		ItemsBelowParCount: Metric{Value: float64(below),
			Subtitle: plural(below, "item needs restocking", "items need restocking")},
		ExpiringCount: Metric{Value: float64(len(batches)),
			Subtitle: plural(len(batches), "batch expiring soon", "batches expiring soon")},
	}
	return d
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
