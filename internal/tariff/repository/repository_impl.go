package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SellerTariffRow is the seller_tariffs table. The schedule is stored as one
// JSON document per seller.
type SellerTariffRow struct {
	SellerID  string         `gorm:"primaryKey;column:seller_id"`
	Document  datatypes.JSON `gorm:"column:document;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

func (SellerTariffRow) TableName() string { return "seller_tariffs" }

// DBStore keeps schedules in seller_tariffs.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (r *DBStore) GetSellerTariff(ctx context.Context, sellerID string) (*tariffdomain.SellerTariff, error) {
	var row SellerTariffRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT seller_id, document, updated_at
		 FROM seller_tariffs
		 WHERE seller_id = ?`,
		sellerID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.SellerID == "" {
		return nil, tariffdomain.ErrTariffNotFound
	}

	var t tariffdomain.SellerTariff
	if err := json.Unmarshal(row.Document, &t); err != nil {
		return nil, fmt.Errorf("decode tariff for seller %s: %w", sellerID, err)
	}
	t.SellerID = row.SellerID
	t.UpdatedAt = row.UpdatedAt
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *DBStore) UpsertSellerTariff(ctx context.Context, t tariffdomain.SellerTariff) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	row := SellerTariffRow{SellerID: t.SellerID, Document: datatypes.JSON(doc), UpdatedAt: t.UpdatedAt}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error
}
