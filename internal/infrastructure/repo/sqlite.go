package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lsp-backend/internal/domain"
)

// OrderRecord maps to the lsp_orders table.
type OrderRecord struct {
	OrderID      string `gorm:"primaryKey"`
	PaymentState string `gorm:"index"`
	Body         []byte
	PaymentHash  []byte `gorm:"uniqueIndex"`
	Preimage     []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (OrderRecord) TableName() string { return "lsp_orders" }

type SQLiteOrderRepo struct {
	db *gorm.DB
	// SQLite has no row locks; updates are serialized in process.
	mu sync.Mutex
}

func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func NewSQLiteOrderRepo(db *gorm.DB) (*SQLiteOrderRepo, error) {
	if err := db.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, fmt.Errorf("migrate lsp_orders: %w", err)
	}
	return &SQLiteOrderRepo{db: db}, nil
}

func (r *SQLiteOrderRepo) Create(ctx context.Context, o *domain.Order, secret domain.HoldInvoiceSecret) error {
	body, err := encodeOrder(o)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&OrderRecord{}).Where("order_id = ?", o.OrderID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", domain.ErrOrderExists, o.OrderID)
		}
		return tx.Create(&OrderRecord{
			OrderID:      o.OrderID,
			PaymentState: string(o.Payment.State),
			Body:         body,
			PaymentHash:  secret.PaymentHash,
			Preimage:     secret.Preimage,
			CreatedAt:    o.CreatedAt,
		}).Error
	})
}

func (r *SQLiteOrderRepo) find(db *gorm.DB, id string) (*OrderRecord, error) {
	var rec OrderRecord
	// Find instead of First keeps a missing row from being an error.
	res := db.Where("order_id = ?", id).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("read order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *SQLiteOrderRepo) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	rec, err := r.find(r.db.WithContext(ctx), id)
	if err != nil || rec == nil {
		return nil, false, err
	}
	o, err := decodeOrder(rec.Body)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (r *SQLiteOrderRepo) GetSecret(ctx context.Context, id string) (*domain.HoldInvoiceSecret, bool, error) {
	rec, err := r.find(r.db.WithContext(ctx), id)
	if err != nil || rec == nil {
		return nil, false, err
	}
	return &domain.HoldInvoiceSecret{
		OrderID:     rec.OrderID,
		Preimage:    rec.Preimage,
		PaymentHash: rec.PaymentHash,
	}, true, nil
}

func (r *SQLiteOrderRepo) Update(ctx context.Context, id string, fn func(*domain.Order) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := r.find(tx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
		}
		o, err := decodeOrder(rec.Body)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		if o.OrderID != id {
			return fmt.Errorf("order id changed from %s to %s", id, o.OrderID)
		}
		body, err := encodeOrder(o)
		if err != nil {
			return err
		}
		res := tx.Model(&OrderRecord{}).Where("order_id = ?", id).Updates(map[string]any{
			"payment_state": string(o.Payment.State),
			"body":          body,
			"updated_at":    time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("order row vanished during update")
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteOrderRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
