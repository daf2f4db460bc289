package repository

import (
	"context"
	"time"

	"github.com/ln_wallet/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) FindByHash(ctx context.Context, hash string) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).Where("payment_hash = ?", hash).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// LockByHash reads the payment with a row lock on dialects that support it.
// SQLite serializes writers, so the plain read is enough there.
func (r *PaymentRepository) LockByHash(ctx context.Context, hash string) (*model.Payment, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p model.Payment
	if err := q.Where("payment_hash = ?", hash).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByWallet(ctx context.Context, walletID string, page, size int) ([]*model.Payment, int64, error) {
	var list []*model.Payment
	var total int64
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size
	if err := r.db.WithContext(ctx).Model(&model.Payment{}).Where("wallet_id = ?", walletID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).
		Order("create_time desc").Offset(offset).Limit(size).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// PendingCursor is a keyset position over (create_time, payment_hash).
type PendingCursor struct {
	CreatedAt   time.Time
	PaymentHash string
}

// ListPending returns pending payments after the cursor, oldest first.
func (r *PaymentRepository) ListPending(ctx context.Context, after PendingCursor, limit int) ([]*model.Payment, error) {
	var list []*model.Payment
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.PaymentPending).
		Where("create_time > ? OR (create_time = ? AND payment_hash > ?)", after.CreatedAt, after.CreatedAt, after.PaymentHash).
		Order("create_time asc, payment_hash asc").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// MarkPaid moves a pending payment to paid. Zero rows affected means the
// payment was not pending any more.
func (r *PaymentRepository) MarkPaid(ctx context.Context, hash string, feeSat int64, preimage string, settledAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("payment_hash = ? AND status = ?", hash, model.PaymentPending).
		Updates(map[string]interface{}{
			"status":      model.PaymentPaid,
			"fee_sat":     feeSat,
			"preimage":    preimage,
			"settle_time": settledAt,
		})
	return res.RowsAffected, res.Error
}

// MarkStatus moves a pending payment to a terminal non-paid status.
func (r *PaymentRepository) MarkStatus(ctx context.Context, hash string, status model.PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("payment_hash = ? AND status = ?", hash, model.PaymentPending).
		Update("status", status)
	return res.RowsAffected, res.Error
}

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) WithTx(tx *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: tx}
}

// Record journals a settlement. It reports false when the payment hash was
// already journaled.
func (r *SettlementRepository) Record(ctx context.Context, ev *model.SettlementEvent) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_hash"}},
		DoNothing: true,
	}).Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
