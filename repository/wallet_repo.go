package repository

import (
	"context"

	"github.com/ln_wallet/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListByAdmin(ctx context.Context, adminID string) ([]*model.User, error) {
	var list []*model.User
	if err := r.db.WithContext(ctx).Where("admin_id = ?", adminID).Order("create_time asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{}).Error
}

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) WithTx(tx *gorm.DB) *WalletRepository {
	return &WalletRepository{db: tx}
}

func (r *WalletRepository) Create(ctx context.Context, wallet *model.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *WalletRepository) FindByID(ctx context.Context, id string) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FindByKey matches either the admin or the invoice key.
func (r *WalletRepository) FindByKey(ctx context.Context, key string) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := r.db.WithContext(ctx).Where("admin_key = ? OR invoice_key = ?", key, key).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) ListByUser(ctx context.Context, userID string) ([]*model.Wallet, error) {
	var list []*model.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("create_time asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *WalletRepository) ListByUsers(ctx context.Context, userIDs []string) ([]*model.Wallet, error) {
	var list []*model.Wallet
	if len(userIDs) == 0 {
		return list, nil
	}
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Order("create_time asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Credit adds amount to the wallet balance. Callers must hold the
// transaction that also moved the payment out of pending. Soft-deleted
// wallets are still credited.
func (r *WalletRepository) Credit(ctx context.Context, id string, amountSat int64) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().Model(&model.Wallet{}).
		Where("id = ?", id).
		Update("balance_sat", gorm.Expr("balance_sat + ?", amountSat))
	return res.RowsAffected, res.Error
}

// SoftDelete hides the wallet; payments keep referencing it.
func (r *WalletRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Wallet{}).Error
}

type CapabilityRepository struct {
	db *gorm.DB
}

func NewCapabilityRepository(db *gorm.DB) *CapabilityRepository {
	return &CapabilityRepository{db: db}
}

func (r *CapabilityRepository) WithTx(tx *gorm.DB) *CapabilityRepository {
	return &CapabilityRepository{db: tx}
}

func (r *CapabilityRepository) ListByUser(ctx context.Context, userID string) ([]model.Capability, error) {
	var rows []model.UserCapability
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("capability asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	caps := make([]model.Capability, 0, len(rows))
	for _, row := range rows {
		caps = append(caps, row.Capability)
	}
	return caps, nil
}

func (r *CapabilityRepository) Enable(ctx context.Context, userID string, c model.Capability) error {
	row := model.UserCapability{UserID: userID, Capability: c}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (r *CapabilityRepository) Disable(ctx context.Context, userID string, c model.Capability) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND capability = ?", userID, c).Delete(&model.UserCapability{}).Error
}
