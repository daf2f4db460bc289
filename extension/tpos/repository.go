package tpos

import (
	"context"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, t *TPoS) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repository) Find(ctx context.Context, id string) (*TPoS, error) {
	var t TPoS
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListByWallets(ctx context.Context, walletIDs []string) ([]*TPoS, error) {
	list := make([]*TPoS, 0)
	if err := r.db.WithContext(ctx).Where("wallet_id IN ?", walletIDs).Order("create_time desc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Delete removes the terminal and its sales.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tpos_id = ?", id).Delete(&Sale{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&TPoS{}).Error
	})
}

func (r *Repository) CreateSale(ctx context.Context, s *Sale) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) FindSale(ctx context.Context, tposID, hash string) (*Sale, error) {
	var s Sale
	if err := r.db.WithContext(ctx).Where("tpos_id = ? AND payment_hash = ?", tposID, hash).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) MarkSalePaid(ctx context.Context, hash string) error {
	return r.db.WithContext(ctx).Model(&Sale{}).
		Where("payment_hash = ? AND paid = ?", hash, false).
		Update("paid", true).Error
}
