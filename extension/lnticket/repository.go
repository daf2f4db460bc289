package lnticket

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

func (r *Repository) CreateForm(ctx context.Context, f *Form) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *Repository) FindForm(ctx context.Context, id string) (*Form, error) {
	var f Form
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repository) ListForms(ctx context.Context, walletIDs []string) ([]*Form, error) {
	list := make([]*Form, 0)
	if err := r.db.WithContext(ctx).Where("wallet_id IN ?", walletIDs).Order("create_time desc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *Repository) UpdateForm(ctx context.Context, id string, fields map[string]interface{}) (*Form, error) {
	if err := r.db.WithContext(ctx).Model(&Form{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, err
	}
	return r.FindForm(ctx, id)
}

func (r *Repository) DeleteForm(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Form{}).Error
}

func (r *Repository) CreateTicket(ctx context.Context, t *Ticket) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repository) FindTicket(ctx context.Context, id string) (*Ticket, error) {
	var t Ticket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListTickets(ctx context.Context, walletIDs []string) ([]*Ticket, error) {
	list := make([]*Ticket, 0)
	if err := r.db.WithContext(ctx).Where("wallet_id IN ?", walletIDs).Order("create_time desc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// MarkPaid flips the ticket to paid and adds its price to the form total.
// It reports false when the ticket was already paid.
func (r *Repository) MarkPaid(ctx context.Context, t *Ticket) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Ticket{}).Where("id = ? AND paid = ?", t.ID, false).Update("paid", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return tx.Model(&Form{}).Where("id = ?", t.FormID).
			Update("amount_made", gorm.Expr("amount_made + ?", t.Sats)).Error
	})
	return changed, err
}

func (r *Repository) DeleteTicket(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Ticket{}).Error
}
