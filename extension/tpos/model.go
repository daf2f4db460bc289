package tpos

import "time"

// point of sale terminal bound to a wallet (tpos_terminals)
type TPoS struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	WalletID  string    `gorm:"column:wallet_id;type:varchar(64);not null;index" json:"wallet"`
	Name      string    `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Currency  string    `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	CreatedAt time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (TPoS) TableName() string { return "tpos_terminals" }

// one invoice issued at a terminal (tpos_sales)
type Sale struct {
	PaymentHash string    `gorm:"primaryKey;column:payment_hash;type:varchar(64)" json:"payment_hash"`
	TPoSID      string    `gorm:"column:tpos_id;type:varchar(64);not null;index" json:"tpos"`
	AmountSat   int64     `gorm:"column:amount_sat;not null" json:"amount"`
	Paid        bool      `gorm:"column:paid;not null;default:false" json:"paid"`
	CreatedAt   time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Sale) TableName() string { return "tpos_sales" }
