package model

import (
	"time"

	"gorm.io/gorm"
)

// settlement confirmations received from the node (settlement_events).
// One row per payment hash; a second delivery of the same hash is dropped.
type SettlementEvent struct {
	ID          uint64    `gorm:"primaryKey;column:id" json:"id"`
	PaymentHash string    `gorm:"column:payment_hash;type:varchar(64);not null;uniqueIndex" json:"payment_hash"`
	AmountSat   int64     `gorm:"column:amount_sat;not null" json:"amount"`
	FeeSat      int64     `gorm:"column:fee_sat;not null;default:0" json:"fee"`
	Preimage    string    `gorm:"column:preimage;type:varchar(64)" json:"preimage"`
	Source      string    `gorm:"column:source;type:varchar(16)" json:"source"`
	SettledAt   time.Time `gorm:"column:settle_time" json:"settle_time"`
	CreatedAt   time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

// helper: create core tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &UserCapability{}, &Wallet{}, &Payment{}, &SettlementEvent{})
}
