package model

import (
	"time"

	"gorm.io/gorm"
)

// account owner (users)
type User struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(128)" json:"name"`
	Email     string    `gorm:"column:email;type:varchar(256)" json:"email,omitempty"`
	AdminID   string    `gorm:"column:admin_id;type:varchar(64);index" json:"admin_id,omitempty"`
	CreatedAt time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

// wallet (wallets). BalanceSat is only ever written by the reconciler.
type Wallet struct {
	ID         string         `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	UserID     string         `gorm:"column:user_id;type:varchar(64);not null;index" json:"user"`
	Name       string         `gorm:"column:name;type:varchar(128);not null" json:"name"`
	AdminKey   string         `gorm:"column:admin_key;type:varchar(64);uniqueIndex" json:"-"`
	InvoiceKey string         `gorm:"column:invoice_key;type:varchar(64);uniqueIndex" json:"-"`
	BalanceSat int64          `gorm:"column:balance_sat;not null;default:0" json:"balance"`
	CreatedAt  time.Time      `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdatedAt  time.Time      `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
	DeletedAt  gorm.DeletedAt `gorm:"column:delete_time;index" json:"-"`
}

// KeyType is the privilege tier an API key grants on its wallet.
type KeyType int8

const (
	KeyInvoice KeyType = iota + 1
	KeyAdmin
)

func (k KeyType) String() string {
	switch k {
	case KeyInvoice:
		return "invoice"
	case KeyAdmin:
		return "admin"
	}
	return "unknown"
}

// Capability names an extension a user has switched on.
type Capability string

const (
	CapabilityTPoS        Capability = "tpos"
	CapabilityLNTicket    Capability = "lnticket"
	CapabilityUserManager Capability = "usermanager"
)

var knownCapabilities = map[Capability]struct{}{
	CapabilityTPoS:        {},
	CapabilityLNTicket:    {},
	CapabilityUserManager: {},
}

// Valid reports whether c is one of the capabilities this build knows.
func (c Capability) Valid() bool {
	_, ok := knownCapabilities[c]
	return ok
}

// enabled extensions per user (user_capabilities)
type UserCapability struct {
	ID         uint64     `gorm:"primaryKey;column:id" json:"-"`
	UserID     string     `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_user_capability" json:"user_id"`
	Capability Capability `gorm:"column:capability;type:varchar(32);not null;uniqueIndex:idx_user_capability" json:"capability"`
	CreatedAt  time.Time  `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}
