package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentExpired PaymentStatus = "expired"
	PaymentError   PaymentStatus = "error"
)

// CanTransition reports whether s may move to next. Pending is the only
// non-terminal state.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	if s != PaymentPending {
		return false
	}
	switch next {
	case PaymentPaid, PaymentExpired, PaymentError:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentPending
}

// Extra carries caller supplied labels such as {"tag": "tpos"}.
type Extra map[string]string

func (e Extra) Value() (driver.Value, error) {
	if len(e) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *Extra) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return errors.New("model: unsupported extra column type")
	}
	if len(b) == 0 {
		*e = nil
		return nil
	}
	return json.Unmarshal(b, e)
}

// Tag returns the originating extension label, if any.
func (e Extra) Tag() string {
	return e["tag"]
}

// incoming invoice (payments), keyed by payment hash
type Payment struct {
	PaymentHash    string        `gorm:"primaryKey;column:payment_hash;type:varchar(64)" json:"payment_hash"`
	WalletID       string        `gorm:"column:wallet_id;type:varchar(64);not null;index" json:"wallet_id"`
	AmountSat      int64         `gorm:"column:amount_sat;not null" json:"amount"`
	FeeSat         int64         `gorm:"column:fee_sat;not null;default:0" json:"fee"`
	Memo           string        `gorm:"column:memo;type:text" json:"memo"`
	Extra          Extra         `gorm:"column:extra;type:text" json:"extra,omitempty"`
	PaymentRequest string        `gorm:"column:payment_request;type:text;not null" json:"payment_request"`
	Preimage       string        `gorm:"column:preimage;type:varchar(64)" json:"preimage,omitempty"`
	Status         PaymentStatus `gorm:"column:status;type:varchar(16);not null;default:'pending';index:idx_payment_status_created,priority:1" json:"status"`
	ExpiresAt      time.Time     `gorm:"column:expire_time" json:"expire_time"`
	SettledAt      *time.Time    `gorm:"column:settle_time" json:"settle_time,omitempty"`
	CreatedAt      time.Time     `gorm:"column:create_time;autoCreateTime;index:idx_payment_status_created,priority:2" json:"create_time"`
	UpdatedAt      time.Time     `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

// Expired reports whether the invoice lifetime has passed at now.
func (p *Payment) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
