package lnticket

import (
	"errors"
	"time"

	"github.com/ln_wallet/lightning"
)

var errPriceTooHigh = errors.New("ticket price exceeds the invoice limit")

// a paid contact form (lnticket_forms)
type Form struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	WalletID    string    `gorm:"column:wallet_id;type:varchar(64);not null;index" json:"wallet"`
	Name        string    `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Webhook     string    `gorm:"column:webhook;type:varchar(512)" json:"webhook,omitempty"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	AmountSat   int64     `gorm:"column:amount_sat;not null;default:0" json:"amount"`
	FlatRate    bool      `gorm:"column:flat_rate;not null;default:false" json:"flatrate"`
	AmountMade  int64     `gorm:"column:amount_made;not null;default:0" json:"amountmade"`
	CreatedAt   time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Form) TableName() string { return "lnticket_forms" }

// Price is what a ticket of the given word count costs. A zero priced form
// lets the sender choose.
func (f *Form) Price(words int, offered int64) (int64, error) {
	switch {
	case f.AmountSat == 0:
		return offered, nil
	case f.FlatRate:
		return f.AmountSat, nil
	}
	if int64(words) > lightning.MaxInvoiceSat/f.AmountSat {
		return 0, errPriceTooHigh
	}
	return f.AmountSat * int64(words), nil
}

// a submitted ticket; ID is the invoice payment hash (lnticket_tickets)
type Ticket struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	FormID    string    `gorm:"column:form_id;type:varchar(64);not null;index" json:"form"`
	WalletID  string    `gorm:"column:wallet_id;type:varchar(64);not null;index" json:"wallet"`
	Name      string    `gorm:"column:name;type:varchar(128)" json:"name"`
	Email     string    `gorm:"column:email;type:varchar(256)" json:"email"`
	Text      string    `gorm:"column:ltext;type:text" json:"ltext"`
	Sats      int64     `gorm:"column:sats;not null" json:"sats"`
	Paid      bool      `gorm:"column:paid;not null;default:false" json:"paid"`
	CreatedAt time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Ticket) TableName() string { return "lnticket_tickets" }
