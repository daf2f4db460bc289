// Package lightning talks to the node that issues invoices and reports
// their settlement.
package lightning

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

var (
	ErrInvoiceNotFound  = errors.New("lightning: invoice not found")
	ErrNodeOffline      = errors.New("lightning: node offline")
	ErrAmountOutOfRange = errors.New("lightning: invoice amount out of range")
)

// MaxInvoiceSat is the largest invoice amount. Its millisatoshi value
// still fits an int64.
const MaxInvoiceSat = int64(btcutil.MaxSatoshi)

// CheckAmount rejects amounts a node cannot encode in an invoice.
func CheckAmount(sat int64) error {
	if sat <= 0 || sat > MaxInvoiceSat {
		return ErrAmountOutOfRange
	}
	return nil
}

type InvoiceState string

const (
	StateOpen     InvoiceState = "OPEN"
	StateSettled  InvoiceState = "SETTLED"
	StateCanceled InvoiceState = "CANCELED"
	StateAccepted InvoiceState = "ACCEPTED"
)

type InvoiceRequest struct {
	AmountSat int64
	Memo      string
	Expiry    time.Duration
}

type Invoice struct {
	PaymentHash    string
	PaymentRequest string
	ExpiresAt      time.Time
}

// InvoiceStatus is the node's current view of one invoice.
type InvoiceStatus struct {
	PaymentHash   string
	State         InvoiceState
	AmountPaidSat int64
	FeeSat        int64
	Preimage      string
	SettledAt     time.Time
}

// Settlement converts a settled status into a settlement proof.
func (s *InvoiceStatus) Settlement(source string) Settlement {
	return Settlement{
		PaymentHash: s.PaymentHash,
		AmountSat:   s.AmountPaidSat,
		FeeSat:      s.FeeSat,
		Preimage:    s.Preimage,
		SettledAt:   s.SettledAt,
		Source:      source,
	}
}

// Settlement is the node's confirmation that funds for a payment hash
// arrived.
type Settlement struct {
	PaymentHash string
	AmountSat   int64
	FeeSat      int64
	Preimage    string
	SettledAt   time.Time
	Source      string
}

// Backend is the port to the external payment network.
type Backend interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	LookupInvoice(ctx context.Context, paymentHash string) (*InvoiceStatus, error)
	// SubscribeSettlements streams settled invoices until ctx ends or the
	// stream breaks, in which case one error is delivered on the error
	// channel.
	SubscribeSettlements(ctx context.Context) (<-chan Settlement, <-chan error, error)
	Close() error
}
