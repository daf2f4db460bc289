package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"go.uber.org/zap"
)

func paymentCount(t *testing.T, h *harness) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&model.Payment{}).Count(&n).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	return n
}

func TestCreateInvoicePersistsPending(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)

	inv, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceParams{
		WalletID:  w.ID,
		AmountSat: 1000,
		Memo:      "coffee",
		Extra:     model.Extra{"tag": "tpos"},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if len(inv.PaymentHash) != 64 || !strings.HasPrefix(inv.PaymentRequest, "lnbcrt") {
		t.Fatalf("invoice = %+v", inv)
	}

	var p model.Payment
	if err := h.db.Where("payment_hash = ?", inv.PaymentHash).First(&p).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if p.Status != model.PaymentPending || p.AmountSat != 1000 || p.WalletID != w.ID {
		t.Fatalf("payment = %+v", p)
	}
	if p.Extra.Tag() != "tpos" {
		t.Fatalf("extra = %v", p.Extra)
	}
	if got := h.balance(t, w.ID); got != 0 {
		t.Fatalf("balance after invoice = %d", got)
	}
}

func TestCreateInvoiceRejectsBadAmount(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)

	for _, amt := range []int64{0, -5} {
		_, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: w.ID, AmountSat: amt})
		if !errors.Is(err, ErrInvalidAmount) || !IsInvalid(err) {
			t.Fatalf("amount %d: err = %v", amt, err)
		}
	}
	if n := paymentCount(t, h); n != 0 {
		t.Fatalf("payments = %d", n)
	}
}

func TestCreateInvoiceRejectsOversizedAmount(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)

	// msat would wrap around int64 for the first one
	for _, amt := range []int64{math.MaxInt64/1000 + 7, lightning.MaxInvoiceSat + 1, math.MaxInt64} {
		_, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: w.ID, AmountSat: amt})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: err = %v", amt, err)
		}
	}
	if n := paymentCount(t, h); n != 0 {
		t.Fatalf("payments = %d", n)
	}
}

func TestCreateInvoiceConfiguredMaximum(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	invoices := NewInvoiceService(h.wallets, repository.NewPaymentRepository(h.db), h.backend,
		InvoiceOptions{MaxAmountSat: 5000}, h.metrics, zap.NewNop())

	if _, err := invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: w.ID, AmountSat: 5001}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("above maximum: err = %v", err)
	}
	if _, err := invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: w.ID, AmountSat: 5000}); err != nil {
		t.Fatalf("at maximum: %v", err)
	}
}

func TestCreateInvoiceChargesLedgerAmount(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	const amount = 1_000_000_000 // 10 BTC

	inv := h.invoice(t, w.ID, amount)
	decoded, err := zpay32.Decode(inv.PaymentRequest, h.backend.Network())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.MilliSat == nil || *decoded.MilliSat != lnwire.MilliSatoshi(amount*1000) {
		t.Fatalf("bolt11 amount = %v, want %d msat", decoded.MilliSat, amount*1000)
	}
}

func TestCreateInvoiceNodeHangs(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	h.backend.SetLatency(time.Minute)
	invoices := NewInvoiceService(h.wallets, repository.NewPaymentRepository(h.db), h.backend,
		InvoiceOptions{Timeout: 50 * time.Millisecond}, h.metrics, zap.NewNop())

	start := time.Now()
	_, err := invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: w.ID, AmountSat: 10})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("create invoice blocked for %v", elapsed)
	}
	if n := paymentCount(t, h); n != 0 {
		t.Fatalf("payments persisted on timeout: %d", n)
	}
}

func TestCreateInvoiceUnknownWallet(t *testing.T) {
	h := newHarness(t)
	_, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: "missing", AmountSat: 10})
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateInvoiceUpstreamDown(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	h.backend.SetOffline(true)

	_, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: w.ID, AmountSat: 10})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if n := paymentCount(t, h); n != 0 {
		t.Fatalf("payments persisted while node down: %d", n)
	}
}

func TestListPayments(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	for i := 0; i < 3; i++ {
		h.invoice(t, w.ID, int64(10+i))
	}
	other := h.account(t)
	h.invoice(t, other.ID, 99)

	list, total, err := h.invoices.ListPayments(context.Background(), w.ID, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(list) != 2 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
	for _, p := range list {
		if p.WalletID != w.ID {
			t.Fatalf("foreign payment listed: %+v", p)
		}
	}
}
