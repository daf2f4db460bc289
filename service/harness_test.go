package service

import (
	"context"
	"testing"
	"time"

	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"github.com/ln_wallet/repository/repotest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db       *gorm.DB
	backend  *lightning.FakeBackend
	metrics  *Metrics
	wallets  *WalletService
	invoices *InvoiceService
	payments *PaymentService
	recon    *Reconciler
	scanner  *Scanner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := repotest.Open(t)
	backend, err := lightning.NewFakeBackend("", nil)
	if err != nil {
		t.Fatalf("fake backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	logger := zap.NewNop()
	metrics := NewMetrics(nil)
	paymentRepo := repository.NewPaymentRepository(db)
	wallets := NewWalletService(db, logger)
	recon := NewReconciler(db, metrics, logger)
	return &harness{
		db:       db,
		backend:  backend,
		metrics:  metrics,
		wallets:  wallets,
		invoices: NewInvoiceService(wallets, paymentRepo, backend, InvoiceOptions{Expiry: time.Hour, Timeout: time.Second}, metrics, logger),
		payments: NewPaymentService(paymentRepo, backend, recon, time.Second, metrics, logger),
		recon:    recon,
		scanner:  NewScanner(paymentRepo, backend, recon, ScannerOptions{Interval: time.Hour, MinStep: 2, MaxStep: 8, InitialStep: 2}, metrics, logger),
	}
}

func (h *harness) account(t *testing.T) *model.Wallet {
	t.Helper()
	_, w, err := h.wallets.CreateAccount(context.Background(), CreateAccountParams{UserName: "alice"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return w
}

func (h *harness) invoice(t *testing.T, walletID string, amount int64) *CreatedInvoice {
	t.Helper()
	inv, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceParams{WalletID: walletID, AmountSat: amount, Memo: "test"})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func (h *harness) balance(t *testing.T, walletID string) int64 {
	t.Helper()
	var w model.Wallet
	if err := h.db.Unscoped().Where("id = ?", walletID).First(&w).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	return w.BalanceSat
}

func (h *harness) status(t *testing.T, hash string) model.PaymentStatus {
	t.Helper()
	var p model.Payment
	if err := h.db.Where("payment_hash = ?", hash).First(&p).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	return p.Status
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
