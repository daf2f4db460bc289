package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ln_wallet/repository"
	"go.uber.org/zap"
)

func TestPaymentStatusLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.account(t)
	inv := h.invoice(t, w.ID, 1000)

	st, err := h.payments.GetPaymentStatus(ctx, inv.PaymentHash)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Paid || st.Status != "pending" {
		t.Fatalf("fresh invoice status = %+v", st)
	}

	if err := h.backend.Pay(inv.PaymentHash); err != nil {
		t.Fatalf("pay: %v", err)
	}
	st, err = h.payments.GetPaymentStatus(ctx, inv.PaymentHash)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Paid || st.Status != "paid" || st.Preimage == "" || st.SettledAt == nil {
		t.Fatalf("settled invoice status = %+v", st)
	}
	if got := h.balance(t, w.ID); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}

	// paid is answered from the ledger even with the node gone
	h.backend.SetOffline(true)
	for i := 0; i < 3; i++ {
		st, err = h.payments.GetPaymentStatus(ctx, inv.PaymentHash)
		if err != nil || !st.Paid {
			t.Fatalf("status after paid = %+v, %v", st, err)
		}
	}
	if got := h.balance(t, w.ID); got != 1000 {
		t.Fatalf("balance after repeated queries = %d", got)
	}
}

func TestPaymentStatusUnknownHash(t *testing.T) {
	h := newHarness(t)
	if _, err := h.payments.GetPaymentStatus(context.Background(), "deadbeef"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPaymentStatusNodeHangs(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	inv := h.invoice(t, w.ID, 100)
	h.backend.SetLatency(time.Minute)
	payments := NewPaymentService(repository.NewPaymentRepository(h.db), h.backend, h.recon,
		50*time.Millisecond, h.metrics, zap.NewNop())

	start := time.Now()
	st, err := payments.GetPaymentStatus(context.Background(), inv.PaymentHash)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Paid || st.Status != StatusUnknown {
		t.Fatalf("status = %+v", st)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("status query blocked for %v", elapsed)
	}
}

func TestPaymentStatusUpstreamDown(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	inv := h.invoice(t, w.ID, 10)
	h.backend.SetOffline(true)

	st, err := h.payments.GetPaymentStatus(context.Background(), inv.PaymentHash)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Paid || st.Status != StatusUnknown {
		t.Fatalf("status = %+v", st)
	}
}

func TestPaymentStatusCanceled(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	inv := h.invoice(t, w.ID, 10)
	if err := h.backend.Cancel(inv.PaymentHash); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	st, err := h.payments.GetPaymentStatus(context.Background(), inv.PaymentHash)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Paid || st.Status != "expired" {
		t.Fatalf("status = %+v", st)
	}
}

func TestPaymentStatusConcurrentQueries(t *testing.T) {
	h := newHarness(t)
	w := h.account(t)
	inv := h.invoice(t, w.ID, 250)
	if err := h.backend.Pay(inv.PaymentHash); err != nil {
		t.Fatalf("pay: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			st, err := h.payments.GetPaymentStatus(ctx, inv.PaymentHash)
			if err != nil {
				t.Errorf("status: %v", err)
				return
			}
			if !st.Paid {
				t.Errorf("status = %+v", st)
			}
		}()
	}
	wg.Wait()

	if got := h.balance(t, w.ID); got != 250 {
		t.Fatalf("balance = %d, want 250", got)
	}
}
